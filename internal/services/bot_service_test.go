package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"
)

func TestProcessMessage_RejectsEmptyAndOversized(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	if _, _, err := bot.ProcessMessage(ctx, "u1", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank err = %v, want ErrEmptyMessage", err)
	}

	bot.MaxMessageRunes = 5
	if _, _, err := bot.ProcessMessage(ctx, "u1", "привет"); !errors.Is(err, ErrTooLong) {
		t.Fatalf("oversized err = %v, want ErrTooLong", err)
	}
}

func TestProcessMessage_ExactMatch_PersistsTurnPairAndBumpsUsage(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	reply, msgID, err := bot.ProcessMessage(ctx, "u1", "  ПРИВЕТ  ")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if msgID == "" {
		t.Fatalf("empty message id")
	}

	greeting, err := repo.FindIntentByName(ctx, db, "greeting")
	if err != nil {
		t.Fatalf("find greeting: %v", err)
	}
	if !slices.Contains(greeting.Responses, reply) {
		t.Fatalf("reply %q not drawn from greeting responses", reply)
	}
	if greeting.UsageCount != 1 {
		t.Fatalf("usage count = %d, want 1", greeting.UsageCount)
	}

	turns, err := repo.ListRecentMessages(ctx, db, "u1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	user, botTurn := turns[0], turns[1]
	if !user.IsUser || user.ID != msgID || user.Intent == nil || *user.Intent != "greeting" || user.Confidence != 0.95 {
		t.Fatalf("user turn: %+v", user)
	}
	if user.Response == nil || *user.Response != reply {
		t.Fatalf("user turn response: %+v", user.Response)
	}
	if botTurn.IsUser || botTurn.Message != reply {
		t.Fatalf("bot turn: %+v", botTurn)
	}
}

// "Привет!" is not byte-equal to the pattern "привет", so classification goes
// through the containment path and caps below the exact-match confidence.
func TestProcessMessage_ContainmentMatch(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	if _, err := repo.CreateIntent(ctx, db, "vpn",
		[]string{"не работает vpn"}, []string{"Проверьте подключение к сети"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reply, msgID, err := bot.ProcessMessage(ctx, "u1", "у меня не работает vpn")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "Проверьте подключение к сети" {
		t.Fatalf("reply = %q", reply)
	}

	m, err := repo.GetMessage(ctx, db, msgID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if m.Intent == nil || *m.Intent != "vpn" {
		t.Fatalf("intent: %+v", m.Intent)
	}
	if m.Confidence < 0.5 || m.Confidence >= 0.95 {
		t.Fatalf("confidence = %v", m.Confidence)
	}
}

func TestProcessMessage_Unknown_EscalatesThenDeduplicates(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	reply, msgID, err := bot.ProcessMessage(ctx, "u1", "фыва олдж йцукен")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != intent.EscalationNotice {
		t.Fatalf("reply = %q, want escalation notice", reply)
	}

	open, err := repo.ListOpenQuestionsByUser(ctx, db, "u1",
		[]domain.QuestionStatus{domain.StatusPending})
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("questions = %d, want 1", len(open))
	}
	q := open[0]
	if q.Question != "фыва олдж йцукен" || q.RelatedMessageID == nil || *q.RelatedMessageID != msgID {
		t.Fatalf("question: %+v", q)
	}

	// The same text again: the open question suppresses a second escalation
	// and the reply falls back to the clarification.
	reply, _, err = bot.ProcessMessage(ctx, "u1", "Фыва олдж йцукен")
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if reply != intent.ClarificationReply {
		t.Fatalf("dedup reply = %q, want clarification", reply)
	}

	open, err = repo.ListOpenQuestionsByUser(ctx, db, "u1",
		[]domain.QuestionStatus{domain.StatusPending})
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("questions after dedup = %d, want 1", len(open))
	}
}

func TestProcessMessage_SeesExpertTaughtIntentNextTurn(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	// Behind the cache's back, as expert-answer ingestion does.
	if _, err := repo.CreateIntent(ctx, db, "expert_сломался_сканер",
		[]string{"сломался сканер"}, []string{"Переустановите драйвер сканера"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reply, _, err := bot.ProcessMessage(ctx, "u1", "сломался сканер")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if reply != "Переустановите драйвер сканера" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestSendToExpert(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	if err := bot.SendToExpert(ctx, "", "u1", "  "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank err = %v, want ErrEmptyMessage", err)
	}

	if err := bot.SendToExpert(ctx, "msg-1", "u1", "как настроить почту"); err != nil {
		t.Fatalf("send: %v", err)
	}
	// repeat for the same message is a successful no-op
	if err := bot.SendToExpert(ctx, "msg-1", "u1", "как настроить почту"); err != nil {
		t.Fatalf("repeat send: %v", err)
	}

	open, err := repo.ListOpenQuestionsByUser(ctx, db, "u1",
		[]domain.QuestionStatus{domain.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("questions = %d, want 1", len(open))
	}
	if open[0].RelatedMessageID == nil || *open[0].RelatedMessageID != "msg-1" {
		t.Fatalf("related: %+v", open[0].RelatedMessageID)
	}

	// without a message reference every call files a question
	if err := bot.SendToExpert(ctx, "", "u1", "другой вопрос"); err != nil {
		t.Fatalf("unrelated send: %v", err)
	}
	open, err = repo.ListOpenQuestionsByUser(ctx, db, "u1",
		[]domain.QuestionStatus{domain.StatusPending})
	if err != nil || len(open) != 2 {
		t.Fatalf("questions = %d err=%v, want 2", len(open), err)
	}
}

func TestDeleteHistory(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	if _, _, err := bot.ProcessMessage(ctx, "u1", "привет"); err != nil {
		t.Fatalf("process: %v", err)
	}

	deleted, err := bot.DeleteHistory(ctx, "u1")
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = bot.DeleteHistory(ctx, "u1")
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
}

func TestAvailableIntents(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)

	names := bot.AvailableIntents(context.Background())
	for _, want := range []string{"farewell", "greeting", "help", "thanks"} {
		if !slices.Contains(names, want) {
			t.Fatalf("intents %v missing %q", names, want)
		}
	}
}

func TestSelectResponse_GuardsLegacyEscalationNotice(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)

	snap := intent.NewSnapshot([]domain.Intent{{
		Name:      "legacy",
		Responses: []string{intent.EscalationNotice},
	}})
	if got := bot.selectResponse(snap, "legacy"); got != intent.ClarificationReply {
		t.Fatalf("got %q, want clarification", got)
	}
	if got := bot.selectResponse(snap, "missing"); got != intent.ClarificationReply {
		t.Fatalf("missing intent: got %q, want clarification", got)
	}
}

func TestProcessMessage_TrimsInput(t *testing.T) {
	db := newServiceDB(t)
	bot := newBot(t, db)
	ctx := context.Background()

	_, msgID, err := bot.ProcessMessage(ctx, "u1", "\n  спасибо  \t")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	m, err := repo.GetMessage(ctx, db, msgID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Message != "спасибо" || strings.TrimSpace(m.Message) != m.Message {
		t.Fatalf("stored message %q not trimmed", m.Message)
	}
	if m.Intent == nil || *m.Intent != "thanks" {
		t.Fatalf("intent: %+v", m.Intent)
	}
}
