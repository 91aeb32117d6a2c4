package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"
)

func TestExpertService_CreateQuestion(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	if _, err := es.CreateQuestion(ctx, "u1", "   ", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("blank err = %v, want ErrEmptyMessage", err)
	}

	id, err := es.CreateQuestion(ctx, "u1", "почему не работает почта", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	q, err := repo.GetQuestion(ctx, db, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q.Status != domain.StatusPending || q.UserID != "u1" {
		t.Fatalf("question: %+v", q)
	}
}

func TestExpertService_PendingQuestions(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	for _, text := range []string{"первый", "второй", "третий"} {
		if _, err := es.CreateQuestion(ctx, "u1", text, nil); err != nil {
			t.Fatalf("create %s: %v", text, err)
		}
	}

	page, err := es.PendingQuestions(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].Question != "второй" {
		t.Fatalf("page: %+v", page)
	}
}

func TestAnswerQuestion_Validation(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	if err := es.AnswerQuestion(ctx, "any", "e1", "  "); !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("blank answer err = %v, want ErrEmptyAnswer", err)
	}
	if err := es.AnswerQuestion(ctx, "missing", "e1", "ответ"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("missing err = %v, want ErrQuestionNotFound", err)
	}
}

func TestAnswerQuestion_FirstAnswer_CreatesExpertIntent(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	id, err := es.CreateQuestion(ctx, "u1", "Почему принтер печатает пустые страницы?", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := es.AnswerQuestion(ctx, id, "expert-7", "Замените картридж"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	q, err := repo.GetQuestion(ctx, db, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q.Status != domain.StatusAnswered || q.Answer == nil || *q.Answer != "Замените картридж" {
		t.Fatalf("answered question: %+v", q)
	}
	if q.ExpertID == nil || *q.ExpertID != "expert-7" || q.AnsweredAt == nil {
		t.Fatalf("expert attribution: %+v", q)
	}

	in, err := repo.FindIntentByName(ctx, db, "expert_почему_принтер_печатает_пустые")
	if err != nil {
		t.Fatalf("derived intent: %v", err)
	}
	wantPattern := "почему принтер печатает пустые страницы?"
	if len(in.Patterns) != 1 || in.Patterns[0] != wantPattern {
		t.Fatalf("patterns: %v", in.Patterns)
	}
	if len(in.Responses) != 1 || in.Responses[0] != "Замените картридж" {
		t.Fatalf("responses: %v", in.Responses)
	}
}

func TestAnswerQuestion_Reanswer_ReplacesResponse(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	id, err := es.CreateQuestion(ctx, "u1", "почему принтер печатает пустые страницы", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := es.AnswerQuestion(ctx, id, "e1", "Замените картридж"); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if err := es.AnswerQuestion(ctx, id, "e2", "Прочистите печатающую головку"); err != nil {
		t.Fatalf("second answer: %v", err)
	}

	q, err := repo.GetQuestion(ctx, db, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if q.ExpertID == nil || *q.ExpertID != "e2" {
		t.Fatalf("expert not updated: %+v", q.ExpertID)
	}

	intents, err := repo.ListIntentsByPrefix(ctx, db, intent.ExpertPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("expert intents = %d, want 1", len(intents))
	}
	in := intents[0]
	// the old answer is replaced, not accumulated
	if len(in.Responses) != 1 || in.Responses[0] != "Прочистите печатающую головку" {
		t.Fatalf("responses: %v", in.Responses)
	}
	if len(in.Patterns) != 1 {
		t.Fatalf("patterns grew on re-answer: %v", in.Patterns)
	}
}

func TestAnswerQuestion_SimilarQuestion_MergesIntoExistingIntent(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	first, err := es.CreateQuestion(ctx, "u1", "почему принтер печатает пустые страницы", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := es.AnswerQuestion(ctx, first, "e1", "Замените картридж"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	second, err := es.CreateQuestion(ctx, "u2", "почему принтер печатает пустые листы", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := es.AnswerQuestion(ctx, second, "e1", "Проверьте уровень тонера"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	intents, err := repo.ListIntentsByPrefix(ctx, db, intent.ExpertPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("expert intents = %d, want merged single intent", len(intents))
	}
	in := intents[0]
	if !slices.Contains(in.Patterns, "почему принтер печатает пустые страницы") ||
		!slices.Contains(in.Patterns, "почему принтер печатает пустые листы") {
		t.Fatalf("patterns: %v", in.Patterns)
	}
	if len(in.Responses) != 1 || in.Responses[0] != "Проверьте уровень тонера" {
		t.Fatalf("responses: %v", in.Responses)
	}
}

func TestAnswerQuestion_ShortQuestion_DerivedNameFallback(t *testing.T) {
	db := newServiceDB(t)
	es := &ExpertService{DB: db}
	ctx := context.Background()

	id, err := es.CreateQuestion(ctx, "u1", "ну а ты", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := es.AnswerQuestion(ctx, id, "e1", "Уточните вопрос"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	// no 3+ rune token exists, so the name falls back to the raw prefix
	if _, err := repo.FindIntentByName(ctx, db, "expert_ну а ты"); err != nil {
		t.Fatalf("fallback intent: %v", err)
	}
}
