package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avolkov/go-support-bot/internal/domain"
)

func TestQuestionRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	related := "msg-1"
	q, err := CreateQuestion(ctx, db, "u1", "почему не печатает принтер", &related)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.ID == "" || q.Status != domain.StatusPending || q.CreatedAt.IsZero() {
		t.Fatalf("new question: %+v", q)
	}

	got, err := GetQuestion(ctx, db, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Question != "почему не печатает принтер" || got.RelatedMessageID == nil || *got.RelatedMessageID != "msg-1" {
		t.Fatalf("roundtrip: %+v", got)
	}

	if _, err := GetQuestion(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestQuestionRepo_SaveQuestion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	q, err := CreateQuestion(ctx, db, "u1", "вопрос", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	answer := "ответ эксперта"
	expert := "e1"
	at := time.Now().UTC()
	q.Answer = &answer
	q.ExpertID = &expert
	q.Status = domain.StatusAnswered
	q.AnsweredAt = &at
	if err := SaveQuestion(ctx, db, q); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := GetQuestion(ctx, db, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusAnswered || got.Answer == nil || *got.Answer != answer || got.AnsweredAt == nil {
		t.Fatalf("saved state: %+v", got)
	}
}

func TestQuestionRepo_ListOpenByUser_FiltersStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mk := func(user, text string, status domain.QuestionStatus) {
		t.Helper()
		q, err := CreateQuestion(ctx, db, user, text, nil)
		if err != nil {
			t.Fatalf("create %s: %v", text, err)
		}
		if status != domain.StatusPending {
			q.Status = status
			if err := SaveQuestion(ctx, db, q); err != nil {
				t.Fatalf("save %s: %v", text, err)
			}
		}
	}
	mk("u1", "a", domain.StatusPending)
	mk("u1", "b", domain.StatusInProgress)
	mk("u1", "c", domain.StatusResolved)
	mk("u2", "d", domain.StatusPending)

	open, err := ListOpenQuestionsByUser(ctx, db, "u1",
		[]domain.QuestionStatus{domain.StatusPending, domain.StatusInProgress})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open = %d, want 2: %+v", len(open), open)
	}
	for _, q := range open {
		if q.UserID != "u1" || q.Status == domain.StatusResolved {
			t.Fatalf("leaked row: %+v", q)
		}
	}
}

func TestQuestionRepo_FindByRelatedMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	related := "msg-7"
	if _, err := CreateQuestion(ctx, db, "u1", "вопрос", &related); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := FindQuestionByRelatedMessage(ctx, db, "u1", "msg-7")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Question != "вопрос" {
		t.Fatalf("found: %+v", got)
	}

	// same message, different user: not visible
	if _, err := FindQuestionByRelatedMessage(ctx, db, "u2", "msg-7"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-user err = %v, want ErrNotFound", err)
	}
	if _, err := FindQuestionByRelatedMessage(ctx, db, "u1", "msg-8"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}

func TestQuestionRepo_ListPending_PaginatesOldestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		created, err := CreateQuestion(ctx, db, "u1", "q"+string(rune('a'+i)), nil)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		created.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := SaveQuestion(ctx, db, created); err != nil {
			t.Fatalf("backdate: %v", err)
		}
	}

	page, err := ListPendingQuestions(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Question != "qc" || page[1].Question != "qd" {
		t.Fatalf("page: %+v", page)
	}

	all, err := ListPendingQuestions(ctx, db, 0, 0)
	if err != nil || len(all) != 5 {
		t.Fatalf("all: n=%d err=%v", len(all), err)
	}
}

func TestQuestionRepo_ListAnsweredForUser_RequiresRelatedMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	related := "msg-1"
	answer := "ответ"

	answered, err := CreateQuestion(ctx, db, "u1", "связанный", &related)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	answered.Status = domain.StatusAnswered
	answered.Answer = &answer
	if err := SaveQuestion(ctx, db, answered); err != nil {
		t.Fatalf("save: %v", err)
	}

	// answered but unlinked: excluded
	orphan, err := CreateQuestion(ctx, db, "u1", "без сообщения", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	orphan.Status = domain.StatusAnswered
	if err := SaveQuestion(ctx, db, orphan); err != nil {
		t.Fatalf("save: %v", err)
	}

	// linked but still pending: excluded
	if _, err := CreateQuestion(ctx, db, "u1", "ждёт ответа", &related); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := ListAnsweredQuestionsForUser(ctx, db, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Question != "связанный" {
		t.Fatalf("answered: %+v", got)
	}
}
