// Package services – ExpertService
//
// This file implements the expert side of the escalation loop: creating
// questions, listing the open queue, and ingesting answers back into the
// intent base. Ingestion derives a stable expert-intent identity from the
// question text, merges similar questions into one intent, and replaces that
// intent's entire response set with the new answer — expert answers are
// authoritative and singular, no history of old answers is retained.
package services

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExpertService owns the ExpertQuestion lifecycle and answer ingestion.
type ExpertService struct {
	DB *gorm.DB
}

// CreateQuestion files a new Pending question for userID, optionally linked
// to the chat message that triggered it, and returns the question id.
func (s *ExpertService) CreateQuestion(ctx context.Context, userID, question string, relatedMessageID *string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyMessage
	}
	q, err := repo.CreateQuestion(ctx, s.DB, userID, question, relatedMessageID)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// PendingQuestions returns the open queue (Pending and InProgress), oldest
// first.
func (s *ExpertService) PendingQuestions(ctx context.Context, offset, limit int) ([]domain.ExpertQuestion, error) {
	return repo.ListPendingQuestions(ctx, s.DB, offset, limit)
}

// AnswerQuestion records an expert's answer and folds it into the intent
// base.
//
// Re-answering an already Answered question updates the record in place and
// is flagged internally as an update rather than a first answer. The answer
// commit and the ingestion are separate steps: an ingestion failure is logged
// but does not roll back the committed answer.
func (s *ExpertService) AnswerQuestion(ctx context.Context, questionID, expertID, answer string) error {
	tr := otel.Tracer("services/ExpertService")
	ctx, span := tr.Start(ctx, "AnswerQuestion",
		trace.WithAttributes(attribute.String("question.id", questionID)),
	)
	defer span.End()

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ErrEmptyAnswer
	}

	q, err := repo.GetQuestion(ctx, s.DB, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	isUpdate := q.Status == domain.StatusAnswered && q.Answer != nil && strings.TrimSpace(*q.Answer) != ""

	now := time.Now().UTC()
	q.Answer = &answer
	q.ExpertID = &expertID
	q.AnsweredAt = &now
	q.Status = domain.StatusAnswered
	if err := repo.SaveQuestion(ctx, s.DB, q); err != nil {
		return err
	}

	if err := s.ingestAnswer(ctx, q.Question, answer, isUpdate); err != nil {
		log.Error().Err(err).
			Str("question_id", questionID).
			Bool("update", isUpdate).
			Msg("expert answer ingestion failed")
	}
	return nil
}

// ingestAnswer merges an expert answer into the intent base.
//
// The target intent is resolved in order: an existing expert-authored intent
// with a pattern similar to the normalized question; an intent matching the
// name derived from the question's leading keywords; otherwise a freshly
// created one. A matched intent gains the question as a pattern (if new) and
// has its response set replaced by the single new answer.
func (s *ExpertService) ingestAnswer(ctx context.Context, question, answer string, isUpdate bool) error {
	norm := intent.Normalize(question)
	if norm == "" || strings.TrimSpace(answer) == "" {
		return nil // nothing to learn from
	}
	derived := intent.DeriveExpertName(norm)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		match, err := s.findSimilarExpertIntent(ctx, tx, norm)
		if err != nil {
			return err
		}
		if match == nil {
			match, err = s.findByDerivedName(ctx, tx, derived)
			if err != nil {
				return err
			}
		}

		if match == nil {
			_, err := repo.CreateIntent(ctx, tx, derived, []string{norm}, []string{answer})
			return err
		}

		patterns := match.Patterns
		if !slices.Contains(patterns, norm) {
			patterns = append(slices.Clone(patterns), norm)
		}
		return repo.SaveIntentSets(ctx, tx, match.ID, patterns, []string{answer})
	})
	if err != nil {
		return err
	}

	expertAnswersTotal.WithLabelValues(strconv.FormatBool(isUpdate)).Inc()
	log.Info().
		Str("intent", derived).
		Bool("update", isUpdate).
		Msg("expert answer ingested into intent base")
	return nil
}

// findSimilarExpertIntent scans expert-authored intents for one whose pattern
// set contains an entry similar to the normalized question.
func (s *ExpertService) findSimilarExpertIntent(ctx context.Context, tx *gorm.DB, norm string) (*domain.Intent, error) {
	experts, err := repo.ListIntentsByPrefix(ctx, tx, intent.ExpertPrefix)
	if err != nil {
		return nil, err
	}
	for i := range experts {
		for _, pattern := range experts[i].Patterns {
			if intent.QuestionsSimilar(norm, pattern) {
				return &experts[i], nil
			}
		}
	}
	return nil, nil
}

// findByDerivedName looks the derived name up exactly; absence is not an
// error.
func (s *ExpertService) findByDerivedName(ctx context.Context, tx *gorm.DB, name string) (*domain.Intent, error) {
	in, err := repo.FindIntentByName(ctx, tx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}
