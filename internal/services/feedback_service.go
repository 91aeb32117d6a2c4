// Package services – FeedbackService
//
// This file implements FeedbackService, which applies explicit user
// corrections to a chat turn. Negative feedback can force an expert
// escalation — always when an expert-authored intent already covers a similar
// question (the user disagrees with an existing expert answer, so the
// question re-routes for review), otherwise only when the message has not
// been escalated before. A supplied correct intent is recorded on the
// message, taught as a new pattern, and overwrites the stored classification.
//
// All mutations of one feedback call commit atomically; any store failure
// fails the whole operation.
package services

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FeedbackService implements the feedback use-case over user turns.
type FeedbackService struct {
	DB    *gorm.DB
	Cache *intent.Cache
}

// Provide records feedback for messageID. correctIntent may be empty.
//
// Semantics:
//   - The message must exist (ErrMessageNotFound) and be a user turn
//     (ErrNotUserTurn).
//   - isCorrect = false: marks the turn incorrect; may escalate (see package
//     comment); when correctIntent is set, the normalized message text is
//     appended to that intent's patterns and the turn's classification is
//     overwritten to (correctIntent, 0.9).
//   - isCorrect = true: marks the turn correct; when the turn carries an
//     intent, its confidence is raised by 0.1, capped at 1.0.
func (s *FeedbackService) Provide(ctx context.Context, messageID string, isCorrect bool, correctIntent string) error {
	tr := otel.Tracer("services/FeedbackService")
	ctx, span := tr.Start(ctx, "Provide",
		trace.WithAttributes(
			attribute.String("message.id", messageID),
			attribute.Bool("feedback.correct", isCorrect),
		),
	)
	defer span.End()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if !msg.IsUser {
			return ErrNotUserTurn
		}

		fb := isCorrect
		msg.UserFeedback = &fb

		if !isCorrect {
			norm := intent.Normalize(msg.Message)

			escalate, err := s.shouldEscalate(ctx, tx, msg.UserID, messageID, norm)
			if err != nil {
				return err
			}
			if escalate {
				if _, err := repo.CreateQuestion(ctx, tx, msg.UserID, msg.Message, &messageID); err != nil {
					return err
				}
				escalationsTotal.WithLabelValues("feedback").Inc()
			}

			if correctIntent != "" {
				msg.CorrectIntent = &correctIntent
				added, err := addPatternToIntent(ctx, tx, correctIntent, norm)
				if err != nil {
					return err
				}
				if added {
					learnedPatternsTotal.WithLabelValues("feedback").Inc()
				}
				msg.Intent = &correctIntent
				msg.Confidence = 0.9
			}
		} else if msg.Intent != nil {
			msg.Confidence = math.Min(1.0, msg.Confidence+0.1)
		}

		return repo.SaveMessage(ctx, tx, msg)
	})
}

// shouldEscalate decides the negative-feedback escalation. An expert-authored
// intent with a pattern lexically similar to the message forces escalation
// unconditionally; otherwise the message escalates only if no question
// references it yet.
func (s *FeedbackService) shouldEscalate(ctx context.Context, tx *gorm.DB, userID, messageID, norm string) (bool, error) {
	snap := s.Cache.EnsureLoaded(ctx)
	for _, in := range snap.Intents() {
		if !intent.IsExpertIntent(in.Name) {
			continue
		}
		for _, pattern := range in.Patterns {
			if intent.QuestionsSimilar(norm, pattern) {
				return true, nil
			}
		}
	}

	_, err := repo.FindQuestionByRelatedMessage(ctx, tx, userID, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
