// Package services – BotService
//
// This file implements BotService, the component that owns a chat turn end to
// end: it refreshes the intent snapshot, classifies the message, selects a
// reply, applies the decision policy (auto-reply / self-learn / escalate),
// and persists the user/bot message pair atomically. Escalations create an
// ExpertQuestion after the turn commit so the question can reference the
// stored user message.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// user identifiers and classification outcomes.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// escalationDedupStatuses are the question states that suppress a duplicate
// escalation of the same normalized text from the same user.
var escalationDedupStatuses = []domain.QuestionStatus{
	domain.StatusPending,
	domain.StatusInProgress,
	domain.StatusAnswered,
}

// BotService coordinates classification, response selection, the decision
// policy, and turn persistence.
type BotService struct {
	DB      *gorm.DB
	Cache   *intent.Cache
	Learner *Learner
	Experts *ExpertService

	// MaxMessageRunes caps accepted message length; <= 0 disables the check.
	MaxMessageRunes int
	// HistoryLimit caps the reconciled history window; <= 0 means 50.
	HistoryLimit int
}

// ProcessMessage runs one chat turn for userID and returns the bot's reply
// together with the id of the persisted user message.
//
// The intent snapshot is refreshed from the store on every call once it has
// loaded at least once, so patterns taught by expert answers are visible
// immediately. Branches, in priority order:
//
//  1. confidence < 0.3 and intent "unknown": escalate to an expert unless an
//     open question with the same normalized text already exists for the
//     user; the reply becomes the fixed escalation notice.
//  2. confidence in [0.3, 0.5) and intent "unknown": try the learning
//     heuristics (best-effort, failures swallowed).
//  3. known intent: bump its usage counter (best-effort).
//
// The user and bot turns commit as one transaction. On a persistence failure
// the error is returned, but the reply string falls back to the generic
// clarification so the calling layer can still render a turn.
func (s *BotService) ProcessMessage(ctx context.Context, userID, message string) (string, string, error) {
	tr := otel.Tracer("services/BotService")
	ctx, span := tr.Start(ctx, "ProcessMessage",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return "", "", ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(message) > s.MaxMessageRunes {
		return "", "", ErrTooLong
	}

	snap := s.Cache.Refresh(ctx)
	res := intent.Classify(snap, message)
	span.SetAttributes(
		attribute.String("bot.intent", res.Name),
		attribute.Float64("bot.confidence", res.Confidence),
	)

	reply := s.selectResponse(snap, res.Name)
	norm := intent.Normalize(message)

	escalate := false
	switch {
	case res.Confidence < 0.3 && res.Name == intent.Unknown:
		classificationsTotal.WithLabelValues("unknown").Inc()
		dup, err := s.hasOpenQuestion(ctx, userID, norm)
		if err != nil {
			// Dedup check failed: answer normally rather than risking a
			// duplicate expert question.
			log.Warn().Err(err).Str("user_id", userID).Msg("escalation dedup check failed")
		} else if !dup {
			escalate = true
			reply = intent.EscalationNotice
		}

	case res.Confidence < 0.5 && res.Name == intent.Unknown:
		classificationsTotal.WithLabelValues("unknown").Inc()
		outcome, err := s.Learner.TryLearn(ctx, norm)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("learning attempt failed")
		} else if outcome == LearnApplied {
			log.Info().Str("pattern", norm).Msg("pattern learned from conversation history")
		}

	case res.Name != intent.Unknown:
		if res.Confidence >= 0.95 {
			classificationsTotal.WithLabelValues("exact").Inc()
		} else {
			classificationsTotal.WithLabelValues("matched").Inc()
		}
		if err := repo.IncrementIntentUsage(ctx, s.DB, res.Name); err != nil {
			log.Warn().Err(err).Str("intent", res.Name).Msg("usage counter update failed")
		}
	}

	userMsg := &domain.ChatMessage{
		UserID:     userID,
		Message:    message,
		Response:   &reply,
		IsUser:     true,
		Intent:     &res.Name,
		Confidence: res.Confidence,
	}
	botMsg := &domain.ChatMessage{
		UserID:  userID,
		Message: reply,
		IsUser:  false,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateMessage(tx, userMsg, time.Time{}); err != nil {
			return err
		}
		_, err := repo.CreateMessage(tx, botMsg, time.Time{})
		return err
	})
	if err != nil {
		return intent.ClarificationReply, "", fmt.Errorf("persist turn: %w", err)
	}

	if escalate {
		if _, err := s.Experts.CreateQuestion(ctx, userID, message, &userMsg.ID); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("escalation failed after turn commit")
		} else {
			escalationsTotal.WithLabelValues("low_confidence").Inc()
		}
	}

	return reply, userMsg.ID, nil
}

// SendToExpert files the given question for an expert on behalf of userID.
// When the user already escalated the same chat message, the call is a
// successful no-op.
func (s *BotService) SendToExpert(ctx context.Context, messageID, userID, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyMessage
	}

	var related *string
	if messageID != "" {
		switch _, err := repo.FindQuestionByRelatedMessage(ctx, s.DB, userID, messageID); {
		case err == nil:
			return nil // already escalated for this message
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		related = &messageID
	}

	if _, err := s.Experts.CreateQuestion(ctx, userID, question, related); err != nil {
		return err
	}
	escalationsTotal.WithLabelValues("manual").Inc()
	return nil
}

// AvailableIntents returns the names of all cached intents.
func (s *BotService) AvailableIntents(ctx context.Context) []string {
	return s.Cache.EnsureLoaded(ctx).Names()
}

// ReloadIntents forces a fresh snapshot from the store.
func (s *BotService) ReloadIntents(ctx context.Context) {
	s.Cache.Reload(ctx)
}

// DeleteHistory removes the user's entire conversation and reports whether
// anything was deleted.
func (s *BotService) DeleteHistory(ctx context.Context, userID string) (bool, error) {
	n, err := repo.DeleteAllMessages(ctx, s.DB, userID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// hasOpenQuestion reports whether the user already has a Pending, InProgress,
// or Answered question with the same normalized text. Comparison happens in
// memory so Unicode lowercasing matches the classifier's normalization.
func (s *BotService) hasOpenQuestion(ctx context.Context, userID, norm string) (bool, error) {
	open, err := repo.ListOpenQuestionsByUser(ctx, s.DB, userID, escalationDedupStatuses)
	if err != nil {
		return false, err
	}
	for i := range open {
		if intent.Normalize(open[i].Question) == norm {
			return true, nil
		}
	}
	return false, nil
}

// selectResponse picks a reply for the resolved intent uniformly at random.
// A missing intent, an empty response set, or a response equal to the legacy
// escalation notice all yield the generic clarification reply.
func (s *BotService) selectResponse(snap *intent.Snapshot, name string) string {
	in, ok := snap.Find(name)
	if !ok || len(in.Responses) == 0 {
		return intent.ClarificationReply
	}
	r := in.Responses[rand.IntN(len(in.Responses))]
	if r == intent.EscalationNotice {
		return intent.ClarificationReply
	}
	return r
}

// historyLimit returns the configured history window size, defaulting to 50.
func (s *BotService) historyLimit() int {
	if s.HistoryLimit > 0 {
		return s.HistoryLimit
	}
	return 50
}
