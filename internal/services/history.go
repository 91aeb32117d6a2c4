// Package services – conversation history reconciliation.
//
// Expert answers arrive asynchronously: the question may be answered long
// after the user's original turn. History therefore merges the stored message
// window with any Answered questions that reference a message inside it,
// synthesizing a clearly marked expert-answer turn when the answer has not
// surfaced in the timeline yet.
package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// History returns the user's conversation ordered by time, most recent last,
// capped at the configured window of most recent turns.
//
// For every Answered question linked to a message inside the window, a
// synthetic expert-answer turn is inserted and persisted unless the timeline
// already surfaced the answer: either the bot echoed the exact answer text in
// a later turn (ingestion-taught reclassification), or a previous History
// call already synthesized the turn. The synthetic turn is timestamped at the
// question's answered-time, or one second after the user's message when the
// answered-time would not sort after it.
func (s *BotService) History(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	tr := otel.Tracer("services/BotService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	msgs, err := repo.ListRecentMessages(ctx, s.DB, userID, s.historyLimit())
	if err != nil {
		return nil, err
	}

	answered, err := repo.ListAnsweredQuestionsForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}

	for i := range answered {
		q := &answered[i]
		if q.Answer == nil || strings.TrimSpace(*q.Answer) == "" || q.RelatedMessageID == nil {
			continue
		}
		answer := *q.Answer

		related := findMessage(msgs, *q.RelatedMessageID)
		if related == nil {
			continue
		}
		if answerAlreadySurfaced(msgs, related, answer) {
			continue
		}

		synthetic := &domain.ChatMessage{
			UserID:  userID,
			Message: intent.ExpertAnswerHeader + answer,
			IsUser:  false,
		}
		if _, err := repo.CreateMessage(s.DB.WithContext(ctx), synthetic, expertTurnTime(q, related)); err != nil {
			log.Warn().Err(err).Str("question_id", q.ID).Msg("persisting expert-answer turn failed")
			continue
		}
		msgs = append(msgs, *synthetic)
	}

	slices.SortStableFunc(msgs, func(a, b domain.ChatMessage) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return msgs, nil
}

// findMessage locates a message by id within the loaded window.
func findMessage(msgs []domain.ChatMessage, id string) *domain.ChatMessage {
	for i := range msgs {
		if msgs[i].ID == id {
			return &msgs[i]
		}
	}
	return nil
}

// answerAlreadySurfaced reports whether the timeline already shows the expert
// answer after the user's message: as a verbatim bot echo, or as a previously
// synthesized expert-answer turn.
func answerAlreadySurfaced(msgs []domain.ChatMessage, related *domain.ChatMessage, answer string) bool {
	for i := range msgs {
		m := &msgs[i]
		if m.IsUser || !m.CreatedAt.After(related.CreatedAt) {
			continue
		}
		if m.Message == answer {
			return true
		}
		if strings.Contains(m.Message, intent.ExpertAnswerMarker) && strings.Contains(m.Message, answer) {
			return true
		}
	}
	return false
}

// expertTurnTime places the synthetic turn after the user's message: the
// question's answered-time when that sorts later, otherwise one second after
// the message.
func expertTurnTime(q *domain.ExpertQuestion, related *domain.ChatMessage) time.Time {
	at := time.Now().UTC()
	if q.AnsweredAt != nil {
		at = *q.AnsweredAt
	}
	if at.After(related.CreatedAt) {
		return at
	}
	return related.CreatedAt.Add(time.Second)
}
