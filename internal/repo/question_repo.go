// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ExpertQuestion model.
//
// The repository follows a "thin" approach: persistence and query composition
// only. Escalation dedup rules and the answer state machine live in the
// services package.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
)

// CreateQuestion inserts a new Pending question owned by userID, optionally
// linked to the chat message that triggered the escalation.
func CreateQuestion(ctx context.Context, db *gorm.DB, userID, question string, relatedMessageID *string) (*domain.ExpertQuestion, error) {
	q := &domain.ExpertQuestion{
		ID:               uuid.NewString(),
		UserID:           userID,
		Question:         question,
		Status:           domain.StatusPending,
		RelatedMessageID: relatedMessageID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// GetQuestion fetches a question by ID, or ErrNotFound.
func GetQuestion(ctx context.Context, db *gorm.DB, id string) (*domain.ExpertQuestion, error) {
	var q domain.ExpertQuestion
	if err := db.WithContext(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// SaveQuestion persists mutated answer/status fields of an existing question.
func SaveQuestion(ctx context.Context, db *gorm.DB, q *domain.ExpertQuestion) error {
	return db.WithContext(ctx).Save(q).Error
}

// ListOpenQuestionsByUser returns the user's questions whose status is in
// statuses, ordered by creation time. The decision-policy dedup check
// compares normalized question text in memory, so no text filter is applied
// here.
func ListOpenQuestionsByUser(ctx context.Context, db *gorm.DB, userID string, statuses []domain.QuestionStatus) ([]domain.ExpertQuestion, error) {
	var out []domain.ExpertQuestion
	err := db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, statuses).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// FindQuestionByRelatedMessage returns the question a user already filed for
// a specific chat message, or ErrNotFound.
func FindQuestionByRelatedMessage(ctx context.Context, db *gorm.DB, userID, messageID string) (*domain.ExpertQuestion, error) {
	var q domain.ExpertQuestion
	err := db.WithContext(ctx).
		Where("user_id = ? AND related_message_id = ?", userID, messageID).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListPendingQuestions returns all Pending and InProgress questions across
// users, oldest first, so experts work the queue in arrival order.
func ListPendingQuestions(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.ExpertQuestion, error) {
	q := db.WithContext(ctx).
		Where("status IN ?", []domain.QuestionStatus{domain.StatusPending, domain.StatusInProgress}).
		Order("created_at ASC, id ASC")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.ExpertQuestion
	err := q.Find(&out).Error
	return out, err
}

// ListAnsweredQuestionsForUser returns the user's Answered questions that are
// linked to a chat message; the history reconciler folds these into the
// timeline.
func ListAnsweredQuestionsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.ExpertQuestion, error) {
	var out []domain.ExpertQuestion
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND related_message_id IS NOT NULL", userID, domain.StatusAnswered).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
