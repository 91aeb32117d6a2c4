// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatMessage
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
)

// CreateMessage inserts a new chat turn. The caller may force a timestamp via
// at (used by the history reconciler for synthetic expert-answer turns);
// a zero at means "now".
func CreateMessage(db *gorm.DB, m *domain.ChatMessage, at time.Time) (*domain.ChatMessage, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	m.ID = uuid.NewString()
	m.CreatedAt = at
	m.UpdatedAt = at
	return m, db.Create(m).Error
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMessage persists mutated feedback/intent fields of an existing message.
func SaveMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) error {
	m.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(m).Error
}

// ListRecentMessages returns the limit most recent turns for a user in
// chronological order (oldest of the window first, most recent last). The
// window query runs descending and is reversed in memory so the cap applies
// to the most recent rows.
func ListRecentMessages(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListUserTurns returns every user-authored turn across all users in
// chronological order. The learning heuristics walk this sequence to find
// repeated texts and their classified neighbors.
func ListUserTurns(ctx context.Context, db *gorm.DB) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("is_user = ?", true).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListClassifiedUserTurns returns user turns that resolved to a known
// (non-unknown) intent, in chronological order.
func ListClassifiedUserTurns(ctx context.Context, db *gorm.DB) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("is_user = ? AND intent IS NOT NULL AND intent <> ?", true, "unknown").
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteAllMessages removes every turn belonging to userID and reports how
// many rows were deleted.
func DeleteAllMessages(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.ChatMessage{})
	return res.RowsAffected, res.Error
}
