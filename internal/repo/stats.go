// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
)

// PendingQuestionStats returns aggregate metadata for the expert work queue:
// the number of Pending/InProgress questions and the latest CreatedAt among
// them. When the queue is empty the returned count is 0 and latest is nil.
//
// Return values:
//   - count:  total open (Pending or InProgress) questions
//   - latest: pointer to the greatest CreatedAt, or nil if no rows
//   - err:    database error, if any
func PendingQuestionStats(ctx context.Context, db *gorm.DB) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).
		Model(&domain.ExpertQuestion{}).
		Where("status IN ?", []domain.QuestionStatus{domain.StatusPending, domain.StatusInProgress})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
