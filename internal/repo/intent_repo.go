// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Intent model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an intent is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ListIntents returns every stored intent ordered by name, so that snapshot
// iteration (and therefore classification tie-breaking) is deterministic.
func ListIntents(ctx context.Context, db *gorm.DB) ([]domain.Intent, error) {
	var out []domain.Intent
	err := db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// FindIntentByName fetches a single intent by its unique name, or ErrNotFound.
func FindIntentByName(ctx context.Context, db *gorm.DB, name string) (*domain.Intent, error) {
	var in domain.Intent
	if err := db.WithContext(ctx).Where("name = ?", name).First(&in).Error; err != nil {
		return nil, err
	}
	return &in, nil
}

// ListIntentsByPrefix returns intents whose name starts with prefix, ordered
// by name. Used by feedback and ingestion to scan expert-authored intents.
func ListIntentsByPrefix(ctx context.Context, db *gorm.DB, prefix string) ([]domain.Intent, error) {
	var out []domain.Intent
	err := db.WithContext(ctx).
		Where(`name LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Order("name ASC").
		Find(&out).Error
	return out, err
}

// CreateIntent inserts a new intent row with a UUID primary key and UTC
// timestamps. Nil pattern/response slices are stored as empty sets.
func CreateIntent(ctx context.Context, db *gorm.DB, name string, patterns, responses []string) (*domain.Intent, error) {
	if patterns == nil {
		patterns = []string{}
	}
	if responses == nil {
		responses = []string{}
	}
	now := time.Now().UTC()
	in := &domain.Intent{
		ID:        uuid.NewString(),
		Name:      name,
		Patterns:  patterns,
		Responses: responses,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(in).Error; err != nil {
		return nil, err
	}
	return in, nil
}

// SaveIntentSets overwrites an intent's pattern and response sets and bumps
// UpdatedAt. Returns ErrNotFound when no row matches the id.
//
// The update goes through the struct, not a column map: the slice columns
// carry a JSON serializer, and GORM only runs serializers for struct fields.
func SaveIntentSets(ctx context.Context, db *gorm.DB, id string, patterns, responses []string) error {
	if patterns == nil {
		patterns = []string{}
	}
	if responses == nil {
		responses = []string{}
	}
	res := db.WithContext(ctx).
		Model(&domain.Intent{}).
		Where("id = ?", id).
		Select("patterns", "responses", "updated_at").
		Updates(&domain.Intent{
			Patterns:  patterns,
			Responses: responses,
			UpdatedAt: time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementIntentUsage bumps the usage counter of an intent identified by
// name. A missing intent is reported as ErrNotFound.
func IncrementIntentUsage(ctx context.Context, db *gorm.DB, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Intent{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike escapes the SQL LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
