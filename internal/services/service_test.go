package services

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"
)

// newServiceDB opens a file-backed sqlite database in a temp dir with the
// full schema migrated.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newBot wires a BotService over db with a freshly loaded intent cache. The
// first load seeds the built-in default intents into the empty store.
func newBot(t *testing.T, db *gorm.DB) *BotService {
	t.Helper()
	cache := intent.NewCache(db)
	cache.EnsureLoaded(context.Background())
	return &BotService{
		DB:              db,
		Cache:           cache,
		Learner:         &Learner{DB: db},
		Experts:         &ExpertService{DB: db},
		MaxMessageRunes: 2000,
		HistoryLimit:    50,
	}
}
