package intent

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/repo"
)

// Snapshot is an immutable view of the intent working set. A snapshot is
// built once during load and then only read; classification never observes a
// partially loaded collection.
type Snapshot struct {
	intents []domain.Intent
	byName  map[string]int
}

// NewSnapshot builds a snapshot over the given intents. The slice is owned by
// the snapshot after the call.
func NewSnapshot(intents []domain.Intent) *Snapshot {
	byName := make(map[string]int, len(intents))
	for i := range intents {
		byName[intents[i].Name] = i
	}
	return &Snapshot{intents: intents, byName: byName}
}

// Intents returns the snapshot's intents. Callers must treat the slice and
// its elements as read-only.
func (s *Snapshot) Intents() []domain.Intent { return s.intents }

// Find returns the intent with the given name, if present.
func (s *Snapshot) Find(name string) (*domain.Intent, bool) {
	i, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return &s.intents[i], true
}

// Names returns the intent names in snapshot order.
func (s *Snapshot) Names() []string {
	out := make([]string, len(s.intents))
	for i := range s.intents {
		out[i] = s.intents[i].Name
	}
	return out
}

// Cache holds the process-local intent working set. Loads and reloads are
// serialized by a single mutex; readers obtain a consistent snapshot through
// an atomic pointer and are never blocked by a concurrent reload.
//
// On first load an empty store is seeded with the built-in defaults. When the
// store is unreachable the cache degrades to the defaults in memory and keeps
// serving; the failure is logged, never surfaced.
type Cache struct {
	db *gorm.DB

	mu     sync.Mutex // serializes load/reload
	loaded atomic.Bool
	snap   atomic.Pointer[Snapshot]
}

// NewCache returns a cache bound to the given database handle. No load is
// performed until EnsureLoaded, Refresh, or Reload is called.
func NewCache(db *gorm.DB) *Cache {
	c := &Cache{db: db}
	c.snap.Store(NewSnapshot(nil))
	return c
}

// EnsureLoaded loads intents from the store exactly once and returns the
// current snapshot. Subsequent calls are cheap snapshot reads.
func (c *Cache) EnsureLoaded(ctx context.Context) *Snapshot {
	if c.loaded.Load() {
		return c.snap.Load()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded.Load() {
		return c.snap.Load()
	}
	snap := c.loadLocked(ctx)
	c.loaded.Store(true)
	return snap
}

// Reload unconditionally re-reads the store and publishes a fresh snapshot.
func (c *Cache) Reload(ctx context.Context) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.loadLocked(ctx)
	c.loaded.Store(true)
	return snap
}

// Refresh is the per-message load policy: once any load has happened it
// re-reads the store so expert-taught patterns become visible immediately;
// before that it behaves like EnsureLoaded.
func (c *Cache) Refresh(ctx context.Context) *Snapshot {
	if c.loaded.Load() {
		return c.Reload(ctx)
	}
	return c.EnsureLoaded(ctx)
}

// Snapshot returns the currently published snapshot without touching the
// store. It is empty until the first load.
func (c *Cache) Snapshot() *Snapshot { return c.snap.Load() }

// loadLocked builds and publishes a new snapshot. Callers hold c.mu.
func (c *Cache) loadLocked(ctx context.Context) *Snapshot {
	intents, err := repo.ListIntents(ctx, c.db)
	if err != nil {
		// Degraded mode: keep answering with the built-in defaults.
		log.Warn().Err(err).Msg("intent load failed, serving built-in defaults")
		snap := NewSnapshot(Defaults())
		c.snap.Store(snap)
		return snap
	}

	if len(intents) == 0 {
		intents = c.seedDefaultsLocked(ctx)
	} else {
		c.stripEscalationNoticeLocked(ctx, intents)
	}

	snap := NewSnapshot(intents)
	c.snap.Store(snap)
	return snap
}

// seedDefaultsLocked persists the built-in defaults into the empty store.
// Persistence is best-effort: the defaults are served either way.
func (c *Cache) seedDefaultsLocked(ctx context.Context) []domain.Intent {
	defaults := Defaults()
	for i := range defaults {
		if _, err := repo.FindIntentByName(ctx, c.db, defaults[i].Name); err == nil {
			continue
		}
		if _, err := repo.CreateIntent(ctx, c.db, defaults[i].Name, defaults[i].Patterns, defaults[i].Responses); err != nil {
			log.Warn().Err(err).Str("intent", defaults[i].Name).Msg("seeding default intent failed")
		}
	}
	return defaults
}

// stripEscalationNoticeLocked removes the legacy escalation notice from any
// response set it leaked into and persists the cleaned intents best-effort.
func (c *Cache) stripEscalationNoticeLocked(ctx context.Context, intents []domain.Intent) {
	for i := range intents {
		if !slices.Contains(intents[i].Responses, EscalationNotice) {
			continue
		}
		cleaned := slices.DeleteFunc(slices.Clone(intents[i].Responses), func(r string) bool {
			return r == EscalationNotice
		})
		intents[i].Responses = cleaned
		if err := repo.SaveIntentSets(ctx, c.db, intents[i].ID, intents[i].Patterns, cleaned); err != nil {
			log.Warn().Err(err).Str("intent", intents[i].Name).Msg("escalation notice cleanup failed")
		}
	}
}
