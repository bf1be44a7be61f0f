// internal/store/memory.go
//
// In-memory registry of live game engines.
// Each engine belongs to one owner (user id or anonymous id); lookups by any
// other owner behave exactly like a missing game.
//
// Characteristics:
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Delete and Prune close the engine so its pending timers never fire.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robalobadob/padel-memory/internal/game"
)

// ErrNotFound is returned for unknown ids and for ids owned by someone else.
var ErrNotFound = errors.New("not found")

// Store defines the registry used by the HTTP layer.
type Store interface {
	// Save registers or replaces an engine under owner.
	Save(ctx context.Context, owner string, e *game.Engine) error

	// Get retrieves an engine by ID if owner holds it.
	Get(ctx context.Context, owner, id string) (*game.Engine, error)

	// Delete closes and forgets an engine.
	Delete(ctx context.Context, owner, id string) error

	// Prune closes engines untouched for longer than idle and returns how many.
	Prune(idle time.Duration) int

	// Close closes and forgets every engine.
	Close()
}

type entry struct {
	engine   *game.Engine
	owner    string
	lastSeen time.Time
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu    sync.RWMutex
	games map[string]*entry
	now   func() time.Time
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return newMemory(time.Now)
}

func newMemory(now func() time.Time) *memory {
	return &memory{games: make(map[string]*entry), now: now}
}

func (m *memory) Save(ctx context.Context, owner string, e *game.Engine) error {
	if owner == "" {
		return errors.New("owner required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.games[e.ID()]; ok && old.engine != e {
		old.engine.Close()
	}
	m.games[e.ID()] = &entry{engine: e, owner: owner, lastSeen: m.now()}
	return nil
}

func (m *memory) Get(ctx context.Context, owner, id string) (*game.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	en, ok := m.games[id]
	if !ok || en.owner != owner {
		return nil, ErrNotFound
	}
	en.lastSeen = m.now()
	return en.engine, nil
}

func (m *memory) Delete(ctx context.Context, owner, id string) error {
	m.mu.Lock()
	en, ok := m.games[id]
	if !ok || en.owner != owner {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.games, id)
	m.mu.Unlock()

	en.engine.Close()
	return nil
}

func (m *memory) Prune(idle time.Duration) int {
	cutoff := m.now().Add(-idle)
	var stale []*game.Engine

	m.mu.Lock()
	for id, en := range m.games {
		if en.lastSeen.Before(cutoff) {
			stale = append(stale, en.engine)
			delete(m.games, id)
		}
	}
	m.mu.Unlock()

	for _, e := range stale {
		e.Close()
	}
	return len(stale)
}

func (m *memory) Close() {
	m.mu.Lock()
	all := make([]*game.Engine, 0, len(m.games))
	for _, en := range m.games {
		all = append(all, en.engine)
	}
	m.games = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range all {
		e.Close()
	}
}
