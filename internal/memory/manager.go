package memory

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/haasonsaas/chatagent/internal/storage"
)

// DefaultIdleTTL is how long a session's Store outlives its last use.
const DefaultIdleTTL = 30 * time.Minute

// Manager hands out one Store per session so that writers within a session share
// a single lock. Stores of idle sessions are evicted; callers fetch a Store per
// operation instead of holding on to it.
type Manager struct {
	backend storage.MemoryStore
	opts    []Option

	mu     sync.Mutex
	stores *gocache.Cache
}

// NewManager creates a Manager over backend.
func NewManager(backend storage.MemoryStore, opts ...Option) *Manager {
	ttl := buildOptions(opts).idleTTL
	return &Manager{
		backend: backend,
		opts:    opts,
		stores:  gocache.New(ttl, ttl/2),
	}
}

// ForSession returns the store for sessionID, creating it on first use. Every
// call restarts the session's idle timer.
func (m *Manager) ForSession(sessionID string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.stores.Get(sessionID); ok {
		store := v.(*Store)
		m.stores.SetDefault(sessionID, store)
		return store
	}
	store := NewStore(sessionID, m.backend, m.opts...)
	m.stores.SetDefault(sessionID, store)
	return store
}

// Sessions reports how many session stores are currently held.
func (m *Manager) Sessions() int {
	return m.stores.ItemCount()
}
