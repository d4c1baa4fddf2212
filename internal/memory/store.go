package memory

import (
	"context"
	"sync"
)

// InMemoryStore is a process-local Store used for local development and
// tests. A single instance is safe for concurrent use.
type InMemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]Turn

	// maxTurns bounds per-scope growth; oldest turns are evicted first.
	maxTurns int
}

const defaultMaxTurns = 1000

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:    make(map[string][]Turn),
		maxTurns: defaultMaxTurns,
	}
}

func scopeKey(s Scope) string {
	return s.MemoryID + "\x00" + s.ActorID + "\x00" + s.SessionID
}

// Recent returns up to limit most recent turns for the scope, oldest first.
func (m *InMemoryStore) Recent(_ context.Context, scope Scope, limit int) ([]Turn, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.turns[scopeKey(scope)]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Turn, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// Append records a turn for the scope.
func (m *InMemoryStore) Append(_ context.Context, scope Scope, turn Turn) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeKey(scope)
	all := append(m.turns[key], turn)
	if len(all) > m.maxTurns {
		all = all[len(all)-m.maxTurns:]
	}
	m.turns[key] = all
	return nil
}
