package persist

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory. It is the default for
// tests and single-process deployments where durability across restarts
// is not required.
type MemoryStore struct {
	mu      sync.Mutex
	last    *Snapshot
	history []*Snapshot
	keep    int
	closed  bool
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*MemoryStore)

// WithHistory retains the last n snapshots in addition to the current
// one. Default: 0 (only the latest snapshot is kept).
func WithHistory(n int) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.keep = n
	}
}

// NewMemoryStore creates an in-memory snapshot store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Save stores the snapshot as the latest.
func (m *MemoryStore) Save(ctx context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.last != nil && m.keep > 0 {
		m.history = append(m.history, m.last)
		if len(m.history) > m.keep {
			m.history = m.history[len(m.history)-m.keep:]
		}
	}
	m.last = s
	return nil
}

// Load returns the latest snapshot.
func (m *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	if m.last == nil {
		return nil, ErrNoSnapshot
	}
	return m.last, nil
}

// History returns the retained older snapshots, oldest first.
func (m *MemoryStore) History() []*Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// Close marks the store as closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
