package persist

import (
	"context"
	"errors"
)

// Errors shared by all store backends.
var (
	// ErrNoSnapshot is returned by Load when the backend holds no snapshot.
	ErrNoSnapshot = errors.New("optimist: no snapshot")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("optimist: snapshot store is closed")
)

// Store persists cache snapshots.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a snapshot, replacing any previous one.
	// Called periodically and on graceful shutdown.
	Save(ctx context.Context, s *Snapshot) error

	// Load retrieves the most recent snapshot.
	// Returns ErrNoSnapshot when the backend holds none.
	Load(ctx context.Context) (*Snapshot, error)

	// Close releases any resources held by the store.
	// It does not close shared clients or connections.
	Close() error
}
