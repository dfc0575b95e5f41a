package persist

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/optimist-go/optimist/pkg/cache"
)

// SnapshotVersion is the current snapshot format version.
// Bump when the Snapshot layout changes incompatibly.
const SnapshotVersion = 1

// Snapshot is a point-in-time JSON capture of a cache.
type Snapshot struct {
	// Version is the snapshot format version, not a key version.
	Version int `json:"version"`

	// SavedAt is when the snapshot was captured, in UTC.
	SavedAt time.Time `json:"saved_at"`

	// Entries maps each key to its JSON-encoded value.
	Entries map[string]json.RawMessage `json:"entries"`

	// Versions records each key's version counter at capture time.
	// Informational only; Restore does not replay them.
	Versions map[string]uint64 `json:"versions,omitempty"`
}

// Capture marshals every cache entry into a new Snapshot. Values that
// cannot be marshaled are skipped with a debug log; everything the sync
// layer writes is raw JSON and always survives.
func Capture(c *cache.Cache) (*Snapshot, error) {
	s := &Snapshot{
		Version:  SnapshotVersion,
		SavedAt:  time.Now().UTC(),
		Entries:  make(map[string]json.RawMessage),
		Versions: make(map[string]uint64),
	}

	c.Range(func(key string, value any, version uint64) bool {
		data, err := json.Marshal(value)
		if err != nil {
			slog.Debug("snapshot skipping unmarshalable entry", "key", key, "error", err)
			return true
		}
		s.Entries[key] = data
		s.Versions[key] = version
		return true
	})

	return s, nil
}

// Restore writes the snapshot's entries into the cache as raw JSON.
// Keys already bound to another type are skipped with a warning; the
// restore is best effort and existing entries keep their values.
func Restore(c *cache.Cache, s *Snapshot) {
	for key, value := range s.Entries {
		if err := c.SetChecked(key, json.RawMessage(value)); err != nil {
			slog.Warn("snapshot restore skipping key", "key", key, "error", err)
		}
	}
}

// Encode serializes a snapshot for storage.
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("optimist: encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot and checks the format version.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("optimist: decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("optimist: unsupported snapshot version: got %d, want %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}
