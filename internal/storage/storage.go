package storage

import (
	"fmt"

	"github.com/tazhate/remindbot/internal/domain"
)

// Supported backend names.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Snapshot is the full durable state: every reminder keyed by its id.
type Snapshot map[string]domain.Reminder

// Snapshotter persists whole snapshots. Save replaces the previous snapshot
// atomically: after a failed Save the old snapshot is still the one Load returns.
// Load on a store that was never written returns an empty snapshot, not an error.
type Snapshotter interface {
	Load() (Snapshot, error)
	Save(snap Snapshot) error
	Close() error
}

// Open returns the snapshotter for the named backend.
func Open(backend, path string) (Snapshotter, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONFile(path), nil
	case BackendSQLite:
		return NewSQLite(path)
	case BackendBolt:
		return NewBolt(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// Clone returns a shallow copy; Reminder values carry no shared pointers.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s)+1)
	for id, r := range s {
		out[id] = r
	}
	return out
}
