package checkpoint

import (
	"context"
	"time"
)

// ID addresses one stored checkpoint. There is at most one stored checkpoint
// per (database type, phase) pair; writes upsert.
type ID struct {
	DatabaseType string
	Phase        string
}

// Stored is a checkpoint as persisted by a Store.
type Stored struct {
	Data         string    `json:"checkpoint_data"`
	DatabaseType string    `json:"database_type"`
	Phase        string    `json:"phase"`
	CreatedAt    time.Time `json:"created_at"`
}

// Checkpoint parses the stored serialisation back into its variant.
func (s *Stored) Checkpoint() (Checkpoint, error) {
	return Unmarshal([]byte(s.Data))
}

// Store persists checkpoints. A failed write is retried by the caller; a
// partially written checkpoint is never observable through Read.
type Store interface {
	// Store upserts the serialised checkpoint under id.
	Store(ctx context.Context, id ID, data string) error
	// Read returns the stored checkpoint, or nil when none exists.
	Read(ctx context.Context, id ID) (*Stored, error)
}

// Save marshals cp and writes it under (cp.DatabaseType(), phase).
func Save(ctx context.Context, s Store, cp Checkpoint, phase string) error {
	data, err := Marshal(cp)
	if err != nil {
		return err
	}
	return s.Store(ctx, ID{DatabaseType: cp.DatabaseType(), Phase: phase}, data)
}
