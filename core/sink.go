package core

import "context"

// Sink is the target-side write capability. It hides SDK major-version
// differences behind three operations; the drivers never see the wire
// protocol. All operations are idempotent: rows and relations upsert by
// identity, and deleting an absent key is not an error.
type Sink interface {
	// WriteRows upserts a batch of rows by primary key.
	WriteRows(ctx context.Context, rows []Row) error

	// WriteRelations upserts a batch of graph edges by relation id.
	WriteRelations(ctx context.Context, relations []Relation) error

	// ApplyChange applies one captured change: Create and Update upsert the
	// post-image, Delete removes by key best-effort.
	ApplyChange(ctx context.Context, c *Change) error
}
