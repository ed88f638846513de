package filesource

import (
	"context"
	"fmt"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// Position is the placeholder checkpoint of file sources; files carry no
// change stream, so there is nothing to resume.
type Position struct{}

func (Position) DatabaseType() string { return "file" }
func (Position) ToCLIString() string  { return "none" }

func (Position) Equal(o checkpoint.Checkpoint) bool {
	_, ok := o.(Position)
	return ok
}

// Config configures a file source.
type Config struct {
	// Location is a local path, an HTTP(S) URL, or s3://bucket/key.
	Location string
	// Table is the target table name.
	Table string
	// IDColumn names the column used as the primary key. Defaults to "id".
	IDColumn string
	Schema   *core.Schema
	// BufferSize tunes buffered reads.
	BufferSize int
}

func (c *Config) idColumn() string {
	if c.IDColumn == "" {
		return "id"
	}
	return c.IDColumn
}

// fileSource implements the parts of core.Source both file formats share.
type fileSource struct {
	cfg Config
}

func (f *fileSource) CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error) {
	return Position{}, nil
}

func (f *fileSource) Tables(ctx context.Context) ([]string, error) {
	return []string{f.cfg.Table}, nil
}

func (f *fileSource) OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts core.StreamOptions) (core.ChangeStream, error) {
	return nil, &core.UnsupportedError{What: "incremental sync from a file source"}
}

func (f *fileSource) Close(ctx context.Context) error { return nil }

// rowFromFields resolves the primary key of one decoded record.
func (f *fileSource) rowFromFields(fields *core.Fields) (*core.Row, error) {
	id, ok := fields.Get(f.cfg.idColumn())
	if !ok {
		return nil, &core.SourceError{
			Op:  "read " + f.cfg.Location,
			Err: fmt.Errorf("record lacks id column %q", f.cfg.idColumn()),
		}
	}
	return &core.Row{Table: f.cfg.Table, PrimaryKey: id, Fields: fields}, nil
}
