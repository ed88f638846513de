package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// Config configures the trigger-based PostgreSQL source.
type Config struct {
	// ConnString is a libpq-compatible connection string.
	ConnString string
	// Tables restricts the sync; empty means every user table.
	Tables []string
	// Schema optionally overrides introspected types.
	Schema *core.Schema
}

// Source is the trigger+audit-table capture backend.
type Source struct {
	pool *pgxpool.Pool
	cfg  Config

	meta map[string]*tableMeta
}

var _ core.Source = (*Source)(nil)

// Open connects and installs change tracking on the synced tables.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	pool, err := NewPool(ctx, cfg.ConnString)
	if err != nil {
		return nil, err
	}
	s := &Source{pool: pool, cfg: cfg, meta: make(map[string]*tableMeta)}

	tables := cfg.Tables
	if len(tables) == 0 {
		if tables, err = userTables(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if err := SetupChangeTracking(ctx, pool, tables); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) table(ctx context.Context, name string) (*tableMeta, error) {
	if m, ok := s.meta[name]; ok {
		return m, nil
	}
	m, err := introspectTable(ctx, s.pool, name)
	if err != nil {
		return nil, err
	}
	s.meta[name] = m
	return m, nil
}

// codec builds the JSON codec for the given tables, preferring the operator
// schema over introspected metadata.
func (s *Source) codec(ctx context.Context, tables []string) (*core.JSONCodec, error) {
	if s.cfg.Schema != nil {
		return &core.JSONCodec{Schema: s.cfg.Schema}, nil
	}
	metas := make([]tableMeta, 0, len(tables))
	for _, t := range tables {
		m, err := s.table(ctx, t)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *m)
	}
	return &core.JSONCodec{Schema: asSchema(metas)}, nil
}

func (s *Source) CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(sequence_id), 0) FROM surreal_sync_changes`).Scan(&seq)
	if err != nil {
		return nil, &core.SourceError{Op: "read current position", Err: err}
	}
	return checkpoint.PostgresTrigger{SequenceID: seq, CapturedAt: time.Now().UTC()}, nil
}

func (s *Source) Tables(ctx context.Context) ([]string, error) {
	return userTables(ctx, s.pool)
}

func (s *Source) FullScan(ctx context.Context, table string) (core.Scan, error) {
	meta, err := s.table(ctx, table)
	if err != nil {
		return nil, err
	}
	pk := meta.primaryKey()
	if pk == nil {
		return nil, &core.SourceError{Op: "full scan", Err: fmt.Errorf("table %s has no primary key", table)}
	}
	codec, err := s.codec(ctx, []string{table})
	if err != nil {
		return nil, err
	}

	// Serialising rows as JSON in the server routes every value through one
	// codec path and keeps numeric text exact.
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT row_to_json(t.*)::text FROM %q t`, table))
	if err != nil {
		return nil, &core.SourceError{Op: "full scan " + table, Err: err}
	}
	return &tableScan{rows: rows, table: table, pkName: pk.Name, codec: codec}, nil
}

type tableScan struct {
	rows   pgx.Rows
	table  string
	pkName string
	codec  *core.JSONCodec
}

func (t *tableScan) Next(ctx context.Context) (core.ScanItem, error) {
	if err := ctx.Err(); err != nil {
		return core.ScanItem{}, err
	}
	if !t.rows.Next() {
		if err := t.rows.Err(); err != nil {
			return core.ScanItem{}, &core.SourceError{Op: "scan " + t.table, Err: err}
		}
		return core.ScanItem{}, io.EOF
	}
	var doc string
	if err := t.rows.Scan(&doc); err != nil {
		return core.ScanItem{}, &core.SourceError{Op: "scan " + t.table, Err: err}
	}
	row, err := documentToRow(t.codec, t.table, t.pkName, json.RawMessage(doc))
	if err != nil {
		return core.ScanItem{}, err
	}
	return core.ScanItem{Row: row}, nil
}

func (t *tableScan) Close() error {
	t.rows.Close()
	return nil
}

// documentToRow decodes one JSON post-image into a row.
func documentToRow(codec *core.JSONCodec, table, pkName string, doc json.RawMessage) (*core.Row, error) {
	fields, err := codec.DecodeDocument(table, doc)
	if err != nil {
		return nil, err
	}
	pk, ok := fields.Get(pkName)
	if !ok {
		return nil, &core.SourceError{Op: "decode row", Err: fmt.Errorf("post-image of %s lacks primary key %s", table, pkName)}
	}
	return &core.Row{Table: table, PrimaryKey: pk, Fields: fields}, nil
}

func (s *Source) OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts core.StreamOptions) (core.ChangeStream, error) {
	fromCp, ok := from.(checkpoint.PostgresTrigger)
	if !ok {
		return nil, &core.ConfigError{Msg: fmt.Sprintf("postgresql source requires a postgresql checkpoint, got %T", from)}
	}
	var untilSeq int64 = -1
	if until != nil {
		untilCp, ok := until.(checkpoint.PostgresTrigger)
		if !ok {
			return nil, &core.ConfigError{Msg: fmt.Sprintf("postgresql source requires a postgresql until checkpoint, got %T", until)}
		}
		untilSeq = untilCp.SequenceID
	}

	tables := s.cfg.Tables
	if len(tables) == 0 {
		var err error
		if tables, err = userTables(ctx, s.pool); err != nil {
			return nil, err
		}
	}
	codec, err := s.codec(ctx, tables)
	if err != nil {
		return nil, err
	}
	pkTypes := make(map[string]core.Type, len(tables))
	pkNames := make(map[string]string, len(tables))
	for _, t := range tables {
		m, err := s.table(ctx, t)
		if err != nil {
			return nil, err
		}
		if pk := m.primaryKey(); pk != nil {
			pkTypes[t] = pk.Type
			pkNames[t] = pk.Name
		}
	}

	return &auditStream{
		pool:     s.pool,
		codec:    codec,
		pkTypes:  pkTypes,
		pkNames:  pkNames,
		position: fromCp.SequenceID,
		until:    untilSeq,
		batch:    streamBatchSize(opts),
		poll:     streamPollInterval(opts),
	}, nil
}

func (s *Source) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

func streamBatchSize(opts core.StreamOptions) int {
	if opts.BatchSize > 0 {
		return opts.BatchSize
	}
	return 1000
}

func streamPollInterval(opts core.StreamOptions) time.Duration {
	if opts.PollInterval > 0 {
		return opts.PollInterval
	}
	return time.Second
}

// auditRow is one captured change as stored by the triggers.
type auditRow struct {
	SequenceID int64
	Table      string
	Operation  string
	RowID      string
	Data       []byte
}

// auditStream pages the audit table in sequence order.
type auditStream struct {
	pool    *pgxpool.Pool
	codec   *core.JSONCodec
	pkTypes map[string]core.Type
	pkNames map[string]string

	position int64
	until    int64 // -1 means live
	batch    int
	poll     time.Duration

	buffer []auditRow
	closed bool
}

var _ core.ChangeStream = (*auditStream)(nil)

func (a *auditStream) Next(ctx context.Context) (*core.Change, error) {
	for {
		if a.closed {
			return nil, io.EOF
		}
		if len(a.buffer) > 0 {
			rec := a.buffer[0]
			change, err := a.toChange(rec)
			if err != nil {
				return nil, err
			}
			// Position advances only once the change is handed over.
			a.buffer = a.buffer[1:]
			a.position = rec.SequenceID
			return change, nil
		}
		if err := a.fill(ctx); err != nil {
			return nil, err
		}
		if len(a.buffer) > 0 {
			continue
		}
		if a.until >= 0 {
			// Reached the end of a bounded replay.
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.poll):
		}
	}
}

func (a *auditStream) fill(ctx context.Context) error {
	q := `SELECT sequence_id, table_name, operation, row_id, change_data
		FROM surreal_sync_changes
		WHERE sequence_id > $1`
	args := []interface{}{a.position}
	if a.until >= 0 {
		q += ` AND sequence_id <= $2`
		args = append(args, a.until)
	}
	q += fmt.Sprintf(` ORDER BY sequence_id ASC LIMIT %d`, a.batch)

	rows, err := a.pool.Query(ctx, q, args...)
	if err != nil {
		return &core.SourceError{Op: "read audit table", Position: fmt.Sprint(a.position), Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var rec auditRow
		if err := rows.Scan(&rec.SequenceID, &rec.Table, &rec.Operation, &rec.RowID, &rec.Data); err != nil {
			return &core.SourceError{Op: "scan audit row", Position: fmt.Sprint(a.position), Err: err}
		}
		a.buffer = append(a.buffer, rec)
	}
	if err := rows.Err(); err != nil {
		return &core.SourceError{Op: "read audit table", Position: fmt.Sprint(a.position), Err: err}
	}
	return nil
}

func (a *auditStream) toChange(rec auditRow) (*core.Change, error) {
	op, err := core.ParseChangeOp(rec.Operation)
	if err != nil {
		return nil, err
	}
	pkType, ok := a.pkTypes[rec.Table]
	if !ok {
		// The audit table is read without a table filter, so a change of a
		// table outside the configured set fails here.
		return nil, &core.UnsupportedError{What: "audit change for unknown table " + rec.Table}
	}
	key, err := core.ParseKeyText(pkType, rec.RowID)
	if err != nil {
		return nil, err
	}

	change := &core.Change{Target: rec.Table, Op: op, Key: key}
	if op != core.OpDelete {
		fields, err := a.codec.DecodeDocument(rec.Table, json.RawMessage(rec.Data))
		if err != nil {
			return nil, err
		}
		change.After = fields
	}
	return change, nil
}

func (a *auditStream) Position() checkpoint.Checkpoint {
	return checkpoint.PostgresTrigger{SequenceID: a.position, CapturedAt: time.Now().UTC()}
}

func (a *auditStream) Close() error {
	a.closed = true
	return nil
}
