package postgres

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// DefaultSlotName is the logical replication slot the wal2json backend
// creates and consumes. The slot must not be dropped while any run is in
// flight.
const DefaultSlotName = "surreal_sync"

// LogicalConfig configures the wal2json logical-replication source. It
// requires wal_level=logical and the wal2json output plugin on the server.
type LogicalConfig struct {
	ConnString string
	SlotName   string
	Tables     []string
	Schema     *core.Schema
}

// LogicalSource is the wal2json capture backend. Full scans are shared with
// the trigger backend; only change capture differs.
type LogicalSource struct {
	pool *pgxpool.Pool
	cfg  LogicalConfig

	meta map[string]*tableMeta
}

var _ core.Source = (*LogicalSource)(nil)

// OpenLogical connects and ensures the replication slot exists.
func OpenLogical(ctx context.Context, cfg LogicalConfig) (*LogicalSource, error) {
	if cfg.SlotName == "" {
		cfg.SlotName = DefaultSlotName
	}
	pool, err := NewPool(ctx, cfg.ConnString)
	if err != nil {
		return nil, err
	}
	s := &LogicalSource{pool: pool, cfg: cfg, meta: make(map[string]*tableMeta)}
	if err := s.ensureSlot(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *LogicalSource) ensureSlot(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_replication_slots WHERE slot_name = $1)`,
		s.cfg.SlotName).Scan(&exists)
	if err != nil {
		return &core.SourceError{Op: "check replication slot", Err: err}
	}
	if exists {
		return nil
	}
	_, err = s.pool.Exec(ctx,
		`SELECT pg_create_logical_replication_slot($1, 'wal2json')`, s.cfg.SlotName)
	if err != nil {
		return &core.SourceError{Op: "create replication slot (is wal2json installed and wal_level=logical?)", Err: err}
	}
	log.WithField("slot", s.cfg.SlotName).Info("created logical replication slot")
	return nil
}

func (s *LogicalSource) table(ctx context.Context, name string) (*tableMeta, error) {
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

// CurrentPosition probes the current WAL write position.
func (s *LogicalSource) CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error) {
	var lsn string
	if err := s.pool.QueryRow(ctx, `SELECT pg_current_wal_lsn()::text`).Scan(&lsn); err != nil {
		return nil, &core.SourceError{Op: "read current wal lsn", Err: err}
	}
	return checkpoint.PostgresLSN{LSN: lsn}, nil
}

func (s *LogicalSource) Tables(ctx context.Context) ([]string, error) {
	return userTables(ctx, s.pool)
}

func (s *LogicalSource) FullScan(ctx context.Context, table string) (core.Scan, error) {
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
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT row_to_json(t.*)::text FROM %q t`, table))
	if err != nil {
		return nil, &core.SourceError{Op: "full scan " + table, Err: err}
	}
	return &tableScan{rows: rows, table: table, pkName: pk.Name, codec: codec}, nil
}

func (s *LogicalSource) codec(ctx context.Context, tables []string) (*core.JSONCodec, error) {
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

func (s *LogicalSource) OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts core.StreamOptions) (core.ChangeStream, error) {
	fromCp, ok := from.(checkpoint.PostgresLSN)
	if !ok {
		return nil, &core.ConfigError{Msg: fmt.Sprintf("wal2json source requires an LSN checkpoint, got %T", from)}
	}
	untilLSN := ""
	if until != nil {
		untilCp, ok := until.(checkpoint.PostgresLSN)
		if !ok {
			return nil, &core.ConfigError{Msg: fmt.Sprintf("wal2json source requires an LSN until checkpoint, got %T", until)}
		}
		untilLSN = untilCp.LSN
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
	pkNames := make(map[string]string, len(tables))
	for _, t := range tables {
		m, err := s.table(ctx, t)
		if err != nil {
			return nil, err
		}
		if pk := m.primaryKey(); pk != nil {
			pkNames[t] = pk.Name
		}
	}

	return &walStream{
		pool:     s.pool,
		slot:     s.cfg.SlotName,
		codec:    codec,
		pkNames:  pkNames,
		position: fromCp.LSN,
		until:    untilLSN,
		batch:    streamBatchSize(opts),
		poll:     streamPollInterval(opts),
	}, nil
}

func (s *LogicalSource) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}

// walStream peeks the replication slot and advances it lazily: the slot's
// confirmed position moves to the last emitted LSN only on the next poll, by
// which time the driver has either applied every emitted change or stopped
// asking. The slot therefore never advances past an un-applied change.
type walStream struct {
	pool    *pgxpool.Pool
	slot    string
	codec   *core.JSONCodec
	pkNames map[string]string

	position  string // LSN of the last emitted change
	peeked    string // highest LSN already buffered
	confirmed string // slot position already advanced to
	until     string
	batch     int
	poll      time.Duration

	buffer []walChange
	closed bool
	done   bool
}

// walChange pairs a decoded change with the LSN of its WAL message.
type walChange struct {
	change *core.Change
	lsn    string
}

var _ core.ChangeStream = (*walStream)(nil)

func (w *walStream) Next(ctx context.Context) (*core.Change, error) {
	for {
		if w.closed {
			return nil, io.EOF
		}
		if len(w.buffer) > 0 {
			entry := w.buffer[0]
			w.buffer = w.buffer[1:]
			w.position = entry.lsn
			return entry.change, nil
		}
		if w.done {
			return nil, io.EOF
		}
		if err := w.fill(ctx); err != nil {
			return nil, err
		}
		if len(w.buffer) > 0 {
			continue
		}
		if w.until != "" {
			// A bounded replay ends once the slot has nothing below until.
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.poll):
		}
	}
}

func (w *walStream) fill(ctx context.Context) error {
	if w.position != "" && (w.confirmed == "" || checkpoint.CompareLSN(w.position, w.confirmed) > 0) {
		if _, err := w.pool.Exec(ctx,
			`SELECT pg_replication_slot_advance($1, $2::pg_lsn)`, w.slot, w.position); err != nil {
			return &core.SourceError{Op: "advance replication slot", Position: w.position, Err: err}
		}
		w.confirmed = w.position
	}

	rows, err := w.pool.Query(ctx,
		`SELECT lsn::text, data FROM pg_logical_slot_peek_changes($1, NULL, $2,
			'format-version', '1', 'include-timestamp', 'true')`,
		w.slot, w.batch)
	if err != nil {
		return &core.SourceError{Op: "peek replication slot", Position: w.position, Err: err}
	}
	defer rows.Close()

	type walEntry struct {
		lsn  string
		data []byte
	}
	var entries []walEntry
	for rows.Next() {
		var e walEntry
		if err := rows.Scan(&e.lsn, &e.data); err != nil {
			return &core.SourceError{Op: "scan wal entry", Position: w.position, Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return &core.SourceError{Op: "peek replication slot", Position: w.position, Err: err}
	}

	safe := w.position
	for _, e := range entries {
		if w.peeked != "" && checkpoint.CompareLSN(e.lsn, w.peeked) <= 0 {
			continue
		}
		if w.position != "" && checkpoint.CompareLSN(e.lsn, w.position) <= 0 {
			continue
		}
		if w.until != "" && checkpoint.CompareLSN(e.lsn, w.until) > 0 {
			w.done = true
			break
		}
		msg, err := parseWal2json(e.data)
		if err != nil {
			return err
		}
		changes, err := messageChanges(msg, w.codec, w.pkNames)
		if err != nil {
			return err
		}
		// A message's LSN becomes the resumable position only once its last
		// change was handed over; earlier changes of the same message keep
		// the prior safe point, so a checkpoint between them re-delivers the
		// whole message and idempotent replay absorbs the repeats.
		for i, c := range changes {
			lsn := safe
			if i == len(changes)-1 {
				lsn = e.lsn
			}
			w.buffer = append(w.buffer, walChange{change: c, lsn: lsn})
		}
		if len(changes) > 0 {
			safe = e.lsn
		}
		w.peeked = e.lsn
	}
	return nil
}

func (w *walStream) Position() checkpoint.Checkpoint {
	return checkpoint.PostgresLSN{LSN: w.position}
}

func (w *walStream) Close() error {
	w.closed = true
	return nil
}
