package syncer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// fakeSource is an in-memory source whose change log is a sequence of
// changes numbered 1..N, mimicking an audit table.
type fakeSource struct {
	tables  []string
	rows    map[string][]core.Row
	changes []*core.Change

	// scanHook runs after each full table scan, simulating writes concurrent
	// with the scan.
	scanHook func(table string)

	positionCalls int
}

func (f *fakeSource) CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error) {
	f.positionCalls++
	return checkpoint.MySQL{SequenceID: int64(len(f.changes)), CapturedAt: time.Now().UTC()}, nil
}

func (f *fakeSource) Tables(ctx context.Context) ([]string, error) { return f.tables, nil }

func (f *fakeSource) FullScan(ctx context.Context, table string) (core.Scan, error) {
	rows := append([]core.Row(nil), f.rows[table]...)
	return &fakeScan{source: f, table: table, rows: rows}, nil
}

func (f *fakeSource) OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts core.StreamOptions) (core.ChangeStream, error) {
	fromSeq := from.(checkpoint.MySQL).SequenceID
	untilSeq := int64(len(f.changes))
	if until != nil {
		untilSeq = until.(checkpoint.MySQL).SequenceID
	}
	var pending []*core.Change
	var positions []int64
	for i := fromSeq; i < untilSeq && i < int64(len(f.changes)); i++ {
		pending = append(pending, f.changes[i])
		positions = append(positions, i+1)
	}
	return &fakeStream{changes: pending, positions: positions, position: fromSeq}, nil
}

func (f *fakeSource) Close(ctx context.Context) error { return nil }

type fakeScan struct {
	source *fakeSource
	table  string
	rows   []core.Row
	next   int
}

func (s *fakeScan) Next(ctx context.Context) (core.ScanItem, error) {
	if s.next >= len(s.rows) {
		if s.source.scanHook != nil {
			s.source.scanHook(s.table)
			s.source.scanHook = nil
		}
		return core.ScanItem{}, io.EOF
	}
	row := s.rows[s.next]
	s.next++
	return core.ScanItem{Row: &row}, nil
}

func (s *fakeScan) Close() error { return nil }

type fakeStream struct {
	changes   []*core.Change
	positions []int64
	next      int
	position  int64
	closed    bool
}

func (s *fakeStream) Next(ctx context.Context) (*core.Change, error) {
	if s.closed || s.next >= len(s.changes) {
		return nil, io.EOF
	}
	c := s.changes[s.next]
	s.position = s.positions[s.next]
	s.next++
	if c.After == nil && c.Op != core.OpDelete {
		// A poisoned change standing in for a codec failure.
		return nil, &core.TypeConversionError{Field: c.Target, Got: "poisoned change"}
	}
	return c, nil
}

func (s *fakeStream) Position() checkpoint.Checkpoint {
	return checkpoint.MySQL{SequenceID: s.position}
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeSink is an idempotent in-memory target.
type fakeSink struct {
	mu         sync.Mutex
	rows       map[string]map[string]core.Row
	relations  map[string]core.Relation
	batchSizes []int
	appliedOps []string

	failApplies int // fail the next N ApplyChange calls with a SinkError
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		rows:      make(map[string]map[string]core.Row),
		relations: make(map[string]core.Relation),
	}
}

func keyString(v core.Value) string { return fmt.Sprintf("%#v", v) }

func (s *fakeSink) WriteRows(ctx context.Context, rows []core.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSizes = append(s.batchSizes, len(rows))
	for _, r := range rows {
		if s.rows[r.Table] == nil {
			s.rows[r.Table] = make(map[string]core.Row)
		}
		s.rows[r.Table][keyString(r.PrimaryKey)] = r
	}
	return nil
}

func (s *fakeSink) WriteRelations(ctx context.Context, relations []core.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range relations {
		s.relations[r.Name+"/"+keyString(r.ID)] = r
	}
	return nil
}

func (s *fakeSink) ApplyChange(ctx context.Context, c *core.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApplies > 0 {
		s.failApplies--
		return &core.SinkError{Op: "apply", Err: fmt.Errorf("transient write failure")}
	}
	s.appliedOps = append(s.appliedOps, fmt.Sprintf("%s:%s:%s", c.Target, c.Op, keyString(c.Key)))
	switch c.Op {
	case core.OpCreate, core.OpUpdate:
		if s.rows[c.Target] == nil {
			s.rows[c.Target] = make(map[string]core.Row)
		}
		s.rows[c.Target][keyString(c.Key)] = *c.Row()
	case core.OpDelete:
		// Absent keys delete as a no-op.
		delete(s.rows[c.Target], keyString(c.Key))
	}
	return nil
}

func (s *fakeSink) tableKeys(table string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.rows[table] {
		keys = append(keys, k)
	}
	return keys
}

// memStore is an in-memory checkpoint store.
type memStore struct {
	mu   sync.Mutex
	data map[checkpoint.ID]checkpoint.Stored
}

func newMemStore() *memStore {
	return &memStore{data: make(map[checkpoint.ID]checkpoint.Stored)}
}

func (m *memStore) Store(ctx context.Context, id checkpoint.ID, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = checkpoint.Stored{
		Data:         data,
		DatabaseType: id.DatabaseType,
		Phase:        id.Phase,
		CreatedAt:    time.Now().UTC(),
	}
	return nil
}

func (m *memStore) Read(ctx context.Context, id checkpoint.ID) (*checkpoint.Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &stored, nil
}

func (m *memStore) checkpointAt(id checkpoint.ID) checkpoint.Checkpoint {
	stored, _ := m.Read(context.Background(), id)
	if stored == nil {
		return nil
	}
	cp, err := stored.Checkpoint()
	if err != nil {
		panic(err)
	}
	return cp
}

// helpers to build test data

func row(table string, id int64, fields map[string]core.Value) core.Row {
	f := core.NewFields()
	f.Set("id", core.Int64(id))
	for k, v := range fields {
		f.Set(k, v)
	}
	return core.Row{Table: table, PrimaryKey: core.Int64(id), Fields: f}
}

func createChange(table string, id int64, fields map[string]core.Value) *core.Change {
	r := row(table, id, fields)
	return &core.Change{Target: table, Op: core.OpCreate, Key: r.PrimaryKey, After: r.Fields}
}

func deleteChange(table string, id int64) *core.Change {
	return &core.Change{Target: table, Op: core.OpDelete, Key: core.Int64(id)}
}
