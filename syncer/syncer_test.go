package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

func TestFullSyncCopiesTablesAndBracketsCheckpoints(t *testing.T) {
	src := &fakeSource{
		tables: []string{"users", "posts"},
		rows: map[string][]core.Row{
			"users": {
				row("users", 1, map[string]core.Value{"name": core.Text("a")}),
				row("users", 2, map[string]core.Value{"name": core.Text("b")}),
			},
			"posts": {
				row("posts", 10, map[string]core.Value{"user_id": core.Int64(1), "body": core.Text("hi")}),
			},
		},
	}
	sink := newFakeSink()
	store := newMemStore()

	result, err := FullSync(context.Background(), src, sink, store, FullConfig{EmitCheckpoints: true})
	require.NoError(t, err)
	require.Equal(t, int64(3), result.Rows)

	require.ElementsMatch(t, []string{keyString(core.Int64(1)), keyString(core.Int64(2))}, sink.tableKeys("users"))
	require.ElementsMatch(t, []string{keyString(core.Int64(10))}, sink.tableKeys("posts"))

	t1 := store.checkpointAt(checkpoint.ID{DatabaseType: checkpoint.TypeMySQL, Phase: checkpoint.PhaseFullSyncStart})
	t2 := store.checkpointAt(checkpoint.ID{DatabaseType: checkpoint.TypeMySQL, Phase: checkpoint.PhaseFullSyncEnd})
	require.NotNil(t, t1)
	require.NotNil(t, t2)
	require.True(t, result.T1.Equal(t1))
	require.True(t, result.T2.Equal(t2))
}

func TestFullSyncBatchesWrites(t *testing.T) {
	var rows []core.Row
	for i := int64(1); i <= 250; i++ {
		rows = append(rows, row("users", i, nil))
	}
	src := &fakeSource{tables: []string{"users"}, rows: map[string][]core.Row{"users": rows}}
	sink := newFakeSink()

	_, err := FullSync(context.Background(), src, sink, nil, FullConfig{BatchSize: 100})
	require.NoError(t, err)
	require.Equal(t, []int{100, 100, 50}, sink.batchSizes)
}

func TestFullSyncDryRunSkipsWrites(t *testing.T) {
	src := &fakeSource{
		tables: []string{"users"},
		rows:   map[string][]core.Row{"users": {row("users", 1, nil)}},
	}
	sink := newFakeSink()

	result, err := FullSync(context.Background(), src, sink, nil, FullConfig{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Rows)
	require.Empty(t, sink.batchSizes)
	require.Empty(t, sink.tableKeys("users"))
}

func TestIncrementalAppliesAndCommits(t *testing.T) {
	src := &fakeSource{changes: []*core.Change{
		createChange("users", 1, nil),
		createChange("users", 2, nil),
		createChange("users", 3, nil),
		createChange("users", 4, nil),
		createChange("users", 5, nil),
	}}
	sink := newFakeSink()
	store := newMemStore()

	err := Incremental(context.Background(), src, sink, store,
		checkpoint.MySQL{SequenceID: 0}, nil,
		IncrementalConfig{CommitInterval: 2, EmitCheckpoints: true})
	require.NoError(t, err)

	require.Len(t, sink.appliedOps, 5)
	cp := store.checkpointAt(checkpoint.ID{DatabaseType: checkpoint.TypeMySQL, Phase: checkpoint.PhaseIncremental})
	require.Equal(t, int64(5), cp.(checkpoint.MySQL).SequenceID)
}

func TestIncrementalIdempotentApply(t *testing.T) {
	change := createChange("users", 3, map[string]core.Value{"name": core.Text("c")})
	src := &fakeSource{changes: []*core.Change{change, change}}
	sink := newFakeSink()

	err := Incremental(context.Background(), src, sink, nil,
		checkpoint.MySQL{SequenceID: 0}, nil, IncrementalConfig{})
	require.NoError(t, err)

	// Applied twice, present once, same final state as applying once.
	require.Len(t, sink.appliedOps, 2)
	require.Len(t, sink.tableKeys("users"), 1)
}

func TestIncrementalDeleteOfAbsentKeyIsNotAnError(t *testing.T) {
	src := &fakeSource{changes: []*core.Change{deleteChange("users", 99)}}
	sink := newFakeSink()

	err := Incremental(context.Background(), src, sink, nil,
		checkpoint.MySQL{SequenceID: 0}, nil, IncrementalConfig{})
	require.NoError(t, err)
	require.Empty(t, sink.tableKeys("users"))
}

func TestIncrementalRetriesTransientSinkFailures(t *testing.T) {
	src := &fakeSource{changes: []*core.Change{createChange("users", 1, nil)}}
	sink := newFakeSink()
	sink.failApplies = 1

	err := Incremental(context.Background(), src, sink, nil,
		checkpoint.MySQL{SequenceID: 0}, nil, IncrementalConfig{})
	require.NoError(t, err)
	require.Len(t, sink.tableKeys("users"), 1)
}

func TestIncrementalTypeErrorDoesNotAdvance(t *testing.T) {
	poisoned := &core.Change{Target: "users", Op: core.OpUpdate, Key: core.Int64(3)} // nil After
	src := &fakeSource{changes: []*core.Change{
		createChange("users", 1, nil),
		createChange("users", 2, nil),
		poisoned,
		createChange("users", 4, nil),
	}}
	sink := newFakeSink()
	store := newMemStore()

	err := Incremental(context.Background(), src, sink, store,
		checkpoint.MySQL{SequenceID: 0}, nil,
		IncrementalConfig{CommitInterval: 2, EmitCheckpoints: true})

	var tcErr *core.TypeConversionError
	require.True(t, errors.As(err, &tcErr))
	require.Len(t, sink.appliedOps, 2)

	// The committed position stays before the poisoned change so a restart
	// re-delivers it.
	cp := store.checkpointAt(checkpoint.ID{DatabaseType: checkpoint.TypeMySQL, Phase: checkpoint.PhaseIncremental})
	require.Equal(t, int64(2), cp.(checkpoint.MySQL).SequenceID)
}

func TestIncrementalPreservesSourceOrder(t *testing.T) {
	src := &fakeSource{changes: []*core.Change{
		createChange("users", 1, nil),
		deleteChange("users", 1),
		createChange("users", 1, map[string]core.Value{"name": core.Text("again")}),
	}}
	sink := newFakeSink()

	err := Incremental(context.Background(), src, sink, nil,
		checkpoint.MySQL{SequenceID: 0}, nil, IncrementalConfig{})
	require.NoError(t, err)

	require.Equal(t, []string{
		"users:create:" + keyString(core.Int64(1)),
		"users:delete:" + keyString(core.Int64(1)),
		"users:create:" + keyString(core.Int64(1)),
	}, sink.appliedOps)
	require.Len(t, sink.tableKeys("users"), 1)
}

func TestIncrementalCrashRestartEquivalence(t *testing.T) {
	changes := []*core.Change{
		createChange("users", 1, nil),
		createChange("users", 2, nil),
		createChange("users", 3, nil),
		deleteChange("users", 1),
		createChange("users", 4, nil),
	}

	// Uninterrupted run.
	wantSink := newFakeSink()
	err := Incremental(context.Background(), &fakeSource{changes: changes}, wantSink, nil,
		checkpoint.MySQL{SequenceID: 0}, nil, IncrementalConfig{})
	require.NoError(t, err)

	// Interrupted run: stop after three changes, restart from the last
	// committed checkpoint against the same target.
	src := &fakeSource{changes: changes}
	sink := newFakeSink()
	store := newMemStore()
	err = Incremental(context.Background(), src, sink, store,
		checkpoint.MySQL{SequenceID: 0}, checkpoint.MySQL{SequenceID: 3},
		IncrementalConfig{CommitInterval: 2, EmitCheckpoints: true})
	require.NoError(t, err)

	resume := store.checkpointAt(checkpoint.ID{DatabaseType: checkpoint.TypeMySQL, Phase: checkpoint.PhaseIncremental})
	err = Incremental(context.Background(), src, sink, store, resume, nil,
		IncrementalConfig{CommitInterval: 2, EmitCheckpoints: true})
	require.NoError(t, err)

	require.ElementsMatch(t, wantSink.tableKeys("users"), sink.tableKeys("users"))
}

func TestHandoverClosesShadowWindow(t *testing.T) {
	// The scan observes users 1 and 2. While it runs, user 3 is inserted and
	// user 2 deleted; both land in the change log inside (t1, t2].
	src := &fakeSource{
		tables: []string{"users"},
		rows: map[string][]core.Row{"users": {
			row("users", 1, nil),
			row("users", 2, nil),
		}},
	}
	src.scanHook = func(string) {
		src.changes = append(src.changes,
			createChange("users", 3, nil),
			deleteChange("users", 2),
		)
	}
	sink := newFakeSink()
	store := newMemStore()

	err := SyncWithHandover(context.Background(), src, sink, store,
		FullConfig{EmitCheckpoints: true},
		IncrementalConfig{EmitCheckpoints: true})
	require.NoError(t, err)

	// Post-condition: target equals the source state observed at t2.
	require.ElementsMatch(t, []string{
		keyString(core.Int64(1)),
		keyString(core.Int64(3)),
	}, sink.tableKeys("users"))
}
