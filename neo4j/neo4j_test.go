package neo4j

import (
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

func TestDecodeValueScalars(t *testing.T) {
	var cases = []struct {
		in   interface{}
		want core.Value
	}{
		{nil, core.Null{}},
		{true, core.Bool(true)},
		{int64(42), core.Int64(42)},
		{1.5, core.Float64(1.5)},
		{"hi", core.Text("hi")},
		{[]byte{0x01}, core.Bytes{0x01}},
	}
	for _, tc := range cases {
		got, err := decodeValue("n.p", tc.in, nil)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestDecodeValueTemporalNormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	in := time.Date(2024, 6, 1, 10, 30, 0, 0, loc)

	got, err := decodeValue("n.at", in, nil)
	require.NoError(t, err)
	dt := got.(core.DateTime)
	require.Equal(t, time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC), dt.T)
	require.Equal(t, "+01:00", dt.SourceZone)
}

func TestDecodeValueJSONProperty(t *testing.T) {
	declared := core.Simple(core.KindJson)
	got, err := decodeValue("n.profile", `{"a": 1}`, &declared)
	require.NoError(t, err)
	require.Equal(t, core.Json{Raw: []byte(`{"a": 1}`)}, got)

	_, err = decodeValue("n.profile", `{broken`, &declared)
	var tcErr *core.TypeConversionError
	require.True(t, errors.As(err, &tcErr))
}

func TestDecodeValueListAndMap(t *testing.T) {
	got, err := decodeValue("n.tags", []interface{}{"a", "b"}, nil)
	require.NoError(t, err)
	require.Equal(t, core.Array{Elem: core.Simple(core.KindText), Items: []core.Value{core.Text("a"), core.Text("b")}}, got)

	got, err = decodeValue("n.meta", map[string]interface{}{"x": int64(1)}, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"x": 1}`, string(got.(core.Json).Raw))
}

func TestNodeToRow(t *testing.T) {
	node := dbtype.Node{
		ElementId: "4:abc:17",
		Labels:    []string{"User"},
		Props: map[string]interface{}{
			"id":   int64(1),
			"name": "a",
		},
	}
	row, err := nodeToRow(nil, "User", node)
	require.NoError(t, err)
	require.Equal(t, core.Int64(1), row.PrimaryKey)

	// Sorted property order keeps output deterministic.
	require.Equal(t, []string{"id", "name"}, row.Fields.Names())

	// Nodes without an id property key on the element id.
	delete(node.Props, "id")
	row, err = nodeToRow(nil, "User", node)
	require.NoError(t, err)
	require.Equal(t, core.Text("4:abc:17"), row.PrimaryKey)
}

func TestCoerceValueMismatchFails(t *testing.T) {
	declared := core.Simple(core.KindBool)
	_, err := decodeValue("n.p", int64(2), &declared)
	var tcErr *core.TypeConversionError
	require.True(t, errors.As(err, &tcErr))
}

func TestCheckpointRoundTrip(t *testing.T) {
	// The poll position round-trips through its CLI form.
	at := time.Date(2024, 6, 1, 10, 30, 0, 500000000, time.UTC)
	stream := &pollStream{position: at}
	cp := stream.Position()
	require.Equal(t, "2024-06-01T10:30:00.5Z", cp.ToCLIString())

	parsed, err := checkpoint.FromCLIString(checkpoint.TypeNeo4j, cp.ToCLIString())
	require.NoError(t, err)
	require.True(t, parsed.Equal(cp))
}

func TestCypherLiteral(t *testing.T) {
	var cases = []struct {
		value core.Value
		want  string
	}{
		{core.Bool(true), "true"},
		{core.Int64(42), "42"},
		{core.Text("it's"), `'it\'s'`},
		{core.Null{}, "null"},
		{
			core.Array{Elem: core.Simple(core.KindInt64), Items: []core.Value{core.Int64(1), core.Int64(2)}},
			"[1, 2]",
		},
		{
			core.DateTime{T: time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)},
			"datetime('2024-06-01T08:30:00Z')",
		},
	}
	for _, tc := range cases {
		got, err := CypherLiteral(tc.value)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := CypherLiteral(core.Bytes{0x01})
	require.Error(t, err)
}
