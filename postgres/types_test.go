package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surreal-sync/core"
)

func TestColumnTypeMapping(t *testing.T) {
	var cases = []struct {
		dataType string
		want     core.Type
	}{
		{"boolean", core.Simple(core.KindBool)},
		{"integer", core.Simple(core.KindInt32)},
		{"bigint", core.Simple(core.KindInt64)},
		{"real", core.Simple(core.KindFloat32)},
		{"double precision", core.Simple(core.KindFloat64)},
		{"text", core.Simple(core.KindText)},
		{"bytea", core.Simple(core.KindBytes)},
		{"uuid", core.Simple(core.KindUuid)},
		{"date", core.Simple(core.KindDate)},
		{"time without time zone", core.Simple(core.KindTime)},
		{"timestamp without time zone", core.Simple(core.KindDateTime)},
		{"timestamp with time zone", core.Simple(core.KindTimestamp)},
		{"interval", core.Simple(core.KindInterval)},
		{"json", core.Simple(core.KindJson)},
		{"jsonb", core.Simple(core.KindJsonb)},
	}
	for _, tc := range cases {
		got, err := columnType(tc.dataType, 0, 0, "")
		require.NoError(t, err, tc.dataType)
		require.True(t, got.Equal(tc.want), tc.dataType)
	}

	got, err := columnType("numeric", 20, 5, "")
	require.NoError(t, err)
	require.Equal(t, core.DecimalType(20, 5), got)

	got, err = columnType("array", 0, 0, "_int4")
	require.NoError(t, err)
	require.True(t, got.Equal(core.ArrayOf(core.Simple(core.KindInt32))))
}

func TestColumnTypeUnknownFailsLoudly(t *testing.T) {
	_, err := columnType("tsvector", 0, 0, "")
	var unsErr *core.UnsupportedError
	require.True(t, errors.As(err, &unsErr))
}

func TestEncodeLiteral(t *testing.T) {
	var cases = []struct {
		value core.Value
		want  string
	}{
		{core.Bool(true), "TRUE"},
		{core.Int64(42), "42"},
		{core.Decimal{Text: "12345678901234.56789"}, "12345678901234.56789"},
		{core.Text("it's"), "'it''s'"},
		{core.Null{}, "NULL"},
		{core.Bytes{0x68, 0x69}, `'\x6869'::bytea`},
		{core.Date{T: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}, "'2024-06-01'::date"},
		{core.Json{Raw: []byte(`{"a":1}`)}, `'{"a":1}'::json`},
		{
			core.Array{Elem: core.Simple(core.KindInt64), Items: []core.Value{core.Int64(1), core.Int64(2)}},
			"ARRAY[1, 2]",
		},
	}
	for _, tc := range cases {
		got, err := EncodeLiteral(tc.value)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := EncodeLiteral(core.RecordRef{Table: "t", ID: core.Int64(1)})
	require.Error(t, err)
}

func TestTriggerName(t *testing.T) {
	require.Equal(t, "surreal_sync_trigger_users", triggerName("users"))
}
