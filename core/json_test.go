package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func typ(k Kind) *Type {
	t := Simple(k)
	return &t
}

func TestDecodeValueCoercion(t *testing.T) {
	codec := &JSONCodec{}

	var cases = []struct {
		name     string
		raw      string
		declared *Type
		want     Value
	}{
		{"bool", `true`, typ(KindBool), Bool(true)},
		{"bool from 0/1", `1`, typ(KindBool), Bool(true)},
		{"int32", `42`, typ(KindInt32), Int32(42)},
		{"int64", `9007199254740993`, typ(KindInt64), Int64(9007199254740993)},
		{"int64 from string", `"9007199254740993"`, typ(KindInt64), Int64(9007199254740993)},
		{"float64", `1.5`, typ(KindFloat64), Float64(1.5)},
		{"text", `"hello"`, typ(KindText), Text("hello")},
		{"uuid", `"b4b4a0e0-8b52-47a5-bfcd-6b3b8a67e0a1"`, typ(KindUuid), mustUUID("b4b4a0e0-8b52-47a5-bfcd-6b3b8a67e0a1")},
		{"null", `null`, typ(KindText), Null{Of: Simple(KindText)}},
		{"bytes hex", `"\\x68690a"`, typ(KindBytes), Bytes{0x68, 0x69, 0x0a}},
		{"bytes base64", `"aGk="`, typ(KindBytes), Bytes{'h', 'i'}},
		{"json passthrough", `{"a": 1}`, typ(KindJson), Json{Raw: json.RawMessage(`{"a":1}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := codec.DecodeValue("t.f", json.RawMessage(tc.raw), tc.declared)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func mustUUID(s string) Value {
	v, err := ParseKeyText(Simple(KindUuid), s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDecodeValueDecimalPreservesExactText(t *testing.T) {
	codec := &JSONCodec{}
	declared := DecimalType(20, 5)

	// The trailing digits and scale must survive; a float round-trip would
	// not keep them.
	got, err := codec.DecodeValue("t.f", json.RawMessage(`12345678901234.56789`), &declared)
	require.NoError(t, err)
	require.Equal(t, Decimal{Text: "12345678901234.56789", Precision: 20, Scale: 5}, got)

	got, err = codec.DecodeValue("t.f", json.RawMessage(`"0.50000"`), &declared)
	require.NoError(t, err)
	require.Equal(t, "0.50000", got.(Decimal).Text)
}

func TestDecodeValueMismatchFails(t *testing.T) {
	codec := &JSONCodec{}

	_, err := codec.DecodeValue("t.f", json.RawMessage(`"nope"`), typ(KindInt32))
	var tcErr *TypeConversionError
	require.True(t, errors.As(err, &tcErr))
	require.Equal(t, "t.f", tcErr.Field)

	_, err = codec.DecodeValue("t.f", json.RawMessage(`3.5`), typ(KindBool))
	require.True(t, errors.As(err, &tcErr))
}

func TestDecodeValueTemporal(t *testing.T) {
	codec := &JSONCodec{}

	got, err := codec.DecodeValue("t.f", json.RawMessage(`"2024-06-01 10:30:00+00"`), typ(KindTimestamp))
	require.NoError(t, err)
	ts := got.(Timestamp)
	require.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), ts.T)
	require.Equal(t, "+00:00", ts.SourceZone)

	got, err = codec.DecodeValue("t.f", json.RawMessage(`"10:30:45"`), typ(KindTime))
	require.NoError(t, err)
	require.Equal(t, "1970-01-01T10:30:45Z", got.(Time).T.Format(time.RFC3339Nano))

	got, err = codec.DecodeValue("t.f", json.RawMessage(`"2024-06-01"`), typ(KindDate))
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), got.(Date).T)
}

func TestDecodeValueInference(t *testing.T) {
	codec := &JSONCodec{}

	got, err := codec.DecodeValue("t.f", json.RawMessage(`42`), nil)
	require.NoError(t, err)
	require.Equal(t, Int64(42), got)

	got, err = codec.DecodeValue("t.f", json.RawMessage(`1.25`), nil)
	require.NoError(t, err)
	require.Equal(t, Decimal{Text: "1.25"}, got)

	got, err = codec.DecodeValue("t.f", json.RawMessage(`[1, 2, 3]`), nil)
	require.NoError(t, err)
	require.Equal(t, Array{Elem: Simple(KindInt64), Items: []Value{Int64(1), Int64(2), Int64(3)}}, got)

	// Heterogeneous arrays stay raw JSON.
	got, err = codec.DecodeValue("t.f", json.RawMessage(`[1, "two"]`), nil)
	require.NoError(t, err)
	require.Equal(t, Json{Raw: json.RawMessage(`[1,"two"]`)}, got)
}

func TestDecodeDocumentPreservesFieldOrder(t *testing.T) {
	codec := &JSONCodec{}
	fields, err := codec.DecodeDocument("users", json.RawMessage(`{"id": 1, "name": "a", "age": 30}`))
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name", "age"}, fields.Names())
}

func TestDecodeDocumentBooleanPaths(t *testing.T) {
	codec := &JSONCodec{
		BooleanPaths: map[string]struct{}{"users.active": {}},
	}
	fields, err := codec.DecodeDocument("users", json.RawMessage(`{"id": 1, "active": 1}`))
	require.NoError(t, err)

	active, ok := fields.Get("active")
	require.True(t, ok)
	require.Equal(t, Bool(true), active)

	id, _ := fields.Get("id")
	require.Equal(t, Int64(1), id)
}

func TestDecodeDocumentWithSchema(t *testing.T) {
	schema, err := ParseSchema([]byte(`
tables:
  - name: users
    fields:
      - name: id
        type: int32
        is_primary: true
      - name: score
        type: decimal(10,2)
`))
	require.NoError(t, err)

	codec := &JSONCodec{Schema: schema}
	fields, err := codec.DecodeDocument("users", json.RawMessage(`{"id": 7, "score": 12.50}`))
	require.NoError(t, err)

	id, _ := fields.Get("id")
	require.Equal(t, Int32(7), id)
	score, _ := fields.Get("score")
	require.Equal(t, Decimal{Text: "12.50", Precision: 10, Scale: 2}, score)
}
