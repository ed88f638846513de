package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypeRoundTrip(t *testing.T) {
	var cases = []Type{
		Simple(KindBool),
		Simple(KindInt64),
		Simple(KindText),
		Simple(KindTimestamp),
		DecimalType(20, 5),
		ArrayOf(Simple(KindText)),
		SetOf(Simple(KindInt32)),
		RecordRefType("users"),
	}
	for _, want := range cases {
		got, err := ParseType(want.String())
		require.NoError(t, err, want.String())
		require.True(t, got.Equal(want), "%s parsed as %s", want, got)
	}
}

func TestParseTypeUnknown(t *testing.T) {
	_, err := ParseType("varchar(20)")
	var unsErr *UnsupportedError
	require.True(t, errors.As(err, &unsErr))
}

func TestTypeEquality(t *testing.T) {
	require.True(t, DecimalType(10, 2).Equal(DecimalType(10, 2)))
	require.False(t, DecimalType(10, 2).Equal(DecimalType(10, 3)))
	require.False(t, Simple(KindInt32).Equal(Simple(KindInt64)))
	require.True(t, ArrayOf(Simple(KindText)).Equal(ArrayOf(Simple(KindText))))
	require.False(t, ArrayOf(Simple(KindText)).Equal(ArrayOf(Simple(KindBool))))
	require.False(t, RecordRefType("a").Equal(RecordRefType("b")))
}

func TestFieldsOrderAndLookup(t *testing.T) {
	f := NewFields()
	f.Set("b", Int64(1))
	f.Set("a", Text("x"))
	f.Set("b", Int64(2)) // replace keeps position

	require.Equal(t, []string{"b", "a"}, f.Names())
	v, ok := f.Get("b")
	require.True(t, ok)
	require.Equal(t, Int64(2), v)
	require.Equal(t, 2, f.Len())
}
