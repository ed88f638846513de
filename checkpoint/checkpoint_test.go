package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCLIRoundTrip(t *testing.T) {
	var cases = []Checkpoint{
		PostgresTrigger{SequenceID: 42},
		PostgresLSN{LSN: "0/1949850"},
		MySQL{SequenceID: 7},
		Mongo{ResumeToken: []byte{0x82, 0x00, 0x01}},
		Neo4j{CapturedAt: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)},
	}
	for _, cp := range cases {
		parsed, err := FromCLIString(cp.DatabaseType(), cp.ToCLIString())
		require.NoError(t, err, cp.DatabaseType())
		require.True(t, parsed.Equal(cp), "%s: %s", cp.DatabaseType(), cp.ToCLIString())
	}
}

func TestFromCLIStringRejectsCorruptInput(t *testing.T) {
	var cases = []struct{ dbType, input string }{
		{TypePostgresWal2json, "not-a-lsn"},
		{TypePostgresWal2json, "0"},
		{TypePostgres, "abc"},
		{TypeMySQL, "12x"},
		{TypeMongo, "zz"},
		{TypeNeo4j, "yesterday"},
		{"oracle", "1"},
	}
	for _, tc := range cases {
		_, err := FromCLIString(tc.dbType, tc.input)
		require.Error(t, err, "%s %q", tc.dbType, tc.input)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	var cases = []Checkpoint{
		PostgresTrigger{SequenceID: 42, CapturedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		PostgresLSN{LSN: "16/B374D848"},
		MySQL{SequenceID: 100, CapturedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		Mongo{ResumeToken: []byte("tok")},
		Neo4j{CapturedAt: time.Date(2024, 6, 1, 10, 30, 0, 123, time.UTC)},
	}
	for _, cp := range cases {
		data, err := Marshal(cp)
		require.NoError(t, err)
		parsed, err := Unmarshal([]byte(data))
		require.NoError(t, err)
		require.Equal(t, cp, parsed)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		`{`,
		`{"type": "oracle"}`,
		`{"type": "postgresql-wal2json", "lsn": "nope"}`,
		`{"type": "mysql"}`,
	} {
		_, err := Unmarshal([]byte(data))
		require.Error(t, err, data)
	}
}

func TestCompareLSN(t *testing.T) {
	require.Equal(t, 0, CompareLSN("0/1949850", "0/1949850"))
	require.Equal(t, -1, CompareLSN("0/1949850", "0/1949851"))
	require.Equal(t, 1, CompareLSN("1/0", "0/FFFFFFFF"))
}

func TestEqualIgnoresCapturedAt(t *testing.T) {
	a := MySQL{SequenceID: 5, CapturedAt: time.Now()}
	b := MySQL{SequenceID: 5}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(MySQL{SequenceID: 6}))
	require.False(t, a.Equal(PostgresTrigger{SequenceID: 5}))
}
