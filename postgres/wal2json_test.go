package postgres

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surreal-sync/core"
)

func testCodec() *core.JSONCodec {
	schema, err := core.ParseSchema([]byte(`
tables:
  - name: users
    fields:
      - name: id
        type: int32
        is_primary: true
      - name: name
        type: text
      - name: balance
        type: decimal(20,5)
`))
	if err != nil {
		panic(err)
	}
	return &core.JSONCodec{Schema: schema}
}

var pkNames = map[string]string{"users": "id"}

func TestParseWal2jsonInsert(t *testing.T) {
	msg, err := parseWal2json([]byte(`{
		"change": [{
			"kind": "insert",
			"schema": "public",
			"table": "users",
			"columnnames": ["id", "name", "balance"],
			"columntypes": ["integer", "text", "numeric(20,5)"],
			"columnvalues": [1, "a", 12345678901234.56789]
		}]
	}`))
	require.NoError(t, err)

	changes, err := messageChanges(msg, testCodec(), pkNames)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	c := changes[0]
	require.Equal(t, "users", c.Target)
	require.Equal(t, core.OpCreate, c.Op)
	require.Equal(t, core.Int32(1), c.Key)

	balance, _ := c.After.Get("balance")
	require.Equal(t, "12345678901234.56789", balance.(core.Decimal).Text)
}

func TestParseWal2jsonDelete(t *testing.T) {
	msg, err := parseWal2json([]byte(`{
		"change": [{
			"kind": "delete",
			"schema": "public",
			"table": "users",
			"oldkeys": {
				"keynames": ["id"],
				"keytypes": ["integer"],
				"keyvalues": [2]
			}
		}]
	}`))
	require.NoError(t, err)

	changes, err := messageChanges(msg, testCodec(), pkNames)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, core.OpDelete, changes[0].Op)
	require.Equal(t, core.Int32(2), changes[0].Key)
	require.Nil(t, changes[0].After)
}

func TestParseWal2jsonPrimaryKeyUpdateSplits(t *testing.T) {
	msg, err := parseWal2json([]byte(`{
		"change": [{
			"kind": "update",
			"schema": "public",
			"table": "users",
			"columnnames": ["id", "name", "balance"],
			"columntypes": ["integer", "text", "numeric(20,5)"],
			"columnvalues": [5, "a", 0],
			"oldkeys": {
				"keynames": ["id"],
				"keytypes": ["integer"],
				"keyvalues": [4]
			}
		}]
	}`))
	require.NoError(t, err)

	changes, err := messageChanges(msg, testCodec(), pkNames)
	require.NoError(t, err)

	// The key moved: the old row is deleted before the new one is created.
	require.Len(t, changes, 2)
	require.Equal(t, core.OpDelete, changes[0].Op)
	require.Equal(t, core.Int32(4), changes[0].Key)
	require.Equal(t, core.OpCreate, changes[1].Op)
	require.Equal(t, core.Int32(5), changes[1].Key)
}

func TestParseWal2jsonSameKeyUpdateStaysSingle(t *testing.T) {
	msg, err := parseWal2json([]byte(`{
		"change": [{
			"kind": "update",
			"schema": "public",
			"table": "users",
			"columnnames": ["id", "name", "balance"],
			"columntypes": ["integer", "text", "numeric(20,5)"],
			"columnvalues": [5, "b", 1],
			"oldkeys": {
				"keynames": ["id"],
				"keytypes": ["integer"],
				"keyvalues": [5]
			}
		}]
	}`))
	require.NoError(t, err)

	changes, err := messageChanges(msg, testCodec(), pkNames)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, core.OpUpdate, changes[0].Op)
}

func TestParseWal2jsonIgnoresUnknownTables(t *testing.T) {
	msg, err := parseWal2json([]byte(`{
		"change": [{
			"kind": "insert",
			"schema": "public",
			"table": "audit_log",
			"columnnames": ["id"],
			"columntypes": ["integer"],
			"columnvalues": [1]
		}]
	}`))
	require.NoError(t, err)

	changes, err := messageChanges(msg, testCodec(), pkNames)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestParseWal2jsonTruncateIsUnsupported(t *testing.T) {
	msg, err := parseWal2json([]byte(`{
		"change": [{"kind": "truncate", "schema": "public", "table": "users"}]
	}`))
	require.NoError(t, err)

	_, err = messageChanges(msg, testCodec(), pkNames)
	var unsErr *core.UnsupportedError
	require.True(t, errors.As(err, &unsErr))
}

func TestParseWal2jsonRejectsNonObject(t *testing.T) {
	_, err := parseWal2json([]byte(`[1, 2]`))
	require.Error(t, err)
}
