package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const schemaYAML = `
tables:
  - name: users
    fields:
      - name: id
        type: int64
        is_primary: true
      - name: name
        type: text
        nullable: true
      - name: profile
        type: json
  - name: orders
    fields:
      - name: id
        type: uuid
        is_primary: true
      - name: total
        type: decimal(20,5)
      - name: tags
        type: array<text>
`

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(schemaYAML), 0o644))

	schema, err := LoadSchema(path)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 2)

	users := schema.Table("users")
	require.NotNil(t, users)
	require.Equal(t, "id", users.PrimaryKey().Name)
	require.Equal(t, Simple(KindInt64), users.PrimaryKey().ParsedType())

	total := schema.DeclaredType("orders", "total")
	require.NotNil(t, total)
	require.Equal(t, DecimalType(20, 5), *total)

	tags := schema.DeclaredType("orders", "tags")
	require.NotNil(t, tags)
	require.Equal(t, ArrayOf(Simple(KindText)), *tags)

	require.Nil(t, schema.DeclaredType("users", "missing"))
	require.Nil(t, schema.DeclaredType("missing", "id"))
}

func TestLoadSchemaRejectsUnknownType(t *testing.T) {
	_, err := ParseSchema([]byte(`
tables:
  - name: t
    fields:
      - name: f
        type: varchar
`))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestJSONFieldPaths(t *testing.T) {
	schema, err := ParseSchema([]byte(schemaYAML))
	require.NoError(t, err)
	require.Equal(t, []string{"users.profile"}, schema.JSONFieldPaths())
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, err := LoadSchema(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
}
