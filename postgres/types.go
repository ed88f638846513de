// Package postgres implements the PostgreSQL source adapter with two
// change-capture backends: trigger+audit-table capture, and logical
// replication through the wal2json output plugin.
package postgres

import (
	"fmt"
	"strings"

	"github.com/surrealdb/surreal-sync/core"
)

// columnType maps a PostgreSQL data type name to its universal type. The
// mapping is total over supported types; anything else fails loudly.
func columnType(dataType string, precision, scale int, elemType string) (core.Type, error) {
	switch strings.ToLower(dataType) {
	case "boolean", "bool":
		return core.Simple(core.KindBool), nil
	case "smallint", "int2", "integer", "int4", "serial":
		return core.Simple(core.KindInt32), nil
	case "bigint", "int8", "bigserial":
		return core.Simple(core.KindInt64), nil
	case "real", "float4":
		return core.Simple(core.KindFloat32), nil
	case "double precision", "float8":
		return core.Simple(core.KindFloat64), nil
	case "numeric", "decimal":
		return core.DecimalType(precision, scale), nil
	case "text", "character varying", "varchar", "character", "char", "bpchar", "name":
		return core.Simple(core.KindText), nil
	case "bytea":
		return core.Simple(core.KindBytes), nil
	case "uuid":
		return core.Simple(core.KindUuid), nil
	case "date":
		return core.Simple(core.KindDate), nil
	case "time without time zone", "time with time zone", "time", "timetz":
		return core.Simple(core.KindTime), nil
	case "timestamp without time zone", "timestamp":
		return core.Simple(core.KindDateTime), nil
	case "timestamp with time zone", "timestamptz":
		return core.Simple(core.KindTimestamp), nil
	case "interval":
		return core.Simple(core.KindInterval), nil
	case "json":
		return core.Simple(core.KindJson), nil
	case "jsonb":
		return core.Simple(core.KindJsonb), nil
	case "array":
		elem, err := columnType(elemUDTName(elemType), 0, 0, "")
		if err != nil {
			return core.Type{}, err
		}
		return core.ArrayOf(elem), nil
	}
	return core.Type{}, &core.UnsupportedError{What: fmt.Sprintf("postgresql type %q", dataType)}
}

// elemUDTName maps an array udt_name like "_int4" to its element type name.
func elemUDTName(udt string) string {
	return strings.TrimPrefix(udt, "_")
}

// column is one introspected column of a synced table.
type column struct {
	Name      string
	Type      core.Type
	Nullable  bool
	IsPrimary bool
}

// tableMeta is the introspected shape of one table.
type tableMeta struct {
	Name    string
	Columns []column
}

func (t *tableMeta) primaryKey() *column {
	for i := range t.Columns {
		if t.Columns[i].IsPrimary {
			return &t.Columns[i]
		}
	}
	return nil
}

// asSchema renders introspected metadata as a core schema so the shared JSON
// codec coerces against it.
func asSchema(tables []tableMeta) *core.Schema {
	s := &core.Schema{}
	for _, t := range tables {
		td := core.TableDef{Name: t.Name}
		for _, c := range t.Columns {
			td.Fields = append(td.Fields, core.NewFieldDef(c.Name, c.Type, c.Nullable, c.IsPrimary))
		}
		s.Tables = append(s.Tables, td)
	}
	return s
}
