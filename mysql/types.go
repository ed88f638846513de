// Package mysql implements the MySQL source adapter using trigger+audit-table
// change capture, which works on every MySQL deployment from 5.7 up without
// binlog access.
package mysql

import (
	"fmt"
	"strings"

	"github.com/surrealdb/surreal-sync/core"
)

// columnType maps a MySQL data type name to its universal type. TINYINT(1)
// is the conventional boolean encoding and maps to Bool; all other integer
// widths keep their numeric kind.
func columnType(dataType, columnType string, precision, scale int) (core.Type, error) {
	switch strings.ToLower(dataType) {
	case "tinyint":
		if strings.HasPrefix(strings.ToLower(columnType), "tinyint(1)") {
			return core.Simple(core.KindBool), nil
		}
		return core.Simple(core.KindInt32), nil
	case "smallint", "mediumint", "int", "integer":
		return core.Simple(core.KindInt32), nil
	case "bigint":
		return core.Simple(core.KindInt64), nil
	case "float":
		return core.Simple(core.KindFloat32), nil
	case "double", "real":
		return core.Simple(core.KindFloat64), nil
	case "decimal", "numeric":
		return core.DecimalType(precision, scale), nil
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext", "enum":
		return core.Simple(core.KindText), nil
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return core.Simple(core.KindBytes), nil
	case "date":
		return core.Simple(core.KindDate), nil
	case "time":
		return core.Simple(core.KindTime), nil
	case "datetime":
		return core.Simple(core.KindDateTime), nil
	case "timestamp":
		return core.Simple(core.KindTimestamp), nil
	case "json":
		return core.Simple(core.KindJson), nil
	}
	return core.Type{}, &core.UnsupportedError{What: fmt.Sprintf("mysql type %q", dataType)}
}

type column struct {
	Name      string
	Type      core.Type
	Nullable  bool
	IsPrimary bool
}

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
