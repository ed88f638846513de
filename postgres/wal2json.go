package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/surrealdb/surreal-sync/core"
)

// wal2jsonMessage is one decoded wal2json output message: a transaction's
// worth of row-level operations.
type wal2jsonMessage struct {
	Change []wal2jsonChange `json:"change"`
}

type wal2jsonChange struct {
	Kind         string            `json:"kind"`
	Schema       string            `json:"schema"`
	Table        string            `json:"table"`
	ColumnNames  []string          `json:"columnnames"`
	ColumnTypes  []string          `json:"columntypes"`
	ColumnValues []json.RawMessage `json:"columnvalues"`
	OldKeys      *wal2jsonOldKeys  `json:"oldkeys"`
}

type wal2jsonOldKeys struct {
	KeyNames  []string          `json:"keynames"`
	KeyTypes  []string          `json:"keytypes"`
	KeyValues []json.RawMessage `json:"keyvalues"`
}

// parseWal2json parses one wal2json message. The payload must be a JSON
// object whose change array lists row-level operations.
func parseWal2json(data []byte) (*wal2jsonMessage, error) {
	var msg wal2jsonMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, &core.SourceError{Op: "parse wal2json message", Err: err}
	}
	return &msg, nil
}

// messageChanges converts a wal2json message into universal changes.
//
// An UPDATE whose primary key changed is split into (Delete oldkey, Create
// newkey), in that order: wal2json reports the old key in oldkeys and the
// new one among the column values, and a single Update cannot express the
// key move idempotently.
func messageChanges(msg *wal2jsonMessage, codec *core.JSONCodec, pkNames map[string]string) ([]*core.Change, error) {
	var out []*core.Change
	for i := range msg.Change {
		ch := &msg.Change[i]
		pkName, ok := pkNames[ch.Table]
		if !ok {
			// Not a synced table.
			continue
		}
		converted, err := convertChange(ch, codec, pkName)
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

func convertChange(ch *wal2jsonChange, codec *core.JSONCodec, pkName string) ([]*core.Change, error) {
	switch ch.Kind {
	case "insert", "update":
		fields, err := decodeColumns(ch, codec)
		if err != nil {
			return nil, err
		}
		newKey, ok := fields.Get(pkName)
		if !ok {
			return nil, &core.SourceError{Op: "decode wal2json change", Err: fmt.Errorf("%s change lacks primary key %s", ch.Table, pkName)}
		}

		op := core.OpCreate
		if ch.Kind == "update" {
			op = core.OpUpdate
		}
		change := &core.Change{Target: ch.Table, Op: op, Key: newKey, After: fields}

		if ch.Kind == "update" && ch.OldKeys != nil {
			oldKey, err := decodeOldKey(ch, codec, pkName)
			if err != nil {
				return nil, err
			}
			if oldKey != nil && !valueEqual(oldKey, newKey) {
				return []*core.Change{
					{Target: ch.Table, Op: core.OpDelete, Key: oldKey},
					{Target: ch.Table, Op: core.OpCreate, Key: newKey, After: fields},
				}, nil
			}
		}
		return []*core.Change{change}, nil

	case "delete":
		oldKey, err := decodeOldKey(ch, codec, pkName)
		if err != nil {
			return nil, err
		}
		if oldKey == nil {
			return nil, &core.SourceError{Op: "decode wal2json delete", Err: fmt.Errorf("%s delete lacks old key", ch.Table)}
		}
		return []*core.Change{{Target: ch.Table, Op: core.OpDelete, Key: oldKey}}, nil

	case "truncate", "message":
		return nil, &core.UnsupportedError{What: "wal2json " + ch.Kind + " on " + ch.Table}
	}
	return nil, &core.UnsupportedError{What: fmt.Sprintf("wal2json kind %q", ch.Kind)}
}

func decodeColumns(ch *wal2jsonChange, codec *core.JSONCodec) (*core.Fields, error) {
	if len(ch.ColumnNames) != len(ch.ColumnValues) || len(ch.ColumnNames) != len(ch.ColumnTypes) {
		return nil, &core.SourceError{Op: "decode wal2json change", Err: fmt.Errorf("column arity mismatch in %s", ch.Table)}
	}
	fields := core.NewFields()
	for i, name := range ch.ColumnNames {
		declared, err := declaredOrColumnType(codec, ch.Table, name, ch.ColumnTypes[i])
		if err != nil {
			return nil, err
		}
		v, err := codec.DecodeValue(ch.Table+"."+name, ch.ColumnValues[i], declared)
		if err != nil {
			return nil, err
		}
		fields.Set(name, v)
	}
	return fields, nil
}

func decodeOldKey(ch *wal2jsonChange, codec *core.JSONCodec, pkName string) (core.Value, error) {
	if ch.OldKeys == nil {
		return nil, nil
	}
	for i, name := range ch.OldKeys.KeyNames {
		if name != pkName {
			continue
		}
		declared, err := declaredOrColumnType(codec, ch.Table, name, ch.OldKeys.KeyTypes[i])
		if err != nil {
			return nil, err
		}
		return codec.DecodeValue(ch.Table+"."+name, ch.OldKeys.KeyValues[i], declared)
	}
	return nil, nil
}

// declaredOrColumnType prefers the schema declaration and falls back to the
// wal2json column type name.
func declaredOrColumnType(codec *core.JSONCodec, table, field, typeName string) (*core.Type, error) {
	if declared := codec.Schema.DeclaredType(table, field); declared != nil {
		return declared, nil
	}
	t, err := columnType(trimTypeModifier(typeName), 0, 0, "")
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// trimTypeModifier strips "(n,m)" modifiers from wal2json type names such as
// "numeric(20,5)" and "character varying(64)".
func trimTypeModifier(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '(' {
			return s[:i]
		}
	}
	return s
}

func valueEqual(a, b core.Value) bool {
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}
