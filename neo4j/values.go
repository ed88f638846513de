// Package neo4j implements the Neo4j source adapter. Neo4j has no native
// change capture; incremental sync polls a monotonically-updated updated_at
// property. Deletes between polls leave no tombstone and are therefore not
// observable; the adapter surfaces that limitation instead of dropping it.
package neo4j

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/surrealdb/surreal-sync/core"
)

// decodeValue is the reverse codec from a Bolt value to a universal value.
func decodeValue(path string, v interface{}, declared *core.Type) (core.Value, error) {
	inferred, err := inferValue(path, v)
	if err != nil {
		return nil, err
	}
	if declared == nil {
		return inferred, nil
	}
	return coerceValue(path, inferred, *declared)
}

func inferValue(path string, v interface{}) (core.Value, error) {
	switch x := v.(type) {
	case nil:
		return core.Null{}, nil
	case bool:
		return core.Bool(x), nil
	case int64:
		return core.Int64(x), nil
	case float64:
		return core.Float64(x), nil
	case string:
		return core.Text(x), nil
	case []byte:
		return core.Bytes(x), nil
	case dbtype.Date:
		return core.Date{T: x.Time().UTC()}, nil
	case dbtype.LocalTime:
		t := x.Time()
		return core.Time{T: time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}, nil
	case dbtype.Time:
		t := x.Time().UTC()
		return core.Time{T: time.Date(1970, 1, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}, nil
	case dbtype.LocalDateTime:
		return core.DateTime{T: x.Time().UTC()}, nil
	case time.Time:
		return core.DateTime{T: x.UTC(), SourceZone: x.Format("-07:00")}, nil
	case dbtype.Duration:
		d := time.Duration(x.Seconds)*time.Second + time.Duration(x.Nanos)*time.Nanosecond
		d += time.Duration(x.Days) * 24 * time.Hour
		return core.Interval(d), nil
	case []interface{}:
		items := make([]core.Value, 0, len(x))
		var elem core.Type
		uniform := true
		for i := range x {
			iv, err := inferValue(fmt.Sprintf("%s[%d]", path, i), x[i])
			if err != nil {
				return nil, err
			}
			if i == 0 {
				elem = iv.Type()
			} else if !iv.Type().Equal(elem) && !core.IsNull(iv) {
				uniform = false
			}
			items = append(items, iv)
		}
		if !uniform {
			b, err := json.Marshal(x)
			if err != nil {
				return nil, &core.TypeConversionError{Field: path, Got: "bolt list", Err: err}
			}
			return core.Json{Raw: b}, nil
		}
		return core.Array{Elem: elem, Items: items}, nil
	case map[string]interface{}:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, &core.TypeConversionError{Field: path, Got: "bolt map", Err: err}
		}
		return core.Json{Raw: b}, nil
	}
	return nil, &core.UnsupportedError{What: fmt.Sprintf("bolt type %T at %s", v, path)}
}

func coerceValue(path string, v core.Value, declared core.Type) (core.Value, error) {
	if core.IsNull(v) {
		return core.Null{Of: declared}, nil
	}
	if v.Type().Kind == declared.Kind {
		return v, nil
	}
	fail := func() (core.Value, error) {
		return nil, &core.TypeConversionError{Field: path, Declared: declared, Got: v.Type().String()}
	}
	switch declared.Kind {
	case core.KindInt32:
		if i, ok := v.(core.Int64); ok {
			if i > 1<<31-1 || i < -(1<<31) {
				return fail()
			}
			return core.Int32(int32(i)), nil
		}
	case core.KindFloat32:
		if f, ok := v.(core.Float64); ok {
			return core.Float32(float32(f)), nil
		}
	case core.KindDecimal:
		switch x := v.(type) {
		case core.Int64:
			return core.Decimal{Text: fmt.Sprintf("%d", int64(x)), Precision: declared.Precision, Scale: declared.Scale}, nil
		case core.Text:
			return core.Decimal{Text: string(x), Precision: declared.Precision, Scale: declared.Scale}, nil
		}
	case core.KindJson, core.KindJsonb:
		// JSON documents are stored as string properties; the declared type
		// names which properties to parse.
		if s, ok := v.(core.Text); ok {
			if !json.Valid([]byte(s)) {
				return fail()
			}
			raw := json.RawMessage(s)
			if declared.Kind == core.KindJsonb {
				return core.Jsonb{Raw: raw}, nil
			}
			return core.Json{Raw: raw}, nil
		}
	case core.KindTimestamp:
		if dt, ok := v.(core.DateTime); ok {
			return core.Timestamp{T: dt.T, SourceZone: dt.SourceZone}, nil
		}
	case core.KindUuid:
		if s, ok := v.(core.Text); ok {
			return core.ParseKeyText(declared, string(s))
		}
	}
	return fail()
}

// propFields decodes a property map into fields. Bolt property maps carry no
// order, so keys are sorted for deterministic output.
func propFields(schema *core.Schema, name string, props map[string]interface{}) (*core.Fields, error) {
	keys := make([]string, 0, len(props))
	for key := range props {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := core.NewFields()
	for _, key := range keys {
		declared := schema.DeclaredType(name, key)
		v, err := decodeValue(name+"."+key, props[key], declared)
		if err != nil {
			return nil, err
		}
		fields.Set(key, v)
	}
	return fields, nil
}
