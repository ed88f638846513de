// Package mongodb implements the MongoDB source adapter: full collection
// scans plus change-stream capture with resume-token checkpoints.
package mongodb

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/surrealdb/surreal-sync/core"
)

// decodeValue is the reverse codec from a BSON value to a universal value.
// With a declared type the value must coerce to it; without, the most
// specific universal type the BSON representation permits is inferred.
func decodeValue(path string, rv bson.RawValue, declared *core.Type) (core.Value, error) {
	v, err := inferValue(path, rv)
	if err != nil {
		return nil, err
	}
	if declared == nil {
		return v, nil
	}
	return coerceValue(path, v, rv, *declared)
}

func inferValue(path string, rv bson.RawValue) (core.Value, error) {
	switch rv.Type {
	case bsontype.Null, bsontype.Undefined:
		return core.Null{}, nil
	case bsontype.Boolean:
		return core.Bool(rv.Boolean()), nil
	case bsontype.Int32:
		return core.Int32(rv.Int32()), nil
	case bsontype.Int64:
		return core.Int64(rv.Int64()), nil
	case bsontype.Double:
		return core.Float64(rv.Double()), nil
	case bsontype.Decimal128:
		d128, ok := rv.Decimal128OK()
		if !ok {
			return nil, &core.TypeConversionError{Field: path, Got: "decimal128"}
		}
		return core.Decimal{Text: d128.String()}, nil
	case bsontype.String:
		return core.Text(rv.StringValue()), nil
	case bsontype.Binary:
		subtype, data := rv.Binary()
		if subtype == 0x04 && len(data) == 16 {
			u, err := uuid.FromBytes(data)
			if err == nil {
				return core.Uuid(u), nil
			}
		}
		return core.Bytes(data), nil
	case bsontype.ObjectID:
		return core.Text(rv.ObjectID().Hex()), nil
	case bsontype.DateTime:
		return core.Timestamp{T: rv.Time().UTC()}, nil
	case bsontype.Timestamp:
		t, _ := rv.Timestamp()
		return core.Timestamp{T: time.Unix(int64(t), 0).UTC()}, nil
	case bsontype.Array:
		raw := rv.Array()
		values, err := raw.Values()
		if err != nil {
			return nil, &core.TypeConversionError{Field: path, Got: "bson array", Err: err}
		}
		items := make([]core.Value, 0, len(values))
		var elem core.Type
		uniform := true
		for i, item := range values {
			iv, err := inferValue(fmt.Sprintf("%s[%d]", path, i), item)
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
			return rawJSON(path, rv)
		}
		return core.Array{Elem: elem, Items: items}, nil
	case bsontype.EmbeddedDocument:
		return rawJSON(path, rv)
	}
	return nil, &core.UnsupportedError{What: fmt.Sprintf("bson type %s at %s", rv.Type, path)}
}

// rawJSON renders a BSON document or array as relaxed extended JSON.
func rawJSON(path string, rv bson.RawValue) (core.Value, error) {
	var native interface{}
	if err := rv.Unmarshal(&native); err != nil {
		return nil, &core.TypeConversionError{Field: path, Got: "bson document", Err: err}
	}
	b, err := json.Marshal(bsonToPlain(native))
	if err != nil {
		return nil, &core.TypeConversionError{Field: path, Got: "bson document", Err: err}
	}
	return core.Json{Raw: b}, nil
}

// bsonToPlain rewrites driver-specific primitives into JSON-friendly values.
func bsonToPlain(v interface{}) interface{} {
	switch x := v.(type) {
	case primitive.D:
		m := make(map[string]interface{}, len(x))
		for _, e := range x {
			m[e.Key] = bsonToPlain(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]interface{}, len(x))
		for k, val := range x {
			m[k] = bsonToPlain(val)
		}
		return m
	case primitive.A:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = bsonToPlain(x[i])
		}
		return out
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC().Format(time.RFC3339Nano)
	case primitive.Decimal128:
		return x.String()
	case primitive.Binary:
		return x.Data
	default:
		return v
	}
}

// coerceValue checks or adapts an inferred value against the declared type.
func coerceValue(path string, v core.Value, rv bson.RawValue, declared core.Type) (core.Value, error) {
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
	case core.KindInt64:
		if i, ok := v.(core.Int32); ok {
			return core.Int64(i), nil
		}
	case core.KindDateTime:
		if ts, ok := v.(core.Timestamp); ok {
			return core.DateTime{T: ts.T, SourceZone: ts.SourceZone}, nil
		}
		if s, ok := v.(core.Text); ok {
			t, zone, err := core.ParseDateTime(string(s))
			if err != nil {
				return fail()
			}
			return core.DateTime{T: t, SourceZone: zone}, nil
		}
	case core.KindTimestamp:
		if s, ok := v.(core.Text); ok {
			t, zone, err := core.ParseDateTime(string(s))
			if err != nil {
				return fail()
			}
			return core.Timestamp{T: t, SourceZone: zone}, nil
		}
	case core.KindDecimal:
		switch x := v.(type) {
		case core.Int32:
			return core.Decimal{Text: fmt.Sprintf("%d", int32(x)), Precision: declared.Precision, Scale: declared.Scale}, nil
		case core.Int64:
			return core.Decimal{Text: fmt.Sprintf("%d", int64(x)), Precision: declared.Precision, Scale: declared.Scale}, nil
		case core.Text:
			return core.Decimal{Text: string(x), Precision: declared.Precision, Scale: declared.Scale}, nil
		}
	case core.KindUuid:
		if s, ok := v.(core.Text); ok {
			u, err := uuid.Parse(string(s))
			if err != nil {
				return fail()
			}
			return core.Uuid(u), nil
		}
	case core.KindText:
		// ObjectIDs infer as text already; anything else must not silently
		// stringify.
	}
	return fail()
}

// decodeDocument decodes a full BSON document into ordered fields.
func decodeDocument(schema *core.Schema, collection string, doc bson.Raw) (*core.Fields, error) {
	elements, err := doc.Elements()
	if err != nil {
		return nil, &core.TypeConversionError{Field: collection, Got: "bson document", Err: err}
	}
	fields := core.NewFields()
	for _, el := range elements {
		key := el.Key()
		declared := schema.DeclaredType(collection, key)
		v, err := decodeValue(collection+"."+key, el.Value(), declared)
		if err != nil {
			return nil, err
		}
		fields.Set(key, v)
	}
	return fields, nil
}
