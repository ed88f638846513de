package core

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JSONCodec is the reverse codec shared by every backend that serialises
// post-images as JSON: the PostgreSQL and MySQL audit tables, wal2json
// payloads, and the JSONL file source.
//
// With a declared type the codec coerces or fails; without one it infers the
// most specific universal type the JSON representation permits.
type JSONCodec struct {
	Schema *Schema

	// BooleanPaths names "table.field" JSON paths whose integers 0/1 encode
	// booleans. MySQL has no boolean type and stores TINYINT(1); the named
	// paths are rewritten Int -> Bool before typing. Paths name top-level
	// fields; values nested inside a JSON field are not rewritten.
	BooleanPaths map[string]struct{}
}

// DecodeDocument decodes a post-image document of one table into ordered
// fields. Field order follows the document's key order as serialised, which
// for audit tables is the source column order.
func (c *JSONCodec) DecodeDocument(table string, doc json.RawMessage) (*Fields, error) {
	keys, values, err := decodeOrdered(doc)
	if err != nil {
		return nil, &TypeConversionError{Field: table, Got: "json document", Err: err}
	}
	fields := NewFields()
	for i, key := range keys {
		declared := c.Schema.DeclaredType(table, key)
		raw := values[i]
		if c.isBooleanPath(table, key) {
			b := Type{Kind: KindBool}
			declared = &b
		}
		v, err := c.DecodeValue(table+"."+key, raw, declared)
		if err != nil {
			return nil, err
		}
		fields.Set(key, v)
	}
	return fields, nil
}

func (c *JSONCodec) isBooleanPath(table, field string) bool {
	if c.BooleanPaths == nil {
		return false
	}
	_, ok := c.BooleanPaths[table+"."+field]
	return ok
}

// DecodeValue decodes one JSON value. The raw value must still be encoded;
// numbers are kept as json.Number so integers and decimals survive intact.
func (c *JSONCodec) DecodeValue(path string, raw json.RawMessage, declared *Type) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var native interface{}
	if err := dec.Decode(&native); err != nil {
		return nil, &TypeConversionError{Field: path, Got: "malformed json", Err: err}
	}
	if declared != nil {
		return c.coerce(path, native, raw, *declared)
	}
	return c.infer(path, native, raw)
}

func (c *JSONCodec) coerce(path string, native interface{}, raw json.RawMessage, declared Type) (Value, error) {
	if native == nil {
		return Null{Of: declared}, nil
	}
	fail := func(err error) (Value, error) {
		return nil, &TypeConversionError{Field: path, Declared: declared, Got: string(raw), Err: err}
	}

	switch declared.Kind {
	case KindBool:
		switch v := native.(type) {
		case bool:
			return Bool(v), nil
		case json.Number:
			// 0/1 encodings from sources without a boolean type.
			switch v.String() {
			case "0":
				return Bool(false), nil
			case "1":
				return Bool(true), nil
			}
		}
		return fail(fmt.Errorf("not a boolean"))

	case KindInt32:
		n, ok := native.(json.Number)
		if !ok {
			return fail(fmt.Errorf("not a number"))
		}
		i, err := n.Int64()
		if err != nil || i > 1<<31-1 || i < -(1<<31) {
			return fail(fmt.Errorf("not an int32"))
		}
		return Int32(int32(i)), nil

	case KindInt64:
		switch v := native.(type) {
		case json.Number:
			i, err := v.Int64()
			if err != nil {
				return fail(err)
			}
			return Int64(i), nil
		case string:
			// 64-bit values may be serialised as strings to dodge IEEE754.
			var i Int64
			if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
				return i, nil
			}
		}
		return fail(fmt.Errorf("not an int64"))

	case KindFloat32:
		n, ok := native.(json.Number)
		if !ok {
			return fail(fmt.Errorf("not a number"))
		}
		f, err := n.Float64()
		if err != nil {
			return fail(err)
		}
		return Float32(float32(f)), nil

	case KindFloat64:
		n, ok := native.(json.Number)
		if !ok {
			return fail(fmt.Errorf("not a number"))
		}
		f, err := n.Float64()
		if err != nil {
			return fail(err)
		}
		return Float64(f), nil

	case KindDecimal:
		// Exact text is preserved; both numeric and string encodings accept.
		switch v := native.(type) {
		case json.Number:
			return Decimal{Text: v.String(), Precision: declared.Precision, Scale: declared.Scale}, nil
		case string:
			if !isDecimalText(v) {
				return fail(fmt.Errorf("not a decimal"))
			}
			return Decimal{Text: v, Precision: declared.Precision, Scale: declared.Scale}, nil
		}
		return fail(fmt.Errorf("not a decimal"))

	case KindText:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not a string"))
		}
		return Text(s), nil

	case KindBytes:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not an encoded byte string"))
		}
		return decodeBytes(path, s, declared)

	case KindUuid:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not a uuid string"))
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return fail(err)
		}
		return Uuid(u), nil

	case KindDate:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not a date string"))
		}
		t, err := ParseDate(s)
		if err != nil {
			return fail(err)
		}
		return Date{T: t}, nil

	case KindTime:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not a time string"))
		}
		t, err := ParseTimeOfDay(s)
		if err != nil {
			return fail(err)
		}
		return Time{T: t}, nil

	case KindDateTime, KindTimestamp:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not a timestamp string"))
		}
		t, zone, err := ParseDateTime(s)
		if err != nil {
			return fail(err)
		}
		if declared.Kind == KindDateTime {
			return DateTime{T: t, SourceZone: zone}, nil
		}
		return Timestamp{T: t, SourceZone: zone}, nil

	case KindInterval:
		s, ok := native.(string)
		if !ok {
			return fail(fmt.Errorf("not an interval string"))
		}
		d, err := ParseInterval(s)
		if err != nil {
			return fail(err)
		}
		return Interval(d), nil

	case KindJson:
		return Json{Raw: compactRaw(raw)}, nil

	case KindJsonb:
		return Jsonb{Raw: compactRaw(raw)}, nil

	case KindArray, KindSet:
		items, ok := native.([]interface{})
		if !ok {
			return fail(fmt.Errorf("not an array"))
		}
		elems := make([]Value, 0, len(items))
		rawItems, err := splitRawArray(raw)
		if err != nil {
			return fail(err)
		}
		for i := range items {
			ev, err := c.coerce(fmt.Sprintf("%s[%d]", path, i), items[i], rawItems[i], *declared.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, ev)
		}
		if declared.Kind == KindSet {
			return Set{Elem: *declared.Elem, Items: elems}, nil
		}
		return Array{Elem: *declared.Elem, Items: elems}, nil

	case KindMap:
		if _, ok := native.(map[string]interface{}); !ok {
			return fail(fmt.Errorf("not an object"))
		}
		keys, rawValues, err := decodeOrdered(raw)
		if err != nil {
			return fail(err)
		}
		entries := make([]MapEntry, 0, len(keys))
		for i, k := range keys {
			kv, err := c.coerce(path+"."+k, k, json.RawMessage(fmt.Sprintf("%q", k)), *declared.Key)
			if err != nil {
				return nil, err
			}
			vv, err := c.DecodeValue(path+"."+k, rawValues[i], declared.Value)
			if err != nil {
				return nil, err
			}
			entries = append(entries, MapEntry{K: kv, V: vv})
		}
		return Map{Key: *declared.Key, Value: *declared.Value, Entries: entries}, nil

	case KindRecordRef:
		id, err := c.infer(path, native, raw)
		if err != nil {
			return nil, err
		}
		return RecordRef{Table: declared.Table, ID: id}, nil
	}
	return fail(fmt.Errorf("no JSON representation"))
}

// infer maps a JSON value to the most specific universal type its
// representation permits.
func (c *JSONCodec) infer(path string, native interface{}, raw json.RawMessage) (Value, error) {
	switch v := native.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int64(i), nil
		}
		// Non-integral numbers keep their exact text.
		return Decimal{Text: v.String()}, nil
	case string:
		return Text(v), nil
	case []interface{}:
		rawItems, err := splitRawArray(raw)
		if err != nil {
			return nil, &TypeConversionError{Field: path, Got: string(raw), Err: err}
		}
		items := make([]Value, 0, len(v))
		var elem Type
		uniform := true
		for i := range v {
			ev, err := c.infer(fmt.Sprintf("%s[%d]", path, i), v[i], rawItems[i])
			if err != nil {
				return nil, err
			}
			if i == 0 {
				elem = ev.Type()
			} else if !ev.Type().Equal(elem) && !IsNull(ev) {
				uniform = false
			}
			items = append(items, ev)
		}
		if !uniform {
			// Heterogeneous arrays stay as raw JSON.
			return Json{Raw: compactRaw(raw)}, nil
		}
		return Array{Elem: elem, Items: items}, nil
	case map[string]interface{}:
		return Json{Raw: compactRaw(raw)}, nil
	}
	return nil, &TypeConversionError{Field: path, Got: string(raw), Err: fmt.Errorf("unhandled JSON value")}
}

// decodeBytes decodes the textual encodings sources use for binary columns:
// PostgreSQL hex ("\x16fa...") and base64.
func decodeBytes(path, s string, declared Type) (Value, error) {
	if strings.HasPrefix(s, `\x`) {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, &TypeConversionError{Field: path, Declared: declared, Got: s, Err: err}
		}
		return Bytes(b), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &TypeConversionError{Field: path, Declared: declared, Got: s, Err: err}
	}
	return Bytes(b), nil
}

func isDecimalText(s string) bool {
	if s == "" {
		return false
	}
	seenDigit := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
		case r == '-' || r == '+':
			if i != 0 {
				return false
			}
		case r == '.':
		default:
			return false
		}
	}
	return seenDigit
}

func compactRaw(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return json.RawMessage(buf.Bytes())
}

// decodeOrdered decodes a JSON object preserving key order.
func decodeOrdered(raw json.RawMessage) ([]string, []json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected JSON object")
	}
	var keys []string
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key := tok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		values = append(values, val)
	}
	return keys, values, nil
}

// splitRawArray splits a raw JSON array into its raw elements.
func splitRawArray(raw json.RawMessage) ([]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("expected JSON array")
	}
	var items []json.RawMessage
	for dec.More() {
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		items = append(items, val)
	}
	return items, nil
}
