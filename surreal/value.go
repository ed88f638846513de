package surreal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surreal-sync/core"
)

// encodeValue renders a universal value into its wire form. Decimals become
// json.Number so their exact text reaches the server unrouted through binary
// floats; temporal values are RFC3339 UTC strings.
func encodeValue(v core.Value) (interface{}, error) {
	switch x := v.(type) {
	case core.Null:
		return nil, nil
	case core.Bool:
		return bool(x), nil
	case core.Int32:
		return int64(x), nil
	case core.Int64:
		return int64(x), nil
	case core.Float32:
		return float64(x), nil
	case core.Float64:
		return float64(x), nil
	case core.Decimal:
		return json.Number(x.Text), nil
	case core.Text:
		return string(x), nil
	case core.Bytes:
		return base64.StdEncoding.EncodeToString(x), nil
	case core.Uuid:
		return x.String(), nil
	case core.Date:
		return x.T.UTC().Format("2006-01-02"), nil
	case core.Time:
		return x.T.UTC().Format(time.RFC3339Nano), nil
	case core.DateTime:
		return x.T.UTC().Format(time.RFC3339Nano), nil
	case core.Timestamp:
		return x.T.UTC().Format(time.RFC3339Nano), nil
	case core.Interval:
		return time.Duration(x).String(), nil
	case core.Json:
		return json.RawMessage(x.Raw), nil
	case core.Jsonb:
		return json.RawMessage(x.Raw), nil
	case core.Array:
		return encodeItems(x.Items)
	case core.Set:
		return encodeItems(x.Items)
	case core.Map:
		m := make(map[string]interface{}, len(x.Entries))
		for _, e := range x.Entries {
			key, err := keyString(e.K)
			if err != nil {
				return nil, err
			}
			val, err := encodeValue(e.V)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	case core.RecordRef:
		return thingLiteralString(x.Table, x.ID)
	}
	return nil, &core.UnsupportedError{What: fmt.Sprintf("value type %T", v)}
}

func encodeItems(items []core.Value) ([]interface{}, error) {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		v, err := encodeValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// encodeFields renders ordered fields into a content object.
func encodeFields(fields *core.Fields) (map[string]interface{}, error) {
	content := make(map[string]interface{}, fields.Len())
	err := fields.Each(func(name string, v core.Value) error {
		enc, err := encodeValue(v)
		if err != nil {
			return err
		}
		content[name] = enc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

// keyString renders a value usable as a map key or record id part.
func keyString(v core.Value) (string, error) {
	switch x := v.(type) {
	case core.Text:
		return string(x), nil
	case core.Int32:
		return fmt.Sprintf("%d", int32(x)), nil
	case core.Int64:
		return fmt.Sprintf("%d", int64(x)), nil
	case core.Uuid:
		return x.String(), nil
	case core.Decimal:
		return x.Text, nil
	}
	return "", &core.UnsupportedError{What: fmt.Sprintf("%s as record key", v.Type())}
}

// thingLiteral renders a record id as a SurrealQL literal like users:1 or
// posts:⟨some id⟩. Numeric ids stay numeric so they match ids created by the
// source's own numbering.
func thingLiteral(table string, id core.Value) (string, error) {
	switch x := id.(type) {
	case core.Int32:
		return fmt.Sprintf("%s:%d", escapeIdent(table), int32(x)), nil
	case core.Int64:
		return fmt.Sprintf("%s:%d", escapeIdent(table), int64(x)), nil
	default:
		key, err := keyString(id)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s:⟨%s⟩", escapeIdent(table), strings.ReplaceAll(key, "⟩", "\\⟩")), nil
	}
}

// thingLiteralString is thingLiteral for wire payloads rather than SQL text.
func thingLiteralString(table string, id core.Value) (string, error) {
	return thingLiteral(table, id)
}

// escapeIdent quotes an identifier when it is not a plain name.
func escapeIdent(s string) string {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			continue
		}
		return "⟨" + strings.ReplaceAll(s, "⟩", "\\⟩") + "⟩"
	}
	if s == "" {
		return "⟨⟩"
	}
	return s
}
