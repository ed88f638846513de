package postgres

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surreal-sync/core"
)

// EncodeLiteral renders a universal value as a PostgreSQL literal. This is
// the forward codec: it is used when the engine populates a source, which
// happens in tests and load generators, never during sync.
func EncodeLiteral(v core.Value) (string, error) {
	switch x := v.(type) {
	case core.Null:
		return "NULL", nil
	case core.Bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case core.Int32:
		return fmt.Sprintf("%d", int32(x)), nil
	case core.Int64:
		return fmt.Sprintf("%d", int64(x)), nil
	case core.Float32:
		return fmt.Sprintf("%g", float32(x)), nil
	case core.Float64:
		return fmt.Sprintf("%g", float64(x)), nil
	case core.Decimal:
		return x.Text, nil
	case core.Text:
		return quoteText(string(x)), nil
	case core.Bytes:
		return fmt.Sprintf(`'\x%s'::bytea`, hex.EncodeToString(x)), nil
	case core.Uuid:
		return fmt.Sprintf("'%s'::uuid", x.String()), nil
	case core.Date:
		return fmt.Sprintf("'%s'::date", x.T.UTC().Format("2006-01-02")), nil
	case core.Time:
		return fmt.Sprintf("'%s'::time", x.T.UTC().Format("15:04:05.999999999")), nil
	case core.DateTime:
		return fmt.Sprintf("'%s'::timestamp", x.T.UTC().Format("2006-01-02 15:04:05.999999999")), nil
	case core.Timestamp:
		return fmt.Sprintf("'%s'::timestamptz", x.T.UTC().Format("2006-01-02 15:04:05.999999999-07:00")), nil
	case core.Interval:
		return fmt.Sprintf("'%s'::interval", formatInterval(time.Duration(x))), nil
	case core.Json:
		return quoteText(string(x.Raw)) + "::json", nil
	case core.Jsonb:
		return quoteText(string(x.Raw)) + "::jsonb", nil
	case core.Array:
		elems := make([]string, 0, len(x.Items))
		for _, item := range x.Items {
			lit, err := EncodeLiteral(item)
			if err != nil {
				return "", err
			}
			elems = append(elems, lit)
		}
		return "ARRAY[" + strings.Join(elems, ", ") + "]", nil
	}
	return "", &core.UnsupportedError{What: fmt.Sprintf("%s as postgresql literal", v.Type())}
}

func quoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatInterval(d time.Duration) string {
	neg := ""
	if d < 0 {
		neg = "-"
		d = -d
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := float64(d%time.Minute) / float64(time.Second)
	return fmt.Sprintf("%s%02d:%02d:%09.6f", neg, h, m, s)
}
