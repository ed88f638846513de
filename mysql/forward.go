package mysql

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/surrealdb/surreal-sync/core"
)

// EncodeLiteral renders a universal value as a MySQL literal. This is the
// forward codec, used when the engine populates a source in tests and load
// generators.
func EncodeLiteral(v core.Value) (string, error) {
	switch x := v.(type) {
	case core.Null:
		return "NULL", nil
	case core.Bool:
		// MySQL has no boolean type; TINYINT(1) carries 0/1.
		if x {
			return "1", nil
		}
		return "0", nil
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
		return fmt.Sprintf("x'%s'", hex.EncodeToString(x)), nil
	case core.Uuid:
		return quoteText(x.String()), nil
	case core.Date:
		return quoteText(x.T.UTC().Format("2006-01-02")), nil
	case core.Time:
		return quoteText(x.T.UTC().Format("15:04:05.999999")), nil
	case core.DateTime:
		return quoteText(x.T.UTC().Format("2006-01-02 15:04:05.999999")), nil
	case core.Timestamp:
		return quoteText(x.T.UTC().Format("2006-01-02 15:04:05.999999")), nil
	case core.Json:
		return quoteText(string(x.Raw)), nil
	}
	return "", &core.UnsupportedError{What: fmt.Sprintf("%s as mysql literal", v.Type())}
}

func quoteText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return "'" + s + "'"
}
