package neo4j

import (
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surreal-sync/core"
)

// CypherLiteral renders a universal value as a Cypher literal. This is the
// forward codec, used when the engine populates a Neo4j source in tests and
// load generators.
func CypherLiteral(v core.Value) (string, error) {
	switch x := v.(type) {
	case core.Null:
		return "null", nil
	case core.Bool:
		if x {
			return "true", nil
		}
		return "false", nil
	case core.Int32:
		return fmt.Sprintf("%d", int32(x)), nil
	case core.Int64:
		return fmt.Sprintf("%d", int64(x)), nil
	case core.Float64:
		return fmt.Sprintf("%g", float64(x)), nil
	case core.Text:
		return quoteCypher(string(x)), nil
	case core.Uuid:
		return quoteCypher(x.String()), nil
	case core.Date:
		return fmt.Sprintf("date(%s)", quoteCypher(x.T.UTC().Format("2006-01-02"))), nil
	case core.Time:
		return fmt.Sprintf("localtime(%s)", quoteCypher(x.T.UTC().Format("15:04:05.999999999"))), nil
	case core.DateTime:
		return fmt.Sprintf("datetime(%s)", quoteCypher(x.T.UTC().Format(time.RFC3339Nano))), nil
	case core.Timestamp:
		return fmt.Sprintf("datetime(%s)", quoteCypher(x.T.UTC().Format(time.RFC3339Nano))), nil
	case core.Json:
		// JSON documents are stored as string properties.
		return quoteCypher(string(x.Raw)), nil
	case core.Array:
		parts := make([]string, 0, len(x.Items))
		for _, item := range x.Items {
			lit, err := CypherLiteral(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, lit)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	}
	return "", &core.UnsupportedError{What: fmt.Sprintf("%s as cypher literal", v.Type())}
}

func quoteCypher(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	return "'" + s + "'"
}
