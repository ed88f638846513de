package surreal

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surreal-sync/core"
)

// SinkV2 speaks the v2 wire dialect: every write is a SurrealQL statement
// issued through the query RPC. Record ids are rendered as statement-text
// literals; field content travels as bound variables.
type SinkV2 struct {
	client *Client
}

var _ core.Sink = (*SinkV2)(nil)

func NewSinkV2(client *Client) *SinkV2 { return &SinkV2{client: client} }

func (s *SinkV2) WriteRows(ctx context.Context, rows []core.Row) error {
	for i := range rows {
		if err := s.upsertRow(ctx, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SinkV2) upsertRow(ctx context.Context, row *core.Row) error {
	thing, err := thingLiteral(row.Table, row.PrimaryKey)
	if err != nil {
		return err
	}
	content, err := encodeFields(row.Fields)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf("UPSERT %s CONTENT $content", thing)
	if _, err := s.client.Query(ctx, sql, map[string]interface{}{"content": content}); err != nil {
		return err
	}
	return nil
}

func (s *SinkV2) WriteRelations(ctx context.Context, relations []core.Relation) error {
	for i := range relations {
		if err := s.upsertRelation(ctx, &relations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SinkV2) upsertRelation(ctx context.Context, rel *core.Relation) error {
	sql, vars, err := relateStatement(rel)
	if err != nil {
		return err
	}
	if _, err := s.client.Query(ctx, sql, vars); err != nil {
		return err
	}
	return nil
}

// relateStatement builds a RELATE with a fixed edge id so that re-running the
// statement upserts rather than duplicates.
func relateStatement(rel *core.Relation) (string, map[string]interface{}, error) {
	inThing, err := thingLiteral(rel.From.Table, rel.From.ID)
	if err != nil {
		return "", nil, err
	}
	outThing, err := thingLiteral(rel.To.Table, rel.To.ID)
	if err != nil {
		return "", nil, err
	}
	relThing, err := thingLiteral(rel.Name, rel.ID)
	if err != nil {
		return "", nil, err
	}

	entries := []string{"id: " + relThing}
	vars := map[string]interface{}{}
	i := 0
	if rel.Fields != nil {
		err = rel.Fields.Each(func(name string, v core.Value) error {
			enc, err := encodeValue(v)
			if err != nil {
				return err
			}
			param := fmt.Sprintf("f%d", i)
			entries = append(entries, fmt.Sprintf("%s: $%s", escapeIdent(name), param))
			vars[param] = enc
			i++
			return nil
		})
		if err != nil {
			return "", nil, err
		}
	}

	sql := fmt.Sprintf("RELATE %s->%s->%s CONTENT { %s }",
		inThing, escapeIdent(rel.Name), outThing, strings.Join(entries, ", "))
	return sql, vars, nil
}

func (s *SinkV2) ApplyChange(ctx context.Context, c *core.Change) error {
	if c.Relation != nil {
		if c.Op == core.OpDelete {
			return s.deleteThing(ctx, c.Relation.Name, c.Relation.ID)
		}
		return s.upsertRelation(ctx, c.Relation)
	}
	switch c.Op {
	case core.OpCreate, core.OpUpdate:
		return s.upsertRow(ctx, c.Row())
	case core.OpDelete:
		return s.deleteThing(ctx, c.Target, c.Key)
	}
	return &core.UnsupportedError{What: fmt.Sprintf("change operation %v", c.Op)}
}

func (s *SinkV2) deleteThing(ctx context.Context, table string, id core.Value) error {
	thing, err := thingLiteral(table, id)
	if err != nil {
		return err
	}
	// Deleting an absent record is a no-op on the server, matching the
	// sink's best-effort delete contract.
	_, err = s.client.Query(ctx, "DELETE "+thing, nil)
	return err
}
