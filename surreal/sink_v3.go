package surreal

import (
	"context"
	"fmt"

	"github.com/surrealdb/surreal-sync/core"
)

// SinkV3 speaks the v3 wire dialect, which exposes dedicated upsert, relate
// and delete RPC methods instead of routing every write through query.
type SinkV3 struct {
	client *Client
}

var _ core.Sink = (*SinkV3)(nil)

func NewSinkV3(client *Client) *SinkV3 { return &SinkV3{client: client} }

func (s *SinkV3) WriteRows(ctx context.Context, rows []core.Row) error {
	for i := range rows {
		if err := s.upsertRow(ctx, &rows[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SinkV3) upsertRow(ctx context.Context, row *core.Row) error {
	thing, err := thingLiteralString(row.Table, row.PrimaryKey)
	if err != nil {
		return err
	}
	content, err := encodeFields(row.Fields)
	if err != nil {
		return err
	}
	_, err = s.client.Send(ctx, "upsert", thing, content)
	return err
}

func (s *SinkV3) WriteRelations(ctx context.Context, relations []core.Relation) error {
	for i := range relations {
		if err := s.upsertRelation(ctx, &relations[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SinkV3) upsertRelation(ctx context.Context, rel *core.Relation) error {
	inThing, err := thingLiteralString(rel.From.Table, rel.From.ID)
	if err != nil {
		return err
	}
	outThing, err := thingLiteralString(rel.To.Table, rel.To.ID)
	if err != nil {
		return err
	}
	relThing, err := thingLiteralString(rel.Name, rel.ID)
	if err != nil {
		return err
	}
	var content map[string]interface{}
	if rel.Fields != nil {
		if content, err = encodeFields(rel.Fields); err != nil {
			return err
		}
	}
	// Passing the edge as a full record id pins it, making relate an upsert.
	_, err = s.client.Send(ctx, "relate", inThing, relThing, outThing, content)
	return err
}

func (s *SinkV3) ApplyChange(ctx context.Context, c *core.Change) error {
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

func (s *SinkV3) deleteThing(ctx context.Context, table string, id core.Value) error {
	thing, err := thingLiteralString(table, id)
	if err != nil {
		return err
	}
	_, err = s.client.Send(ctx, "delete", thing)
	return err
}

// NewSink returns the sink implementation matching the client's resolved
// wire dialect.
func NewSink(client *Client) core.Sink {
	if client.Version() == V3 {
		return NewSinkV3(client)
	}
	return NewSinkV2(client)
}
