package mongodb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// Config configures the MongoDB source. Change streams require the server to
// run as a replica set.
type Config struct {
	URI      string
	Database string
	// Collections restricts the sync; empty means every user collection.
	Collections []string
	Schema      *core.Schema
}

// Source captures changes through a database-wide change stream and
// checkpoints its resume tokens.
type Source struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
}

var _ core.Source = (*Source)(nil)

func Open(ctx context.Context, cfg Config) (*Source, error) {
	if cfg.Database == "" {
		return nil, &core.ConfigError{Msg: "mongodb source requires a database name"}
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, &core.ConfigError{Msg: "invalid mongodb connection string", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, &core.SourceError{Op: "connect mongodb", Err: err}
	}
	log.WithField("database", cfg.Database).Debug("connected to mongodb")
	return &Source{client: client, db: client.Database(cfg.Database), cfg: cfg}, nil
}

// CurrentPosition opens a throwaway change stream and captures its resume
// token: the "now" marker of the database's oplog.
func (s *Source) CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.db.Watch(ctx, mongo.Pipeline{}, opts)
	if err != nil {
		return nil, &core.SourceError{Op: "open change stream", Err: err}
	}
	defer cs.Close(ctx)

	token := cs.ResumeToken()
	if token == nil {
		return nil, &core.SourceError{Op: "read resume token", Err: fmt.Errorf("no resume token available")}
	}
	return checkpoint.Mongo{ResumeToken: append([]byte(nil), token...)}, nil
}

func (s *Source) Tables(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, &core.SourceError{Op: "list collections", Err: err}
	}
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, "system.") || strings.HasPrefix(n, "surreal_sync_") {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *Source) FullScan(ctx context.Context, collection string) (core.Scan, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, &core.SourceError{Op: "full scan " + collection, Err: err}
	}
	return &collectionScan{cursor: cursor, collection: collection, schema: s.cfg.Schema}, nil
}

type collectionScan struct {
	cursor     *mongo.Cursor
	collection string
	schema     *core.Schema
}

func (c *collectionScan) Next(ctx context.Context) (core.ScanItem, error) {
	if !c.cursor.Next(ctx) {
		if err := c.cursor.Err(); err != nil {
			return core.ScanItem{}, &core.SourceError{Op: "scan " + c.collection, Err: err}
		}
		return core.ScanItem{}, io.EOF
	}
	row, err := documentToRow(c.schema, c.collection, bson.Raw(c.cursor.Current))
	if err != nil {
		return core.ScanItem{}, err
	}
	return core.ScanItem{Row: row}, nil
}

func (c *collectionScan) Close() error {
	return c.cursor.Close(context.Background())
}

func documentToRow(schema *core.Schema, collection string, doc bson.Raw) (*core.Row, error) {
	fields, err := decodeDocument(schema, collection, doc)
	if err != nil {
		return nil, err
	}
	id, ok := fields.Get("_id")
	if !ok {
		return nil, &core.SourceError{Op: "decode document", Err: fmt.Errorf("document in %s lacks _id", collection)}
	}
	return &core.Row{Table: collection, PrimaryKey: id, Fields: fields}, nil
}

func (s *Source) OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts core.StreamOptions) (core.ChangeStream, error) {
	fromCp, ok := from.(checkpoint.Mongo)
	if !ok {
		return nil, &core.ConfigError{Msg: fmt.Sprintf("mongodb source requires a resume-token checkpoint, got %T", from)}
	}
	var untilToken []byte
	if until != nil {
		untilCp, ok := until.(checkpoint.Mongo)
		if !ok {
			return nil, &core.ConfigError{Msg: fmt.Sprintf("mongodb source requires a resume-token until checkpoint, got %T", until)}
		}
		untilToken = untilCp.ResumeToken
	}

	csOpts := options.ChangeStream().
		SetFullDocument(options.UpdateLookup).
		SetStartAfter(bson.Raw(fromCp.ResumeToken))
	if opts.PollInterval > 0 {
		csOpts = csOpts.SetMaxAwaitTime(opts.PollInterval)
	}
	cs, err := s.db.Watch(ctx, mongo.Pipeline{}, csOpts)
	if err != nil {
		return nil, &core.SourceError{Op: "open change stream", Position: fromCp.ToCLIString(), Err: err}
	}
	return &changeStream{
		cs:       cs,
		schema:   s.cfg.Schema,
		position: fromCp.ResumeToken,
		until:    untilToken,
	}, nil
}

func (s *Source) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// streamEvent is the subset of a change-stream event the sync consumes.
type streamEvent struct {
	OperationType string   `bson:"operationType"`
	FullDocument  bson.Raw `bson:"fullDocument"`
	DocumentKey   bson.Raw `bson:"documentKey"`
	NS            struct {
		Collection string `bson:"coll"`
	} `bson:"ns"`
}

type changeStream struct {
	cs     *mongo.ChangeStream
	schema *core.Schema

	position []byte
	until    []byte
	closed   bool
}

var _ core.ChangeStream = (*changeStream)(nil)

func (m *changeStream) Next(ctx context.Context) (*core.Change, error) {
	for {
		if m.closed {
			return nil, io.EOF
		}
		if !m.cs.Next(ctx) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err := m.cs.Err(); err != nil {
				return nil, &core.SourceError{Op: "read change stream", Position: m.Position().ToCLIString(), Err: err}
			}
			return nil, &core.SourceError{Op: "read change stream", Position: m.Position().ToCLIString(), Err: fmt.Errorf("change stream closed")}
		}

		token := append([]byte(nil), m.cs.ResumeToken()...)
		// Resume tokens order lexicographically within one oplog; past the
		// until token the shadow-window replay is complete.
		if len(m.until) > 0 && bytes.Compare(token, m.until) > 0 {
			return nil, io.EOF
		}

		var ev streamEvent
		if err := bson.Unmarshal(m.cs.Current, &ev); err != nil {
			return nil, &core.SourceError{Op: "decode change event", Position: m.Position().ToCLIString(), Err: err}
		}
		change, err := m.toChange(&ev)
		if err != nil {
			return nil, err
		}
		m.position = token
		if change == nil {
			continue
		}
		return change, nil
	}
}

func (m *changeStream) toChange(ev *streamEvent) (*core.Change, error) {
	collection := ev.NS.Collection
	switch ev.OperationType {
	case "insert", "replace", "update":
		if len(ev.FullDocument) == 0 {
			// updateLookup found no post-image: the document was deleted
			// again before the lookup; the later delete event wins.
			return nil, nil
		}
		row, err := documentToRow(m.schema, collection, ev.FullDocument)
		if err != nil {
			return nil, err
		}
		op := core.OpCreate
		if ev.OperationType == "update" || ev.OperationType == "replace" {
			op = core.OpUpdate
		}
		return &core.Change{Target: collection, Op: op, Key: row.PrimaryKey, After: row.Fields}, nil

	case "delete":
		id := ev.DocumentKey.Lookup("_id")
		key, err := decodeValue(collection+"._id", id, m.schema.DeclaredType(collection, "_id"))
		if err != nil {
			return nil, err
		}
		return &core.Change{Target: collection, Op: core.OpDelete, Key: key}, nil
	}
	// Structural events cannot be replayed idempotently.
	return nil, &core.UnsupportedError{What: "mongodb change stream event " + ev.OperationType}
}

func (m *changeStream) Position() checkpoint.Checkpoint {
	return checkpoint.Mongo{ResumeToken: m.position}
}

func (m *changeStream) Close() error {
	m.closed = true
	return m.cs.Close(context.Background())
}
