package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/checkpoint"
	"github.com/surrealdb/surreal-sync/core"
)

// Position is the adapter's in-memory view of consumption progress. Durable
// positions are the broker-managed consumer-group offsets; this value exists
// so drivers can log and gate on progress, not to be persisted.
type Position struct {
	Topic     string
	Partition int
	Offset    int64
}

func (p Position) DatabaseType() string { return "kafka" }

func (p Position) ToCLIString() string {
	if p.Topic == "" {
		return "broker-managed"
	}
	return fmt.Sprintf("%s/%d/%d", p.Topic, p.Partition, p.Offset)
}

func (p Position) Equal(o checkpoint.Checkpoint) bool {
	op, ok := o.(Position)
	return ok && op == p
}

// Config configures the Kafka source.
type Config struct {
	Brokers []string
	Topics  []string
	// GroupID names the consumer group whose broker-side offsets are the
	// durable checkpoint.
	GroupID string
	// ProtoSchema is the path of the .proto file parsed at runtime.
	ProtoSchema string
	// MessageType optionally names the decoded message within the schema.
	MessageType string
	// KeyField names the payload field used as the target primary key; the
	// message key is used when empty.
	KeyField string
}

// Source is the Kafka streaming adapter. Kafka is incremental-only: there is
// no full scan, and positions live in the broker.
type Source struct {
	cfg     Config
	decoder *ProtoDecoder
}

var _ core.Source = (*Source)(nil)

func Open(ctx context.Context, cfg Config) (*Source, error) {
	if len(cfg.Brokers) == 0 {
		return nil, &core.ConfigError{Msg: "kafka source requires --brokers"}
	}
	if len(cfg.Topics) == 0 {
		return nil, &core.ConfigError{Msg: "kafka source requires at least one topic"}
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "surreal-sync"
	}
	decoder, err := NewProtoDecoder(cfg.ProtoSchema, cfg.MessageType)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"brokers": strings.Join(cfg.Brokers, ","),
		"group":   cfg.GroupID,
		"message": decoder.MessageName(),
	}).Debug("kafka source configured")
	return &Source{cfg: cfg, decoder: decoder}, nil
}

// CurrentPosition returns the broker-managed marker. Kafka keeps positions
// per consumer group on the broker, so there is nothing to capture here.
func (s *Source) CurrentPosition(ctx context.Context) (checkpoint.Checkpoint, error) {
	return Position{}, nil
}

func (s *Source) Tables(ctx context.Context) ([]string, error) {
	return s.cfg.Topics, nil
}

// FullScan is not available: a topic has no authoritative snapshot to copy.
func (s *Source) FullScan(ctx context.Context, table string) (core.Scan, error) {
	return nil, &core.UnsupportedError{What: "full scan of a kafka topic"}
}

func (s *Source) OpenChanges(ctx context.Context, from, until checkpoint.Checkpoint, opts core.StreamOptions) (core.ChangeStream, error) {
	if until != nil {
		return nil, &core.ConfigError{Msg: "kafka sync does not support --until-checkpoint; offsets are broker-managed"}
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     s.cfg.Brokers,
		GroupID:     s.cfg.GroupID,
		GroupTopics: s.cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     maxWait(opts),
	})
	return &topicStream{
		reader:   reader,
		decoder:  s.decoder,
		keyField: s.cfg.KeyField,
	}, nil
}

func maxWait(opts core.StreamOptions) time.Duration {
	if opts.PollInterval > 0 {
		return opts.PollInterval
	}
	return time.Second
}

func (s *Source) Close(ctx context.Context) error { return nil }

// topicStream fetches messages and commits each message's offset only after
// the driver came back for the next one, by which point the previous change
// was applied to the target. A write failure therefore leaves the offset
// uncommitted and the message is re-delivered after restart.
type topicStream struct {
	reader   *kafkago.Reader
	decoder  *ProtoDecoder
	keyField string

	pending  *kafkago.Message
	position Position
	closed   bool
}

var _ core.ChangeStream = (*topicStream)(nil)

func (t *topicStream) Next(ctx context.Context) (*core.Change, error) {
	if t.closed {
		return nil, fmt.Errorf("stream is closed")
	}
	if t.pending != nil {
		if err := t.reader.CommitMessages(ctx, *t.pending); err != nil {
			return nil, &core.SourceError{Op: "commit offset", Position: t.position.ToCLIString(), Err: err}
		}
		t.pending = nil
	}

	msg, err := t.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.SourceError{Op: "fetch message", Position: t.position.ToCLIString(), Err: err}
	}

	fields, err := t.decoder.Decode(msg.Value)
	if err != nil {
		return nil, err
	}
	key, err := t.messageKey(&msg, fields)
	if err != nil {
		return nil, err
	}

	t.pending = &msg
	t.position = Position{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset}
	return &core.Change{
		Target: msg.Topic,
		Op:     core.OpCreate,
		Key:    key,
		After:  fields,
	}, nil
}

func (t *topicStream) messageKey(msg *kafkago.Message, fields *core.Fields) (core.Value, error) {
	if t.keyField != "" {
		v, ok := fields.Get(t.keyField)
		if !ok {
			return nil, &core.TypeConversionError{Field: t.keyField, Got: "absent key field"}
		}
		return v, nil
	}
	if len(msg.Key) > 0 {
		return core.Text(string(msg.Key)), nil
	}
	// Keyless messages stay unique per partition slot.
	return core.Text(fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)), nil
}

func (t *topicStream) Position() checkpoint.Checkpoint { return t.position }

func (t *topicStream) Close() error {
	t.closed = true
	// The pending offset is deliberately not committed here: Close also runs
	// when the driver aborted on a failed write, and committing would lose
	// that message. An applied-but-uncommitted message is re-delivered on
	// restart and absorbed by the idempotent apply.
	t.pending = nil
	return t.reader.Close()
}
