package main

import (
	"context"

	"github.com/surrealdb/surreal-sync/kafka"
	"github.com/surrealdb/surreal-sync/syncer"
)

type cmdKafkaIncremental struct {
	Target TargetConfig `group:"Target"`
	Sync   SyncConfig   `group:"Sync"`

	Brokers     []string `long:"brokers" required:"true" description:"Kafka broker address; repeatable"`
	Topics      []string `long:"topic" required:"true" description:"Topic to consume; repeatable"`
	GroupID     string   `long:"group-id" default:"surreal-sync" description:"Consumer group name"`
	ProtoSchema string   `long:"proto-schema" required:"true" description:".proto file describing message payloads"`
	MessageType string   `long:"message-type" description:"Message type within the schema"`
	KeyField    string   `long:"key-field" description:"Payload field used as the target primary key"`
	Timeout     string   `long:"timeout" description:"Overall deadline, digits with optional s/m/h suffix"`
}

func (c *cmdKafkaIncremental) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		deadline, err := parseTimeout(c.Timeout)
		if err != nil {
			return err
		}
		client, sink, _, err := connectTarget(ctx, c.Target, c.Sync)
		if err != nil {
			return err
		}
		defer client.Close()

		src, err := kafka.Open(ctx, kafka.Config{
			Brokers:     c.Brokers,
			Topics:      c.Topics,
			GroupID:     c.GroupID,
			ProtoSchema: c.ProtoSchema,
			MessageType: c.MessageType,
			KeyField:    c.KeyField,
		})
		if err != nil {
			return err
		}
		defer src.Close(ctx)

		// Kafka's durable position is the broker-side consumer-group offset,
		// so the run starts from the group position and persists nothing.
		from, err := src.CurrentPosition(ctx)
		if err != nil {
			return err
		}
		cfg := syncer.IncrementalConfig{
			BatchSize: c.Sync.BatchSize,
			Deadline:  deadline,
			DryRun:    c.Sync.DryRun,
		}
		return syncer.Incremental(ctx, src, sink, nil, from, nil, cfg)
	})
}
