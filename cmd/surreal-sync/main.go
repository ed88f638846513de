package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

var logConfig LogConfig

// runCtx is the process context; it is cancelled on SIGINT/SIGTERM so every
// in-flight operation observes the shutdown at its next suspension point.
var runCtx context.Context

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runCtx = ctx

	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.AddGroup("Logging", "Logging configuration", &logConfig); err != nil {
		log.WithField("err", err).Fatal("failed to add logging flags")
	}

	from, err := parser.Command.AddCommand("from", "Sync from a source database", `
Sync data from a source system into SurrealDB. Each source supports a "full"
one-shot copy and, where the source has a change stream, an "incremental"
replay from a checkpoint.
`, &struct{}{})
	if err != nil {
		log.WithField("err", err).Fatal("failed to add from command")
	}

	pg := addCmd(from, "postgres", "Sync from PostgreSQL (trigger-based capture)", `
Sync from PostgreSQL using trigger+audit-table change capture.
`, &struct{}{})
	addCmd(pg, "full", "Full sync from PostgreSQL", "", &cmdPostgresFull{})
	addCmd(pg, "incremental", "Incremental sync from PostgreSQL", "", &cmdPostgresIncremental{})

	wal := addCmd(from, "postgresql-wal2json", "Sync from PostgreSQL (logical replication)", `
Sync from PostgreSQL using logical replication through the wal2json output
plugin. Requires wal_level=logical and the wal2json plugin on the server.
`, &struct{}{})
	addCmd(wal, "full", "Full sync through the wal2json backend", "", &cmdWalFull{})
	addCmd(wal, "incremental", "Incremental sync from a WAL position", "", &cmdWalIncremental{})

	my := addCmd(from, "mysql", "Sync from MySQL", `
Sync from MySQL using trigger+audit-table change capture.
`, &struct{}{})
	addCmd(my, "full", "Full sync from MySQL", "", &cmdMySQLFull{})
	addCmd(my, "incremental", "Incremental sync from MySQL", "", &cmdMySQLIncremental{})

	mongo := addCmd(from, "mongodb", "Sync from MongoDB", `
Sync from MongoDB using change streams. Incremental sync requires the server
to run as a replica set.
`, &struct{}{})
	addCmd(mongo, "full", "Full sync from MongoDB", "", &cmdMongoFull{})
	addCmd(mongo, "incremental", "Incremental sync from MongoDB", "", &cmdMongoIncremental{})

	neo := addCmd(from, "neo4j", "Sync from Neo4j", `
Sync from Neo4j using timestamp-based polling of an updated_at property.
Deletes between polls are not observable via this mechanism.
`, &struct{}{})
	addCmd(neo, "full", "Full sync from Neo4j", "", &cmdNeo4jFull{})
	addCmd(neo, "incremental", "Incremental sync from Neo4j", "", &cmdNeo4jIncremental{})

	kafkaCmd := addCmd(from, "kafka", "Sync from Kafka", `
Consume protobuf-encoded Kafka topics into SurrealDB. Offsets are committed
to the broker after each target write, so a failed write re-delivers.
`, &struct{}{})
	addCmd(kafkaCmd, "incremental", "Consume Kafka topics", "", &cmdKafkaIncremental{})

	csvCmd := addCmd(from, "csv", "Import a CSV file", `
Import a CSV file (local, HTTP or S3) into one target table.
`, &struct{}{})
	addCmd(csvCmd, "full", "Import a CSV file", "", &cmdCSVFull{})

	jsonlCmd := addCmd(from, "jsonl", "Import a JSONL file", `
Import a JSON-lines file (local, HTTP or S3) into one target table.
`, &struct{}{})
	addCmd(jsonlCmd, "full", "Import a JSONL file", "", &cmdJSONLFull{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithField("err", err).Error("invalid arguments")
		os.Exit(1)
	}
}

func addCmd(to *flags.Command, a, b, c string, iface interface{}) *flags.Command {
	cmd, err := to.AddCommand(a, b, c, iface)
	if err != nil {
		log.WithField("err", err).Fatal("failed to add command")
	}
	return cmd
}

// run executes a command body, mapping its error to the documented exit
// codes.
func run(body func(ctx context.Context) error) error {
	initLog(logConfig)
	err := body(runCtx)
	if err != nil {
		log.WithField("err", err).Error("sync failed")
		os.Exit(exitCode(err))
	}
	return nil
}
