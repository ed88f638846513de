package main

import (
	"context"

	"github.com/surrealdb/surreal-sync/core"
	"github.com/surrealdb/surreal-sync/filesource"
	"github.com/surrealdb/surreal-sync/syncer"
)

type fileSourceFlags struct {
	File     string `long:"file" required:"true" description:"Local path, HTTP(S) URL, or s3://bucket/key"`
	Table    string `long:"to-table" required:"true" description:"Target table name"`
	IDColumn string `long:"id-column" default:"id" description:"Column used as the primary key"`
}

func (f *fileSourceFlags) config(c *SyncConfig) (filesource.Config, error) {
	schema, err := c.loadSchema()
	if err != nil {
		return filesource.Config{}, err
	}
	return filesource.Config{
		Location: f.File,
		Table:    f.Table,
		IDColumn: f.IDColumn,
		Schema:   schema,
	}, nil
}

func runFileImport(ctx context.Context, target TargetConfig, syncCfg SyncConfig, src core.Source) error {
	client, sink, _, err := connectTarget(ctx, target, syncCfg)
	if err != nil {
		return err
	}
	defer client.Close()
	defer src.Close(ctx)

	// File sources have no change stream, so no checkpoints are emitted.
	cfg := syncer.FullConfig{
		BatchSize: syncCfg.BatchSize,
		DryRun:    syncCfg.DryRun,
	}
	_, err = syncer.FullSync(ctx, src, sink, nil, cfg)
	return err
}

type cmdCSVFull struct {
	Target TargetConfig    `group:"Target"`
	Sync   SyncConfig      `group:"Sync"`
	Source fileSourceFlags `group:"Source"`
}

func (c *cmdCSVFull) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		cfg, err := c.Source.config(&c.Sync)
		if err != nil {
			return err
		}
		src, err := filesource.NewCSV(cfg)
		if err != nil {
			return err
		}
		return runFileImport(ctx, c.Target, c.Sync, src)
	})
}

type cmdJSONLFull struct {
	Target TargetConfig    `group:"Target"`
	Sync   SyncConfig      `group:"Sync"`
	Source fileSourceFlags `group:"Source"`
}

func (c *cmdJSONLFull) Execute(_ []string) error {
	return run(func(ctx context.Context) error {
		cfg, err := c.Source.config(&c.Sync)
		if err != nil {
			return err
		}
		src, err := filesource.NewJSONL(cfg)
		if err != nil {
			return err
		}
		return runFileImport(ctx, c.Target, c.Sync, src)
	})
}
