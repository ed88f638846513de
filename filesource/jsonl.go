package filesource

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/surrealdb/surreal-sync/core"
)

// JSONLSource imports one JSON-lines file, one object per line, into one
// table. Decoding shares the audit-table JSON codec.
type JSONLSource struct {
	fileSource
	codec *core.JSONCodec
}

var _ core.Source = (*JSONLSource)(nil)

func NewJSONL(cfg Config) (*JSONLSource, error) {
	if cfg.Location == "" || cfg.Table == "" {
		return nil, &core.ConfigError{Msg: "jsonl source requires a file location and a target table"}
	}
	return &JSONLSource{
		fileSource: fileSource{cfg: cfg},
		codec:      &core.JSONCodec{Schema: cfg.Schema},
	}, nil
}

func (s *JSONLSource) FullScan(ctx context.Context, table string) (core.Scan, error) {
	rc, err := OpenLocation(ctx, s.cfg.Location, s.cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &jsonlScan{source: s, rc: rc, scanner: scanner}, nil
}

type jsonlScan struct {
	source  *JSONLSource
	rc      io.Closer
	scanner *bufio.Scanner
	line    int
}

func (j *jsonlScan) Next(ctx context.Context) (core.ScanItem, error) {
	for {
		if err := ctx.Err(); err != nil {
			return core.ScanItem{}, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return core.ScanItem{}, &core.SourceError{Op: "read " + j.source.cfg.Location, Err: err}
			}
			return core.ScanItem{}, io.EOF
		}
		j.line++
		line := j.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		fields, err := j.source.codec.DecodeDocument(j.source.cfg.Table, json.RawMessage(line))
		if err != nil {
			return core.ScanItem{}, err
		}
		row, err := j.source.rowFromFields(fields)
		if err != nil {
			return core.ScanItem{}, err
		}
		return core.ScanItem{Row: row}, nil
	}
}

func (j *jsonlScan) Close() error { return j.rc.Close() }
