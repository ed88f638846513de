package filesource

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/surrealdb/surreal-sync/core"
)

// CSVSource imports one CSV file, first row as header, into one table.
type CSVSource struct {
	fileSource
}

var _ core.Source = (*CSVSource)(nil)

func NewCSV(cfg Config) (*CSVSource, error) {
	if cfg.Location == "" || cfg.Table == "" {
		return nil, &core.ConfigError{Msg: "csv source requires a file location and a target table"}
	}
	return &CSVSource{fileSource{cfg: cfg}}, nil
}

func (s *CSVSource) FullScan(ctx context.Context, table string) (core.Scan, error) {
	rc, err := OpenLocation(ctx, s.cfg.Location, s.cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(rc)
	header, err := reader.Read()
	if err != nil {
		rc.Close()
		return nil, &core.SourceError{Op: "read csv header", Err: err}
	}
	return &csvScan{source: s, rc: rc, reader: reader, header: header}, nil
}

type csvScan struct {
	source *CSVSource
	rc     io.Closer
	reader *csv.Reader
	header []string
}

func (c *csvScan) Next(ctx context.Context) (core.ScanItem, error) {
	if err := ctx.Err(); err != nil {
		return core.ScanItem{}, err
	}
	record, err := c.reader.Read()
	if errors.Is(err, io.EOF) {
		return core.ScanItem{}, io.EOF
	} else if err != nil {
		return core.ScanItem{}, &core.SourceError{Op: "read csv record", Err: err}
	}

	fields := core.NewFields()
	for i, name := range c.header {
		if i >= len(record) {
			break
		}
		declared := c.source.cfg.Schema.DeclaredType(c.source.cfg.Table, name)
		v, err := decodeCSVValue(c.source.cfg.Table+"."+name, record[i], declared)
		if err != nil {
			return core.ScanItem{}, err
		}
		fields.Set(name, v)
	}
	row, err := c.source.rowFromFields(fields)
	if err != nil {
		return core.ScanItem{}, err
	}
	return core.ScanItem{Row: row}, nil
}

func (c *csvScan) Close() error { return c.rc.Close() }

// decodeCSVValue is the CSV reverse codec. With a declared type the cell
// must parse as it; without one, the narrowest of int64, decimal (exact text),
// bool and text is inferred. Empty cells are null.
func decodeCSVValue(path, cell string, declared *core.Type) (core.Value, error) {
	if declared != nil {
		if cell == "" {
			return core.Null{Of: *declared}, nil
		}
		switch declared.Kind {
		case core.KindBool:
			switch strings.ToLower(cell) {
			case "true", "t", "1":
				return core.Bool(true), nil
			case "false", "f", "0":
				return core.Bool(false), nil
			}
			return nil, &core.TypeConversionError{Field: path, Declared: *declared, Got: cell}
		case core.KindFloat32:
			f, err := strconv.ParseFloat(cell, 32)
			if err != nil {
				return nil, &core.TypeConversionError{Field: path, Declared: *declared, Got: cell, Err: err}
			}
			return core.Float32(float32(f)), nil
		case core.KindFloat64:
			f, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &core.TypeConversionError{Field: path, Declared: *declared, Got: cell, Err: err}
			}
			return core.Float64(f), nil
		case core.KindDate:
			t, err := core.ParseDate(cell)
			if err != nil {
				return nil, &core.TypeConversionError{Field: path, Declared: *declared, Got: cell, Err: err}
			}
			return core.Date{T: t}, nil
		case core.KindTime:
			t, err := core.ParseTimeOfDay(cell)
			if err != nil {
				return nil, &core.TypeConversionError{Field: path, Declared: *declared, Got: cell, Err: err}
			}
			return core.Time{T: t}, nil
		case core.KindDateTime, core.KindTimestamp:
			t, zone, err := core.ParseDateTime(cell)
			if err != nil {
				return nil, &core.TypeConversionError{Field: path, Declared: *declared, Got: cell, Err: err}
			}
			if declared.Kind == core.KindDateTime {
				return core.DateTime{T: t, SourceZone: zone}, nil
			}
			return core.Timestamp{T: t, SourceZone: zone}, nil
		default:
			return core.ParseKeyText(*declared, cell)
		}
	}

	if cell == "" {
		return core.Null{}, nil
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return core.Int64(i), nil
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return core.Decimal{Text: cell}, nil
	}
	switch strings.ToLower(cell) {
	case "true":
		return core.Bool(true), nil
	case "false":
		return core.Bool(false), nil
	}
	return core.Text(cell), nil
}
