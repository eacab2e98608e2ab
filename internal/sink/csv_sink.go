package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// CSVSink writes each table as <name>.csv plus a <name>.csv.manifest
// JSON sidecar carrying the primary key and incremental flag. Files are
// written to a temp path and renamed so partial output never survives.
type CSVSink struct {
	dir string
}

// manifest is the sidecar document written next to each CSV.
type manifest struct {
	Columns           []string `json:"columns"`
	PrimaryKey        []string `json:"primary_key,omitempty"`
	Incremental       bool     `json:"incremental"`
	IncrementalFields []string `json:"incremental_fields,omitempty"`
}

// NewCSVSink creates a sink writing into dir, creating it if needed.
func NewCSVSink(dir string) (*CSVSink, error) {
	if dir == "" {
		return nil, core.ConfigErrorf("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &CSVSink{dir: dir}, nil
}

func (s *CSVSink) WriteTable(ctx context.Context, spec TableSpec, records []endpoint.Record) error {
	data, err := EncodeCSV(spec.Columns, records)
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, spec.Name+".csv")
	if err := writeAtomic(path, data); err != nil {
		return core.Wrap(core.CodeSinkFailed, false, err)
	}

	m := manifest{
		Columns:           spec.Columns,
		PrimaryKey:        spec.PrimaryKey,
		Incremental:       spec.Mode == Upsert,
		IncrementalFields: spec.IncrementalFields,
	}
	doc, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(path+".manifest", doc); err != nil {
		return core.Wrap(core.CodeSinkFailed, false, err)
	}
	return ctx.Err()
}

func (s *CSVSink) Close() error { return nil }

// EncodeCSV renders records as CSV bytes with a header row. Values are
// stringified; missing columns become empty cells.
func EncodeCSV(columns []string, records []endpoint.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(columns); err != nil {
		return nil, err
	}
	row := make([]string, len(columns))
	for _, rec := range records {
		for i, col := range columns {
			if v, ok := rec[col]; ok && v != nil {
				row[i] = fmt.Sprint(v)
			} else {
				row[i] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
