// Package sink materializes normalized records into destination tables.
package sink

import (
	"context"
	"sync"

	"github.com/fmsync/fmsync/internal/endpoint"
)

// WriteMode selects how a table write treats existing rows.
type WriteMode string

const (
	// Overwrite replaces the whole table with this run's rows.
	Overwrite WriteMode = "overwrite"

	// Upsert inserts or updates rows keyed by the table's primary key.
	Upsert WriteMode = "upsert"
)

// TableSpec describes one destination table.
type TableSpec struct {
	Name       string
	Columns    []string
	Mode       WriteMode
	PrimaryKey []string

	// IncrementalFields records which columns feed the watermark; sinks
	// that emit manifests include it for downstream consumers.
	IncrementalFields []string
}

// Sink persists a batch of normalized records as one table. A successful
// return means the rows are durable.
type Sink interface {
	WriteTable(ctx context.Context, spec TableSpec, records []endpoint.Record) error
	Close() error
}

// MemorySink collects writes in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	Tables map[string][]endpoint.Record
	Specs  map[string]TableSpec
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		Tables: make(map[string][]endpoint.Record),
		Specs:  make(map[string]TableSpec),
	}
}

func (m *MemorySink) WriteTable(_ context.Context, spec TableSpec, records []endpoint.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Specs[spec.Name] = spec
	m.Tables[spec.Name] = append([]endpoint.Record(nil), records...)
	return nil
}

func (m *MemorySink) Close() error { return nil }
