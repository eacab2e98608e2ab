// Package endpoint defines the contracts the sync engine expects from a
// data-source connector.
//
// Architecture:
//
//	Endpoint  - base contract (ID, ValidateConfig, Capabilities, Descriptor)
//	Source    - read side (ListDatasets, GetSchema, Read)
//
// Connectors register a Factory with the Registry; the runner instantiates
// them by template ID from configuration.
package endpoint

import "context"

// Endpoint is the base contract every connector implements.
type Endpoint interface {
	// ID returns the unique template identifier (e.g., "http.filemaker").
	ID() string

	// ValidateConfig tests configuration validity and connectivity.
	ValidateConfig(ctx context.Context) (*ValidationResult, error)

	// GetCapabilities returns the set of supported operations.
	GetCapabilities() *Capabilities

	// GetDescriptor returns metadata about this endpoint type.
	GetDescriptor() *Descriptor

	// Close releases any resources held by the endpoint.
	Close() error
}

// Source can read records from an external system.
type Source interface {
	Endpoint

	// ListDatasets returns available datasets (layouts, tables, collections).
	ListDatasets(ctx context.Context) ([]*Dataset, error)

	// GetSchema returns the field schema for a specific dataset.
	GetSchema(ctx context.Context, datasetID string) (*Schema, error)

	// Read streams records from a dataset.
	// Returns an Iterator that must be closed after use.
	Read(ctx context.Context, req *ReadRequest) (Iterator[Record], error)
}
