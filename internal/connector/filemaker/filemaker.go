package filemaker

import (
	"context"
	"fmt"

	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// Ensure interface compliance
var _ endpoint.Source = (*FileMaker)(nil)

// FileMaker is the FileMaker Data API connector.
type FileMaker struct {
	client *Client
	config *Config
}

// New creates a new FileMaker connector with the given configuration.
func New(config *Config) (*FileMaker, error) {
	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return &FileMaker{client: client, config: config}, nil
}

// Client exposes the underlying Data API client for the sync engine.
func (f *FileMaker) Client() *Client {
	return f.client
}

// ID returns the endpoint identifier.
func (f *FileMaker) ID() string { return "http.filemaker" }

// Close releases sessions held by the connector.
func (f *FileMaker) Close() error { return f.client.Close() }

// ValidateConfig tests the connection by listing databases.
func (f *FileMaker) ValidateConfig(ctx context.Context) (*endpoint.ValidationResult, error) {
	if _, err := f.client.ListDatabases(ctx); err != nil {
		if core.HasCode(err, core.CodeAuthInvalid) {
			return &endpoint.ValidationResult{
				Valid:   false,
				Message: "Authentication failed: verify username and password",
			}, nil
		}
		return nil, err
	}
	return &endpoint.ValidationResult{
		Valid:           true,
		Message:         "Connection successful",
		DetectedVersion: f.config.APIVersion,
	}, nil
}

// GetCapabilities returns FileMaker source capabilities.
func (f *FileMaker) GetCapabilities() *endpoint.Capabilities {
	return &endpoint.Capabilities{
		SupportsFull:        true,
		SupportsIncremental: true, // watermark filter on a modified-timestamp field
		SupportsMetadata:    true,
		SupportsFindQueries: true,
		DefaultFetchSize:    f.config.FetchSize,
	}
}

// GetDescriptor returns the FileMaker endpoint descriptor.
func (f *FileMaker) GetDescriptor() *endpoint.Descriptor {
	return &endpoint.Descriptor{
		ID:          "http.filemaker",
		Family:      "http",
		Title:       "FileMaker Data API",
		Vendor:      "Claris",
		Description: "FileMaker Data API connector for layout records and schema metadata",
		Protocols:   []string{"https"},
		DocsURL:     "https://help.claris.com/en/data-api-guide/",
		Fields: []*endpoint.FieldDescriptor{
			{Key: "baseUrl", Label: "Server URL", ValueType: "string", Required: true, Placeholder: "https://fms.example.com"},
			{Key: "username", Label: "Username", ValueType: "string", Required: true},
			{Key: "password", Label: "Password", ValueType: "password", Required: true, Sensitive: true},
			{Key: "apiVersion", Label: "API Version", ValueType: "string", DefaultValue: DefaultAPIVersion},
			{Key: "sslVerify", Label: "Verify TLS Certificates", ValueType: "boolean", DefaultValue: "true"},
			{Key: "fetchSize", Label: "Page Size", ValueType: "integer", Description: "Records per API call"},
		},
	}
}

// ListDatasets returns every layout of every accessible database.
func (f *FileMaker) ListDatasets(ctx context.Context) ([]*endpoint.Dataset, error) {
	databases, err := f.client.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	var datasets []*endpoint.Dataset
	for _, db := range databases {
		layouts, err := f.client.ListLayouts(ctx, db)
		if err != nil {
			return nil, err
		}
		for _, layout := range layouts {
			datasets = append(datasets, &endpoint.Dataset{
				ID:                  db + "/" + layout,
				Name:                layout,
				Database:            db,
				Kind:                "layout",
				SupportsIncremental: true,
			})
		}
	}
	return datasets, nil
}

// GetSchema returns the field schema for a "database/layout" dataset ID.
func (f *FileMaker) GetSchema(ctx context.Context, datasetID string) (*endpoint.Schema, error) {
	database, layout, err := splitDatasetID(datasetID)
	if err != nil {
		return nil, err
	}
	fields, err := f.client.LayoutSchema(ctx, database, layout)
	if err != nil {
		return nil, err
	}
	return &endpoint.Schema{Fields: fields}, nil
}

// Read streams raw field data for a dataset, flattened into records keyed
// by source field name plus the native record identifier.
func (f *FileMaker) Read(ctx context.Context, req *endpoint.ReadRequest) (endpoint.Iterator[endpoint.Record], error) {
	database, layout, err := splitDatasetID(req.DatasetID)
	if err != nil {
		return nil, err
	}

	payloads := make([]FindQuery, 0, len(req.FindPayloads))
	for _, p := range req.FindPayloads {
		payloads = append(payloads, FindQuery(p))
	}

	raw := f.client.Records(ctx, database, layout, payloads, req.PageSize)
	return &recordAdapter{raw: raw, limit: req.Limit}, nil
}

func splitDatasetID(id string) (database, layout string, err error) {
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			if i == 0 || i == len(id)-1 {
				break
			}
			return id[:i], id[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("dataset ID must be \"database/layout\", got %q", id)
}

// recordAdapter converts RawRecords to generic endpoint records.
type recordAdapter struct {
	raw   endpoint.Iterator[RawRecord]
	limit int64
	count int64
}

func (a *recordAdapter) Next() bool {
	if a.limit > 0 && a.count >= a.limit {
		return false
	}
	return a.raw.Next()
}

func (a *recordAdapter) Value() endpoint.Record {
	rec := a.raw.Value()
	a.count++

	out := make(endpoint.Record, len(rec.FieldData)+2)
	for k, v := range rec.FieldData {
		out[k] = v
	}
	out["recordId"] = rec.RecordID
	out["modId"] = rec.ModID
	return out
}

func (a *recordAdapter) Err() error   { return a.raw.Err() }
func (a *recordAdapter) Close() error { return a.raw.Close() }
