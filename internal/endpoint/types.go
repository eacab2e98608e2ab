package endpoint

// Record represents a single raw source record as key-value pairs.
type Record = map[string]any

// Iterator provides streaming access to records. It is finite and
// non-restartable.
type Iterator[T any] interface {
	// Next advances to the next record. Returns false when done or on error.
	Next() bool

	// Value returns the current record. Only valid after Next() returns true.
	Value() T

	// Err returns any error encountered during iteration.
	Err() error

	// Close releases resources. Must be called when done.
	Close() error
}

// ValidationResult reports the outcome of a connectivity check.
type ValidationResult struct {
	Valid           bool
	Message         string
	DetectedVersion string
}

// Capabilities advertises what a connector supports.
type Capabilities struct {
	SupportsFull        bool
	SupportsIncremental bool
	SupportsMetadata    bool
	SupportsFindQueries bool

	DefaultFetchSize int
}

// Dataset describes one readable collection exposed by a source.
type Dataset struct {
	ID                  string
	Name                string
	Database            string
	Kind                string // "layout", "table"
	SupportsIncremental bool
	IncrementalColumn   string
}

// Schema describes the fields of a dataset.
type Schema struct {
	Fields []*FieldDefinition
}

// FieldDefinition describes one source field.
type FieldDefinition struct {
	Name        string
	DataType    string
	Result      string // declared result type: "text", "number", "timestamp"
	Global      bool
	Repetitions int
	MaxLength   int
	Position    int
}

// ReadRequest asks a source for records.
type ReadRequest struct {
	DatasetID string

	// FindPayloads carries OR-combined find requests; empty means list all.
	FindPayloads []map[string]string

	// PageSize is the number of records per remote call.
	PageSize int

	// Limit caps the total records returned; 0 means unlimited.
	Limit int64
}
