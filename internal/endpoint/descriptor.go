package endpoint

// Descriptor provides metadata about an endpoint type.
// Consumed by configuration editors for rendering forms; the engine itself
// never reads it.
type Descriptor struct {
	ID          string
	Family      string
	Title       string
	Vendor      string
	Description string
	Protocols   []string
	DocsURL     string
	Fields      []*FieldDescriptor
}

// FieldDescriptor defines a configuration field.
type FieldDescriptor struct {
	Key          string
	Label        string
	ValueType    string // "string", "integer", "boolean", "password"
	Required     bool
	Description  string
	Placeholder  string
	DefaultValue string
	Sensitive    bool
}
