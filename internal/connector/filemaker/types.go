package filemaker

import "encoding/json"

// Config holds FileMaker Data API connection configuration.
type Config struct {
	// BaseURL is the FileMaker server URL (e.g., https://fms.example.com)
	BaseURL string `json:"baseUrl"`

	// Username and Password authenticate Data API sessions.
	Username string `json:"username"`
	Password string `json:"password"`

	// APIVersion selects the Data API version path segment (default "v2").
	APIVersion string `json:"apiVersion,omitempty"`

	// SSLVerify controls TLS certificate verification (default true).
	SSLVerify *bool `json:"sslVerify,omitempty"`

	// FetchSize is the number of records per API request.
	FetchSize int `json:"fetchSize,omitempty"`
}

// DefaultFetchSize is the default number of records per request.
const DefaultFetchSize = 1000

// DefaultAPIVersion is the Data API version used when none is configured.
const DefaultAPIVersion = "v2"

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &ValidationError{Field: "baseUrl", Message: "required"}
	}
	if c.Username == "" {
		return &ValidationError{Field: "username", Message: "required"}
	}
	if c.Password == "" {
		return &ValidationError{Field: "password", Message: "required"}
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.FetchSize <= 0 {
		c.FetchSize = DefaultFetchSize
	}
	return nil
}

// SSLVerifyEnabled resolves the optional flag with its default.
func (c *Config) SSLVerifyEnabled() bool {
	if c.SSLVerify == nil {
		return true
	}
	return *c.SSLVerify
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// =============================================================================
// DATA API RESPONSE TYPES
// =============================================================================

// apiMessage is one entry of the messages array every Data API response
// carries. Code "0" means OK; "401" means no records matched.
type apiMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// apiEnvelope is the outer shape of every Data API response.
type apiEnvelope struct {
	Messages []apiMessage    `json:"messages"`
	Response json.RawMessage `json:"response"`
}

// codeNoRecordsMatch is the Data API error code for an empty find result.
// The server pairs it with HTTP 500, so it must be handled before generic
// HTTP error mapping.
const codeNoRecordsMatch = "401"

// RawRecord is one record as returned by the Data API.
type RawRecord struct {
	RecordID   string         `json:"recordId"`
	ModID      string         `json:"modId"`
	FieldData  map[string]any `json:"fieldData"`
	PortalData map[string]any `json:"portalData,omitempty"`
}

// DataInfo describes a result page.
type DataInfo struct {
	Database         string `json:"database"`
	Layout           string `json:"layout"`
	Table            string `json:"table"`
	TotalRecordCount int64  `json:"totalRecordCount"`
	FoundCount       int64  `json:"foundCount"`
	ReturnedCount    int    `json:"returnedCount"`
}

// Page is one page of records plus its metadata.
type Page struct {
	Records  []RawRecord `json:"data"`
	DataInfo DataInfo    `json:"dataInfo"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

type databasesResponse struct {
	Databases []struct {
		Name string `json:"name"`
	} `json:"databases"`
}

type layoutEntry struct {
	Name              string        `json:"name"`
	IsFolder          bool          `json:"isFolder,omitempty"`
	FolderLayoutNames []layoutEntry `json:"folderLayoutNames,omitempty"`
}

type layoutsResponse struct {
	Layouts []layoutEntry `json:"layouts"`
}

// fieldMeta is one field descriptor from a layout metadata response.
type fieldMeta struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	DisplayType   string `json:"displayType"`
	Result        string `json:"result"`
	Global        bool   `json:"global"`
	Repetitions   int    `json:"repetitions"`
	MaxCharacters int    `json:"maxCharacters"`
}

type layoutMetadataResponse struct {
	FieldMetaData []fieldMeta `json:"fieldMetaData"`
}
