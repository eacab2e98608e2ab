// Package config provides configuration loading for fmsync runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fmsync/fmsync/internal/core"
)

// ObjectType selects what a run extracts.
type ObjectType string

const (
	// ObjectTypeMetadata extracts database/layout listings and field schemas.
	ObjectTypeMetadata ObjectType = "metadata"
	// ObjectTypeLayout extracts records from a single layout.
	ObjectTypeLayout ObjectType = "layout"
)

// DefaultPageSize is the number of records requested per Data API call.
const DefaultPageSize = 1000

// DefaultIncrementalField is the watermark source when none is configured.
const DefaultIncrementalField = "_Timestamp_Modified"

// QueryCriterion is one field filter in FileMaker find syntax.
type QueryCriterion struct {
	FieldName    string `json:"field_name"`
	FindCriteria string `json:"find_criteria"`
}

// QueryGroup is one OR-branch: its criteria are AND-combined.
type QueryGroup []QueryCriterion

// LayoutRef identifies a layout within a database.
type LayoutRef struct {
	Database   string `json:"database"`
	LayoutName string `json:"layout_name"`
}

// LoadingOptions control output write mode and incremental fetching.
type LoadingOptions struct {
	// Incremental selects the write mode: 0 full overwrite, 1 upsert on Pkey.
	Incremental int `json:"incremental"`

	// Pkey is the primary key column set; required when Incremental is 1.
	Pkey []string `json:"pkey,omitempty"`

	// IncrementalFetch augments the query with a watermark lower bound.
	IncrementalFetch bool `json:"incremental_fetch"`

	// IncrementalFields holds the watermark source field. The schema models
	// it as a list but at most one entry is supported.
	IncrementalFields []string `json:"incremental_fields,omitempty"`
}

// QueryConfig is the root run configuration. It is constructed once per run
// and immutable thereafter.
type QueryConfig struct {
	ObjectType     ObjectType     `json:"object_type"`
	Database       string         `json:"database,omitempty"`
	LayoutName     string         `json:"layout_name,omitempty"`
	FieldMetadata  []LayoutRef    `json:"field_metadata,omitempty"`
	QueryGroups    []QueryGroup   `json:"query,omitempty"`
	LoadingOptions LoadingOptions `json:"loading_options"`
	PageSize       int            `json:"page_size,omitempty"`
}

// Parse decodes a QueryConfig document and applies defaults.
func Parse(data []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, core.ConfigErrorf("parse query config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// ParseFile reads and decodes a QueryConfig document from disk.
func ParseFile(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ConfigErrorf("read query config: %w", err)
	}
	return Parse(data)
}

func (c *QueryConfig) applyDefaults() {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.LoadingOptions.IncrementalFetch && len(c.LoadingOptions.IncrementalFields) == 0 {
		c.LoadingOptions.IncrementalFields = []string{DefaultIncrementalField}
	}
}

// Validate enforces the QueryConfig invariants. It runs before any remote
// call; every violation is a non-retryable config error.
func (c *QueryConfig) Validate() error {
	switch c.ObjectType {
	case ObjectTypeLayout:
		if c.Database == "" || c.LayoutName == "" {
			return core.ConfigErrorf("object_type %q requires both database and layout_name", c.ObjectType)
		}
		if len(c.FieldMetadata) > 0 {
			return core.ConfigErrorf("field_metadata is only valid when object_type is %q", ObjectTypeMetadata)
		}
	case ObjectTypeMetadata:
		if c.Database != "" || c.LayoutName != "" {
			return core.ConfigErrorf("database/layout_name are only valid when object_type is %q", ObjectTypeLayout)
		}
		for i, ref := range c.FieldMetadata {
			if ref.Database == "" || ref.LayoutName == "" {
				return core.ConfigErrorf("field_metadata[%d]: database and layout_name are required", i)
			}
		}
	default:
		return core.ConfigErrorf("unknown object_type %q", c.ObjectType)
	}

	if c.PageSize <= 0 {
		return core.ConfigErrorf("page_size must be positive, got %d", c.PageSize)
	}

	for gi, group := range c.QueryGroups {
		seen := make(map[string]struct{}, len(group))
		for _, crit := range group {
			if crit.FieldName == "" {
				return core.ConfigErrorf("query group %d: field_name must not be empty", gi)
			}
			if _, dup := seen[crit.FieldName]; dup {
				return core.ConfigErrorf("query group %d: duplicate field %q (criteria within a group are AND-combined)", gi, crit.FieldName)
			}
			seen[crit.FieldName] = struct{}{}
		}
	}

	lo := c.LoadingOptions
	if lo.Incremental != 0 && lo.Incremental != 1 {
		return core.ConfigErrorf("loading_options.incremental must be 0 or 1, got %d", lo.Incremental)
	}
	if lo.Incremental == 1 && len(lo.Pkey) == 0 {
		return core.ConfigErrorf("loading_options.pkey is required when incremental is 1")
	}
	if lo.IncrementalFetch {
		if lo.Incremental != 1 {
			return core.ConfigErrorf("incremental_fetch requires incremental = 1")
		}
		if len(lo.Pkey) == 0 {
			return core.ConfigErrorf("incremental_fetch requires a non-empty pkey")
		}
	}
	if len(lo.IncrementalFields) > 1 {
		return core.ConfigErrorf("at most one incremental field is supported, got %d", len(lo.IncrementalFields))
	}

	return nil
}

// IncrementalField returns the configured watermark field, or "".
func (c *QueryConfig) IncrementalField() string {
	if len(c.LoadingOptions.IncrementalFields) == 0 {
		return ""
	}
	return c.LoadingOptions.IncrementalFields[0]
}

// RuntimeConfig holds process-level settings read from the environment.
type RuntimeConfig struct {
	// FileMaker server connection
	BaseURL    string
	Username   string
	Password   string
	APIVersion string
	SSLVerify  bool

	// Backend selection
	StateDSN   string // postgres DSN; empty means file/memory state
	StatePath  string // file state path
	SinkKind   string // "csv", "postgres", "object"
	SinkDSN    string
	OutputDir  string
	RunTimeout int // seconds, 0 means no timeout

	// Object sink settings
	ObjectEndpoint  string
	ObjectAccessKey string
	ObjectSecretKey string
	ObjectBucket    string
	ObjectPrefix    string
	ObjectUseSSL    bool
}

// LoadRuntimeConfig loads runtime settings from environment variables.
func LoadRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		BaseURL:    getEnv("FM_BASE_URL", ""),
		Username:   getEnv("FM_USERNAME", ""),
		Password:   getEnv("FM_PASSWORD", ""),
		APIVersion: getEnv("FM_API_VERSION", "v2"),
		SSLVerify:  getEnvBool("FM_SSL_VERIFY", true),

		StateDSN:   getEnv("FMSYNC_STATE_DSN", ""),
		StatePath:  getEnv("FMSYNC_STATE_PATH", "state.json"),
		SinkKind:   getEnv("FMSYNC_SINK", "csv"),
		SinkDSN:    getEnv("FMSYNC_SINK_DSN", ""),
		OutputDir:  getEnv("FMSYNC_OUTPUT_DIR", "out"),
		RunTimeout: getEnvInt("FMSYNC_RUN_TIMEOUT_SECS", 0),

		ObjectEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		ObjectAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		ObjectSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		ObjectBucket:    getEnv("MINIO_BUCKET", "fmsync"),
		ObjectPrefix:    getEnv("MINIO_PREFIX", "tables"),
		ObjectUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

// Validate checks that the connection settings are present.
func (r *RuntimeConfig) Validate() error {
	if r.BaseURL == "" {
		return core.ConfigErrorf("FM_BASE_URL is required")
	}
	if r.Username == "" || r.Password == "" {
		return core.ConfigErrorf("FM_USERNAME and FM_PASSWORD are required")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// String renders a short description for logging.
func (c *QueryConfig) String() string {
	if c.ObjectType == ObjectTypeMetadata {
		return fmt.Sprintf("metadata (%d schema targets)", len(c.FieldMetadata))
	}
	return fmt.Sprintf("layout %s/%s (%d query groups)", c.Database, c.LayoutName, len(c.QueryGroups))
}
