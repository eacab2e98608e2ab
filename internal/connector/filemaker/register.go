package filemaker

import (
	"github.com/fmsync/fmsync/internal/endpoint"
)

// init registers the FileMaker factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register("http.filemaker", func(config map[string]any) (endpoint.Endpoint, error) {
		cfg := &Config{
			BaseURL:    getString(config, "baseUrl", ""),
			Username:   getString(config, "username", ""),
			Password:   getString(config, "password", ""),
			APIVersion: getString(config, "apiVersion", DefaultAPIVersion),
			FetchSize:  getInt(config, "fetchSize", DefaultFetchSize),
		}
		if v, ok := config["sslVerify"].(bool); ok {
			cfg.SSLVerify = &v
		}
		return New(cfg)
	})
}

// --- Config Helpers ---

func getString(m map[string]any, key, defaultVal string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return defaultVal
}

func getInt(m map[string]any, key string, defaultVal int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}
