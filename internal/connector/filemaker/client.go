package filemaker

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/fmsync/fmsync/internal/connector/http"
	"github.com/fmsync/fmsync/internal/core"
	"github.com/fmsync/fmsync/internal/endpoint"
)

// Client talks to the FileMaker Data API. Sessions are opened lazily per
// database and closed together by Logout; the server expires idle sessions
// after 15 minutes regardless.
type Client struct {
	http   *http.Client
	config *Config

	mu       sync.Mutex
	sessions map[string]string // database -> bearer token
}

// NewClient creates a Data API client from the given configuration.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpConfig := http.DefaultClientConfig()
	httpConfig.BaseURL = config.BaseURL
	httpConfig.InsecureSkipVerify = !config.SSLVerifyEnabled()
	httpConfig.Headers["Accept"] = "application/json"

	return &Client{
		http:     http.NewClient(httpConfig),
		config:   config,
		sessions: make(map[string]string),
	}, nil
}

// NewClientWithTransport creates a client with a stub transport for tests.
func NewClientWithTransport(config *Config, transport nethttp.RoundTripper) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	httpConfig := http.DefaultClientConfig()
	httpConfig.BaseURL = config.BaseURL
	httpConfig.Transport = transport
	httpConfig.RateLimit = 10000
	httpConfig.RateBurst = 10000
	httpConfig.Headers["Accept"] = "application/json"

	return &Client{
		http:     http.NewClient(httpConfig),
		config:   config,
		sessions: make(map[string]string),
	}, nil
}

func (c *Client) databasePath(database string) string {
	return fmt.Sprintf("/fmi/data/%s/databases/%s", c.config.APIVersion, url.PathEscape(database))
}

func (c *Client) basicAuth() http.AuthConfig {
	return http.BasicAuth{Username: c.config.Username, Password: c.config.Password}
}

// Login opens a Data API session for the given database and stores its token.
func (c *Client) Login(ctx context.Context, database string) error {
	resp, err := c.http.PostJSONAuth(ctx, c.databasePath(database)+"/sessions", map[string]any{}, c.basicAuth())
	if err != nil {
		return core.Wrap(core.CodeAuthInvalid, false,
			fmt.Errorf("login to database %q failed (verify username, password and database name): %w", database, err))
	}

	var env apiEnvelope
	if err := resp.JSON(&env); err != nil {
		return core.FetchErrorf("parse login response: %w", err)
	}
	var session sessionResponse
	if err := json.Unmarshal(env.Response, &session); err != nil || session.Token == "" {
		return core.FetchErrorf("login response carried no session token")
	}

	c.mu.Lock()
	c.sessions[database] = session.Token
	c.mu.Unlock()
	return nil
}

// Logout closes every open session. Errors are collected but not fatal;
// the server reaps abandoned sessions on its own.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	sessions := make(map[string]string, len(c.sessions))
	for db, token := range c.sessions {
		sessions[db] = token
	}
	c.sessions = make(map[string]string)
	c.mu.Unlock()

	var firstErr error
	for db, token := range sessions {
		if _, err := c.http.Delete(ctx, c.databasePath(db)+"/sessions/"+token); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases client resources, closing open sessions best-effort.
func (c *Client) Close() error {
	return c.Logout(context.Background())
}

func (c *Client) sessionAuth(ctx context.Context, database string) (http.AuthConfig, error) {
	c.mu.Lock()
	token, ok := c.sessions[database]
	c.mu.Unlock()
	if !ok {
		if err := c.Login(ctx, database); err != nil {
			return nil, err
		}
		c.mu.Lock()
		token = c.sessions[database]
		c.mu.Unlock()
	}
	return http.BearerToken{Token: token}, nil
}

// decode unwraps the Data API envelope, surfacing the embedded message code.
func decode(resp *http.Response, target any) error {
	var env apiEnvelope
	if err := resp.JSON(&env); err != nil {
		return core.FetchErrorf("parse response envelope: %w", err)
	}
	if target == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, target); err != nil {
		return core.FetchErrorf("parse response body: %w", err)
	}
	return nil
}

// apiCode extracts the Data API message code from a response body, "" if none.
func apiCode(body []byte) string {
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if len(env.Messages) == 0 {
		return ""
	}
	return env.Messages[0].Code
}

// ListDatabases returns the names of all databases the credentials can see.
// The databases listing is a server-level call authenticated with Basic auth.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	resp, err := c.http.Do(ctx, &http.Request{
		Method: "GET",
		Path:   fmt.Sprintf("/fmi/data/%s/databases", c.config.APIVersion),
		Auth:   c.basicAuth(),
	})
	if err != nil {
		return nil, core.Wrap(core.CodeFetchFailed, true, fmt.Errorf("list databases: %w", err))
	}

	var body databasesResponse
	if err := decode(resp, &body); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body.Databases))
	for _, db := range body.Databases {
		names = append(names, db.Name)
	}
	return names, nil
}

// ListLayouts returns all layout names in a database, flattening folders.
func (c *Client) ListLayouts(ctx context.Context, database string) ([]string, error) {
	auth, err := c.sessionAuth(ctx, database)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, &http.Request{
		Method: "GET",
		Path:   c.databasePath(database) + "/layouts",
		Auth:   auth,
	})
	if err != nil {
		return nil, core.Wrap(core.CodeFetchFailed, true, fmt.Errorf("list layouts for %q: %w", database, err))
	}

	var body layoutsResponse
	if err := decode(resp, &body); err != nil {
		return nil, err
	}
	return flattenLayouts(body.Layouts), nil
}

func flattenLayouts(entries []layoutEntry) []string {
	var names []string
	for _, e := range entries {
		if e.IsFolder {
			names = append(names, flattenLayouts(e.FolderLayoutNames)...)
			continue
		}
		if e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names
}

// LayoutSchema returns the field descriptors of a layout.
func (c *Client) LayoutSchema(ctx context.Context, database, layout string) ([]*endpoint.FieldDefinition, error) {
	auth, err := c.sessionAuth(ctx, database)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, &http.Request{
		Method: "GET",
		Path:   c.databasePath(database) + "/layouts/" + url.PathEscape(layout),
		Auth:   auth,
	})
	if err != nil {
		return nil, core.Wrap(core.CodeFetchFailed, true, fmt.Errorf("layout schema for %s/%s: %w", database, layout, err))
	}

	var body layoutMetadataResponse
	if err := decode(resp, &body); err != nil {
		return nil, err
	}

	fields := make([]*endpoint.FieldDefinition, 0, len(body.FieldMetaData))
	for i, f := range body.FieldMetaData {
		fields = append(fields, &endpoint.FieldDefinition{
			Name:        f.Name,
			DataType:    f.Type,
			Result:      f.Result,
			Global:      f.Global,
			Repetitions: f.Repetitions,
			MaxLength:   f.MaxCharacters,
			Position:    i + 1,
		})
	}
	return fields, nil
}

// FindPage issues one paginated find call for a single payload.
// Offsets are 1-based; the Data API signals "no records match" with HTTP 500
// and message code 401, which is returned as an empty page, not an error.
func (c *Client) FindPage(ctx context.Context, database, layout string, payload FindQuery, offset, limit int) (*Page, error) {
	auth, err := c.sessionAuth(ctx, database)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query":  []FindQuery{payload},
		"offset": offset,
		"limit":  limit,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, core.FetchErrorf("marshal find payload: %w", err)
	}

	resp, err := c.http.Do(ctx, &http.Request{
		Method:  "POST",
		Path:    c.databasePath(database) + "/layouts/" + url.PathEscape(layout) + "/_find",
		Body:    data,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    auth,
	})
	if err != nil {
		if resp != nil && apiCode(resp.Body) == codeNoRecordsMatch {
			return &Page{}, nil
		}
		return nil, err
	}

	var page Page
	if err := decode(resp, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListPage issues one paginated list-records call (no filter).
func (c *Client) ListPage(ctx context.Context, database, layout string, offset, limit int) (*Page, error) {
	auth, err := c.sessionAuth(ctx, database)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("_offset", strconv.Itoa(offset))
	query.Set("_limit", strconv.Itoa(limit))

	resp, err := c.http.Do(ctx, &http.Request{
		Method: "GET",
		Path:   c.databasePath(database) + "/layouts/" + url.PathEscape(layout) + "/records",
		Query:  query,
		Auth:   auth,
	})
	if err != nil {
		if resp != nil && apiCode(resp.Body) == codeNoRecordsMatch {
			return &Page{}, nil
		}
		return nil, err
	}

	var page Page
	if err := decode(resp, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
