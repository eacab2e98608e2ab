package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fmsync/fmsync/internal/core"
)

// ClientConfig configures the HTTP client behavior.
type ClientConfig struct {
	// BaseURL is the base URL for all requests.
	BaseURL string

	// Auth configures the default authentication strategy. A per-request
	// strategy on Request overrides it.
	Auth AuthConfig

	// Timeout for individual requests (default: 30s).
	Timeout time.Duration

	// MaxRetries for failed requests (default: 3).
	MaxRetries int

	// RetryStatuses are the HTTP status codes that trigger a retry.
	// Defaults to 429, 502, 503, 504. The Data API signals "no records
	// match" with HTTP 500, so plain 500s are not retried by default.
	RetryStatuses []int

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Headers to add to all requests.
	Headers map[string]string

	// UserAgent string.
	UserAgent string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultClientConfig returns a client config with sensible defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		RetryStatuses: []int{429, 502, 503, 504},
		RateLimit:     10.0,
		RateBurst:     5,
		UserAgent:     "fmsync/1.0",
		Headers:       make(map[string]string),
	}
}

// Client is a rate-limited, retry-capable HTTP client.
type Client struct {
	config      *ClientConfig
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	retryable   map[int]bool
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RetryStatuses == nil {
		config.RetryStatuses = []int{429, 502, 503, 504}
	}
	if config.RateLimit == 0 {
		config.RateLimit = 10.0
	}
	if config.RateBurst == 0 {
		config.RateBurst = 5
	}
	if config.UserAgent == "" {
		config.UserAgent = "fmsync/1.0"
	}

	transport := config.Transport
	if transport == nil && config.InsecureSkipVerify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	retryable := make(map[int]bool, len(config.RetryStatuses))
	for _, code := range config.RetryStatuses {
		retryable[code] = true
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		retryable:   retryable,
	}
}

// Request represents an HTTP request to be made.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers map[string]string
	Body    []byte

	// Auth overrides the client default for this request.
	Auth AuthConfig
}

// Response wraps an HTTP response with convenience methods.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals the response body into the given target.
func (r *Response) JSON(target any) error {
	return json.Unmarshal(r.Body, target)
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do executes a request with rate limiting and retry.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !c.isRetryable(err) {
			return resp, err
		}

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doOnce executes a single request attempt.
func (c *Client) doOnce(ctx context.Context, req *Request) (*Response, error) {
	fullURL := c.config.BaseURL
	if req.Path != "" {
		fullURL = strings.TrimSuffix(fullURL, "/") + "/" + strings.TrimPrefix(req.Path, "/")
	}
	if len(req.Query) > 0 {
		fullURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = strings.NewReader(string(req.Body))
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	auth := req.Auth
	if auth == nil {
		auth = c.config.Auth
	}
	if auth != nil {
		auth.Apply(httpReq)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &core.Error{Code: core.CodeUnreachable, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	if resp.StatusCode >= 400 {
		return response, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// PostJSON performs a POST request with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	return c.postJSONAuth(ctx, path, body, nil)
}

// PostJSONAuth performs a POST request with a JSON body and an explicit
// authentication strategy (used for session login).
func (c *Client) PostJSONAuth(ctx context.Context, path string, body any, auth AuthConfig) (*Response, error) {
	return c.postJSONAuth(ctx, path, body, auth)
}

func (c *Client) postJSONAuth(ctx context.Context, path string, body any, auth AuthConfig) (*Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	return c.Do(ctx, &Request{
		Method:  http.MethodPost,
		Path:    path,
		Body:    data,
		Headers: map[string]string{"Content-Type": "application/json"},
		Auth:    auth,
	})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// CodeValue maps the status to a structured error code.
func (e *HTTPError) CodeValue() string {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return string(core.CodeAuthInvalid)
	case e.StatusCode == 404:
		return string(core.CodeNotFound)
	case e.StatusCode == 429:
		return string(core.CodeRateLimited)
	default:
		return string(core.CodeFetchFailed)
	}
}

// RetryableStatus reports whether the whole run may be retried.
func (e *HTTPError) RetryableStatus() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// isRetryable determines if an error should be retried by this client.
func (c *Client) isRetryable(err error) bool {
	if httpErr, ok := err.(*HTTPError); ok {
		return c.retryable[httpErr.StatusCode]
	}
	if coded, ok := err.(*core.Error); ok {
		return coded.Retryable
	}
	return false
}
