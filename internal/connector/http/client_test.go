package http

import (
	"context"
	"io"
	nethttp "net/http"
	"strings"
	"testing"
)

// sequenceTransport serves canned responses in order, recording requests.
type sequenceTransport struct {
	responses []*nethttp.Response
	requests  []*nethttp.Request
}

func (s *sequenceTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

func response(status int, body string) *nethttp.Response {
	return &nethttp.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     nethttp.Header{},
	}
}

func testClient(transport nethttp.RoundTripper) *Client {
	config := DefaultClientConfig()
	config.BaseURL = "https://example.test"
	config.Transport = transport
	config.RateLimit = 10000
	config.RateBurst = 10000
	return NewClient(config)
}

func TestDoRetriesRetryableStatus(t *testing.T) {
	transport := &sequenceTransport{responses: []*nethttp.Response{
		response(503, "unavailable"),
		response(503, "unavailable"),
		response(200, `{"ok":true}`),
	}}
	client := testClient(transport)

	resp, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/x"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(transport.requests) != 3 {
		t.Errorf("attempts = %d, want 3", len(transport.requests))
	}
}

func TestDoDoesNotRetryPlain500(t *testing.T) {
	// 500 carries FileMaker API errors (including "no records match"), so
	// it must surface immediately with the response body intact.
	transport := &sequenceTransport{responses: []*nethttp.Response{
		response(500, `{"messages":[{"code":"401"}],"response":{}}`),
	}}
	client := testClient(transport)

	resp, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/x"})
	if err == nil {
		t.Fatal("expected HTTP error")
	}
	if len(transport.requests) != 1 {
		t.Errorf("attempts = %d, want 1", len(transport.requests))
	}
	if resp == nil || !strings.Contains(string(resp.Body), `"401"`) {
		t.Error("response body must accompany the error for API-code inspection")
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	transport := &sequenceTransport{responses: []*nethttp.Response{
		response(503, "unavailable"),
	}}
	client := testClient(transport)

	_, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	want := client.config.MaxRetries + 1
	if len(transport.requests) != want {
		t.Errorf("attempts = %d, want %d", len(transport.requests), want)
	}
}

func TestRequestAuthOverridesClientDefault(t *testing.T) {
	transport := &sequenceTransport{responses: []*nethttp.Response{
		response(200, "{}"),
		response(200, "{}"),
	}}
	config := DefaultClientConfig()
	config.BaseURL = "https://example.test"
	config.Transport = transport
	config.RateLimit = 10000
	config.RateBurst = 10000
	config.Auth = BearerToken{Token: "default-token"}
	client := NewClient(config)
	ctx := context.Background()

	if _, err := client.Do(ctx, &Request{Method: "GET", Path: "/a"}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := transport.requests[0].Header.Get("Authorization"); got != "Bearer default-token" {
		t.Errorf("default auth header = %q", got)
	}

	if _, err := client.Do(ctx, &Request{
		Method: "GET", Path: "/b",
		Auth: BasicAuth{Username: "u", Password: "p"},
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := transport.requests[1].Header.Get("Authorization"); !strings.HasPrefix(got, "Basic ") {
		t.Errorf("override auth header = %q", got)
	}
}

func TestHTTPErrorCodes(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		retryable bool
	}{
		{401, "E_AUTH_INVALID", false},
		{403, "E_AUTH_INVALID", false},
		{404, "E_NOT_FOUND", false},
		{429, "E_RATE_LIMITED", true},
		{500, "E_FETCH_FAILED", true},
	}
	for _, tt := range tests {
		e := &HTTPError{StatusCode: tt.status}
		if e.CodeValue() != tt.code {
			t.Errorf("status %d: code = %s, want %s", tt.status, e.CodeValue(), tt.code)
		}
		if e.RetryableStatus() != tt.retryable {
			t.Errorf("status %d: retryable = %v", tt.status, e.RetryableStatus())
		}
	}
}
