// Package http provides the shared HTTP plumbing for REST connectors:
// a rate-limited client with retry and backoff, pluggable authentication
// strategies, and structured transport errors.
//
// Retry policy lives here and only here; callers see each failure once.
package http
