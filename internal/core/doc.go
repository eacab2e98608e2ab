// Package core holds the error taxonomy shared by the connector, the sync
// engine, and the storage backends.
//
// Every failure that crosses a package boundary is an *Error with a stable
// code and a retryability hint, so the orchestrator can report structured
// run results without string matching.
package core
