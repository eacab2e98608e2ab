// Package sync holds the synchronization engine: field normalization,
// incremental watermark tracking, and the orchestrator that turns a run
// configuration into output tables and committed state.
package sync
