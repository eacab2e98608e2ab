// Package state persists per-target incremental watermarks between runs.
package state
