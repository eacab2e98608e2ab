package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/fmsync/fmsync/internal/core"
)

// RunStatus is the terminal state of a sync run.
type RunStatus string

const (
	StatusDone   RunStatus = "done"
	StatusFailed RunStatus = "failed"
)

// RunResult summarizes one sync run.
type RunResult struct {
	RunID       uuid.UUID            `json:"run_id"`
	Status      RunStatus            `json:"status"`
	TableCounts map[string]int64     `json:"table_counts,omitempty"`
	Failure     *Failure             `json:"failure,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
}

// Failure is a structured description of why a run failed.
type Failure struct {
	Code      core.ErrorCode `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
}

func failureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	code, retryable := core.Classify(err)
	return &Failure{Code: code, Message: err.Error(), Retryable: retryable}
}
