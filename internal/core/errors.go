package core

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured sync error code.
type ErrorCode string

const (
	// CodeConfigInvalid marks invalid or contradictory configuration.
	// Always fatal, raised before any remote call.
	CodeConfigInvalid ErrorCode = "E_CONFIG_INVALID"

	// CodeFetchFailed marks a remote call failure during pagination.
	CodeFetchFailed ErrorCode = "E_FETCH_FAILED"

	// CodeNormalizeConflict marks a column-name collision after renaming.
	CodeNormalizeConflict ErrorCode = "E_NORMALIZE_CONFLICT"

	// Transport-level codes surfaced by the HTTP layer.
	CodeAuthInvalid ErrorCode = "E_AUTH_INVALID"
	CodeNotFound    ErrorCode = "E_NOT_FOUND"
	CodeRateLimited ErrorCode = "E_RATE_LIMITED"
	CodeUnreachable ErrorCode = "E_ENDPOINT_UNREACHABLE"

	// CodeStateFailed marks a state store read/write failure.
	CodeStateFailed ErrorCode = "E_STATE_FAILED"

	// CodeSinkFailed marks an output sink write failure.
	CodeSinkFailed ErrorCode = "E_SINK_FAILED"

	CodeUnknown ErrorCode = "E_UNKNOWN"
)

// Error carries a sync error code and retryability hint.
type Error struct {
	Code      ErrorCode
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeValue returns the string error code for integration with run results.
func (e *Error) CodeValue() string { return string(e.Code) }

// RetryableStatus indicates if the run can be retried with the same config.
func (e *Error) RetryableStatus() bool { return e.Retryable }

// CodedError exposes sync error metadata.
type CodedError interface {
	error
	CodeValue() string
	RetryableStatus() bool
}

// ConfigErrorf builds a non-retryable configuration error.
func ConfigErrorf(format string, args ...any) *Error {
	return &Error{Code: CodeConfigInvalid, Retryable: false, Err: fmt.Errorf(format, args...)}
}

// FetchErrorf builds a retryable fetch error.
func FetchErrorf(format string, args ...any) *Error {
	return &Error{Code: CodeFetchFailed, Retryable: true, Err: fmt.Errorf(format, args...)}
}

// NormalizeErrorf builds a non-retryable normalization error.
func NormalizeErrorf(format string, args ...any) *Error {
	return &Error{Code: CodeNormalizeConflict, Retryable: false, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a code to an existing error, preserving an inner code if present.
func Wrap(code ErrorCode, retryable bool, err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// Classify extracts the code and retryability from any error.
func Classify(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var coded CodedError
	if errors.As(err, &coded) {
		return ErrorCode(coded.CodeValue()), coded.RetryableStatus()
	}
	return CodeUnknown, true
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	got, _ := Classify(err)
	return got == code
}
