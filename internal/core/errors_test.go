package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	if code, _ := Classify(ConfigErrorf("bad")); code != CodeConfigInvalid {
		t.Errorf("code = %s", code)
	}
	if code, retryable := Classify(errors.New("anonymous")); code != CodeUnknown || !retryable {
		t.Errorf("anonymous error = %s retryable=%v", code, retryable)
	}
	if code, _ := Classify(nil); code != "" {
		t.Errorf("nil error = %s", code)
	}
}

func TestClassifyUnwrapsWrappedErrors(t *testing.T) {
	inner := FetchErrorf("page fetch failed")
	wrapped := fmt.Errorf("run aborted: %w", inner)

	code, _ := Classify(wrapped)
	if code != CodeFetchFailed {
		t.Errorf("code = %s, want fetch code through wrapping", code)
	}
	if !HasCode(wrapped, CodeFetchFailed) {
		t.Error("HasCode missed the wrapped code")
	}
}

func TestWrapPreservesExistingCode(t *testing.T) {
	inner := ConfigErrorf("invalid pkey")
	rewrapped := Wrap(CodeFetchFailed, true, inner)
	if rewrapped.Code != CodeConfigInvalid {
		t.Errorf("code = %s, wrapping must not override an existing code", rewrapped.Code)
	}

	if Wrap(CodeFetchFailed, true, nil) != nil {
		t.Error("wrapping nil must stay nil")
	}
}
