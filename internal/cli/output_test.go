package cli

import (
	"errors"
	"testing"
)

func TestExitCodeNilIsSuccess(t *testing.T) {
	if ExitCode(nil) != ExitSuccess {
		t.Fatalf("expected nil error to map to ExitSuccess")
	}
}

func TestExitCodeExitErrorPreservesCode(t *testing.T) {
	err := NewExitError(ExitConnectionErr, "endpoint unreachable")
	if ExitCode(err) != ExitConnectionErr {
		t.Fatalf("expected ExitCode to read back the code carried by ExitError")
	}
}

func TestExitCodePlainErrorDefaultsToRunFailure(t *testing.T) {
	if ExitCode(errors.New("boom")) != ExitRunFailure {
		t.Fatalf("expected a plain error to default to ExitRunFailure")
	}
}

func TestWrapExitErrorPreservesUnderlyingError(t *testing.T) {
	cause := errors.New("connection refused")
	wrapped := WrapExitError(ExitConnectionErr, "ping cloud", cause)
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected WrapExitError to preserve the underlying error for errors.Is")
	}
}
