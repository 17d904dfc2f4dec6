package cli

import "fmt"

// Exit codes match the taxonomy the sync core reports through: 0 for a
// clean run, 1 when the run completed but reported failures or conflicts,
// 2 for a command usage or configuration error, 3 when an endpoint could
// not be reached at all.
const (
	ExitSuccess       = 0
	ExitRunFailure    = 1
	ExitCommandError  = 2
	ExitConnectionErr = 3
)

// ExitError carries a process exit code alongside the error cobra reports.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps msg as an ExitError with code.
func NewExitError(code int, msg string) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf("%s", msg)}
}

// WrapExitError wraps err as an ExitError with code, prefixing msg.
func WrapExitError(code int, msg string, err error) *ExitError {
	return &ExitError{Code: code, Err: fmt.Errorf("%s: %w", msg, err)}
}

// ExitCode extracts the process exit code from err, defaulting to
// ExitRunFailure for any error that isn't an *ExitError.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code
	}
	return ExitRunFailure
}
