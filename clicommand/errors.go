package clicommand

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/buildkite/netbox-secrets/lookup"
)

// Exit codes returned by the lookup command.
const (
	ExitCodeOK            = 0
	ExitCodeError         = 1
	ExitCodeConfiguration = 2
	ExitCodeDependency    = 3
)

// ExitError is used to signal that the command should exit with the exit code
// in `code`. It also wraps an error, which can be used to provide more context.
type ExitError struct {
	code  int
	inner error
}

// NewExitError returns ExitError with the given code and wrapped error.
func NewExitError(code int, err error) *ExitError {
	return &ExitError{code: code, inner: err}
}

// Code returns the exit code.
func (e *ExitError) Code() int {
	return e.code
}

// Error prints the message of the wrapped error. It ignores the exit code.
func (e *ExitError) Error() string {
	return e.inner.Error()
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.inner
}

// Is will return true if the target is an ExitError with the same code.
func (e *ExitError) Is(target error) bool {
	terr, ok := target.(*ExitError)
	return ok && e.code == terr.code
}

// withLookupExitCode gives lookup errors their exit code.
func withLookupExitCode(err error) error {
	switch {
	case err == nil:
		return nil
	case lookup.IsDependencyError(err):
		return NewExitError(ExitCodeDependency, err)
	case lookup.IsConfigurationError(err):
		return NewExitError(ExitCodeConfiguration, err)
	default:
		return err
	}
}

// PrintMessageAndReturnExitCode prints the error message to stderr, preceded by
// "netbox-secrets: fatal: " and returns the exit code for the given error. If `err` is an
// ExitError, it will return the code from that. Otherwise it will return 0 for
// nil errors and 1 for all other errors.
func PrintMessageAndReturnExitCode(err error) int {
	return FprintMessageAndReturnExitCode(os.Stderr, err)
}

// FprintMessageAndReturnExitCode is PrintMessageAndReturnExitCode writing to w.
func FprintMessageAndReturnExitCode(w io.Writer, err error) int {
	if err == nil {
		return ExitCodeOK
	}

	fmt.Fprintf(w, "netbox-secrets: fatal: %s\n", err) //nolint:errcheck // nowhere else to report it

	if eerr := new(ExitError); errors.As(err, &eerr) {
		return eerr.Code()
	}

	return ExitCodeError
}
