package cli

import (
	"errors"
	"fmt"

	"github.com/andthezhang/takopi-swarm/internal/config"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // runtime failure (topic not found, send failed, ...)
	ExitCommandError = 2 // operator error (bad config, unknown project, ...)
)

// ExitError carries a specific exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitErrorf(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// exitCode maps an error to the process exit code. Configuration
// problems are operator errors; everything else is a plain failure.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return ExitCommandError
	}
	return ExitFailure
}
