package cli

import (
	"fmt"

	"github.com/petal-labs/footplan/core"
)

// Process exit codes. Planning outcomes that produce no executable plan get
// their own codes so scripts can tell a timeout from an unreachable goal.
const (
	exitSuccess      = 0
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitNoPlan       = 7
	exitTimeout      = 10
)

// ExitError carries the process exit code of a failed command. main exits
// with Code after printing Message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// resultExitCode maps a planning result to the exit code of "plan".
func resultExitCode(result core.Result) int {
	switch {
	case result.ValidForExecution():
		return exitSuccess
	case result == core.TimedOutBeforeSolution:
		return exitTimeout
	default:
		return exitNoPlan
	}
}
