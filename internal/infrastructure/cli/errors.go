package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
)

// ErrNotInitialized is returned when no .kalk directory exists.
var ErrNotInitialized = errors.New("workspace not initialized")

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var valErr *calculation.ValidationError
	if errors.As(err, &valErr) {
		return NewCLIError(
			"invalid "+valErr.Field,
			"Check the value and retry; nothing was changed",
			err,
		)
	}

	var invErr *calculation.InvariantError
	if errors.As(err, &invErr) {
		return NewCLIError(
			"post-calculation totals are inconsistent",
			fmt.Sprintf("Run 'kalk postcalc recompute %s' to rebuild the record", invErr.ProjectID),
			err,
		)
	}

	switch {
	case errors.Is(err, ErrNotInitialized):
		return NewCLIError("no kalk workspace found", "Run 'kalk init' to initialize one", err)
	case errors.Is(err, calculation.ErrProjectNotFound):
		return NewCLIError("project not found", "Run 'kalk projects' to list known projects", err)
	case errors.Is(err, calculation.ErrEmployeeNotFound):
		return NewCLIError("employee not on this project", "Run 'kalk postcalc show <project>' to list the crew", err)
	case errors.Is(err, calculation.ErrMissingPrerequisite):
		return NewCLIError("nothing to plan from", "Link an accepted offer or enter hours with 'kalk precalc set'", err)
	case errors.Is(err, calculation.ErrRecomputeCoalesced):
		return NewCLIError("a recompute is already running", "The change is queued and will be picked up automatically", err)
	}

	return err
}

// Report prints err with its hint and returns the process exit code.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		err = MapError(err)
	}
	if !errors.As(err, &cliErr) {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(w, "Error: %s\n", cliErr.Error())
	if cliErr.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
	}
	if cliErr.ExitCode == 0 {
		return 1
	}
	return cliErr.ExitCode
}
