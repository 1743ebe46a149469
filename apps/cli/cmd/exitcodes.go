package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
)

// Exit codes for flowspec CLI
const (
	// ExitSuccess indicates all testcases passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more testcases failed
	ExitTestFailure = 1

	// ExitValidationError indicates an invalid snapshot or definition bundle
	ExitValidationError = 2

	// ExitConfigError indicates a configuration error, including missing
	// testcases or site credentials
	ExitConfigError = 3

	// ExitStoreError indicates the definition store could not be used
	ExitStoreError = 4

	// ExitWorkerError indicates the worker could not be started or crashed
	ExitWorkerError = 5

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps a command error to the process exit code.
func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch flowerr.CodeOf(err) {
	case flowerr.CodeNoTestcases, flowerr.CodeMissingMainConfig:
		return ExitConfigError
	case flowerr.CodeWorkerSpawn:
		return ExitWorkerError
	case flowerr.CodeRunInProgress:
		return ExitUsageError
	}
	return ExitTestFailure
}
