// Package flowerr defines the structured error taxonomy shared by the
// interpreter, the composer and the run orchestrator.
package flowerr

import (
	"errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	CodePageNotFound     Code = "PAGE_NOT_FOUND"
	CodeElementNotFound  Code = "ELEMENT_NOT_FOUND"
	CodeScenarioNotFound Code = "SCENARIO_NOT_FOUND"
	CodeInvalidStep      Code = "INVALID_STEP"

	CodeMissingOutput   Code = "MISSING_OUTPUT"
	CodeDriverTimeout   Code = "DRIVER_TIMEOUT"
	CodeAssertionFailed Code = "ASSERTION_FAILED"
	CodeItemNotFound    Code = "ITEM_NOT_FOUND"

	CodeRunInProgress     Code = "RUN_IN_PROGRESS"
	CodeNoTestcases       Code = "NO_TESTCASES"
	CodeMissingMainConfig Code = "MISSING_MAIN_CONFIGURATION"
	CodeWorkerSpawn       Code = "WORKER_SPAWN"
	CodeWorkerExit        Code = "WORKER_EXIT"
)

// ErrNotFound is returned by definition sources for records that do not exist.
var ErrNotFound = errors.New("not found")

// Error is the structured error type of flowspec.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	StepID  string         `json:"step_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *Error) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step identifier.
func (e *Error) WithStep(stepID string) *Error {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsConfiguration reports whether err stems from invalid flow metadata
// (unknown page, element, scenario or malformed step).
func IsConfiguration(err error) bool {
	switch CodeOf(err) {
	case CodePageNotFound, CodeElementNotFound, CodeScenarioNotFound, CodeInvalidStep:
		return true
	}
	return false
}

// PageNotFound reports an unknown page name.
func PageNotFound(page string) *Error {
	return Newf(CodePageNotFound, "page not found: %s", page).
		WithDetails(map[string]any{"page": page})
}

// ElementNotFound reports an element name absent from a page definition.
func ElementNotFound(page, element string) *Error {
	return Newf(CodeElementNotFound, "element %q not found in page %q", element, page).
		WithDetails(map[string]any{"page": page, "element": element})
}

// ScenarioNotFound reports a testcase referencing an unknown scenario.
func ScenarioNotFound(scenarioID string) *Error {
	return Newf(CodeScenarioNotFound, "scenario not found: %s", scenarioID).
		WithDetails(map[string]any{"scenario_id": scenarioID})
}

// MissingOutput reports a placeholder whose value was never stored.
func MissingOutput(userID, testcaseID, scenarioID, key string) *Error {
	return Newf(CodeMissingOutput, "cannot resolve placeholder '%s.%s' in testcase '%s' for user '%s'",
		scenarioID, key, testcaseID, userID).
		WithDetails(map[string]any{"scenario_id": scenarioID, "key": key, "testcase_id": testcaseID})
}

// AssertionFailed reports an expected/actual mismatch.
func AssertionFailed(message string, expected, actual any) *Error {
	return New(CodeAssertionFailed, message).
		WithDetails(map[string]any{"expected": expected, "actual": actual})
}
