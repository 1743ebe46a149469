package assertions

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
)

const (
	DefaultPollAttempts = 5
	DefaultPollInterval = 300 * time.Millisecond
)

// Reader is the read-only part of a page driver the evaluator needs.
type Reader interface {
	IsVisible(ctx context.Context, locator string) (bool, error)
	InnerText(ctx context.Context, locator string) (string, error)
	AllInnerTexts(ctx context.Context, locator string) ([]string, error)
	InputValue(ctx context.Context, locator string) (string, error)
}

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
	Attempts int
}

type Evaluator struct {
	reader       Reader
	pollAttempts int
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithPolling overrides the arrayContains retry budget.
func WithPolling(attempts int, interval time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if attempts > 0 {
			e.pollAttempts = attempts
		}
		e.pollInterval = interval
	}
}

// WithSleep replaces the delay used between arrayContains polls.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EvaluatorOption {
	return func(e *Evaluator) {
		e.sleep = sleep
	}
}

func NewEvaluator(reader Reader, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		reader:       reader,
		pollAttempts: DefaultPollAttempts,
		pollInterval: DefaultPollInterval,
		sleep:        Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Evaluate runs one assertion against the element at locator. A non-nil error
// means the driver itself failed; a comparison mismatch is reported through
// Result.Passed.
func (e *Evaluator) Evaluate(ctx context.Context, kind definition.AssertKind, locator string, expected any) (*Result, error) {
	result := &Result{
		Subject:  locator,
		Operator: kind.String(),
		Expected: expected,
		Attempts: 1,
	}

	var err error
	switch kind {
	case definition.AssertVisible:
		err = e.visible(ctx, locator, true, result)
	case definition.AssertHidden:
		err = e.visible(ctx, locator, false, result)
	case definition.AssertText:
		err = e.text(ctx, locator, expected, result)
	case definition.AssertContains:
		err = e.contains(ctx, locator, expected, result)
	case definition.AssertListContains:
		err = e.listContains(ctx, locator, expected, result)
	case definition.AssertValue:
		err = e.value(ctx, locator, expected, result)
	default:
		return nil, fmt.Errorf("unknown assertion kind: %v", kind)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Evaluator) visible(ctx context.Context, locator string, want bool, result *Result) error {
	visible, err := e.reader.IsVisible(ctx, locator)
	if err != nil {
		return fmt.Errorf("checking visibility of %s: %w", locator, err)
	}
	result.Expected = want
	result.Actual = visible
	result.Passed = visible == want
	if !result.Passed {
		if want {
			result.Message = "expected element to be visible"
		} else {
			result.Message = "expected element to be hidden"
		}
	}
	return nil
}

func (e *Evaluator) text(ctx context.Context, locator string, expected any, result *Result) error {
	actual, err := e.reader.InnerText(ctx, locator)
	if err != nil {
		return fmt.Errorf("reading text of %s: %w", locator, err)
	}
	actual = normalizeSpace(actual)
	want := normalizeSpace(toString(expected))
	result.Actual = actual
	result.Passed = actual == want
	if !result.Passed {
		result.Message = fmt.Sprintf("expected text '%s', got '%s'", want, actual)
	}
	return nil
}

func (e *Evaluator) contains(ctx context.Context, locator string, expected any, result *Result) error {
	actual, err := e.reader.InnerText(ctx, locator)
	if err != nil {
		return fmt.Errorf("reading text of %s: %w", locator, err)
	}
	want := toString(expected)
	result.Actual = actual
	result.Passed = strings.Contains(actual, want)
	if !result.Passed {
		result.Message = fmt.Sprintf("expected '%s' to contain '%s'", actual, want)
	}
	return nil
}

func (e *Evaluator) listContains(ctx context.Context, locator string, expected any, result *Result) error {
	want := strings.ToLower(strings.TrimSpace(toString(expected)))

	var items []string
	for attempt := 1; attempt <= e.pollAttempts; attempt++ {
		result.Attempts = attempt

		texts, err := e.reader.AllInnerTexts(ctx, locator)
		if err != nil {
			return fmt.Errorf("reading texts of %s: %w", locator, err)
		}
		items = cleanList(texts)
		for _, item := range items {
			if item == want {
				result.Actual = items
				result.Passed = true
				return nil
			}
		}

		if attempt < e.pollAttempts {
			if err := e.sleep(ctx, e.pollInterval); err != nil {
				return err
			}
		}
	}

	result.Actual = items
	result.Message = fmt.Sprintf("expected '%s' not found in list", want)
	return nil
}

func (e *Evaluator) value(ctx context.Context, locator string, expected any, result *Result) error {
	actual, err := e.reader.InputValue(ctx, locator)
	if err != nil {
		return fmt.Errorf("reading value of %s: %w", locator, err)
	}
	want := toString(expected)
	result.Actual = actual
	result.Passed = actual == want
	if !result.Passed {
		result.Message = fmt.Sprintf("expected value '%s', got '%s'", want, actual)
	}
	return nil
}

// cleanList lowercases and trims every text, dropping empty ones.
func cleanList(texts []string) []string {
	cleaned := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return cleaned
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
