// Package resolver substitutes cross-scenario placeholders in testcase data
// with values stored by earlier scenarios of the same testcase.
package resolver

import (
	"fmt"
	"regexp"
	"sort"
)

// placeholderPattern matches a whole-string reference "{scenarioId.key}".
// Embedded references are not interpolated.
var placeholderPattern = regexp.MustCompile(`^\{\s*([a-zA-Z0-9_-]+)\.([a-zA-Z0-9_-]+)\s*\}$`)

// OutputReader reads values stored by output steps.
type OutputReader interface {
	Get(userID, testcaseID, scenarioID, key string) (any, error)
}

// FieldError names the data field whose placeholder could not be resolved.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Resolver resolves placeholders on behalf of one user and testcase.
type Resolver struct {
	outputs    OutputReader
	userID     string
	testcaseID string
}

func NewResolver(outputs OutputReader, userID, testcaseID string) *Resolver {
	return &Resolver{
		outputs:    outputs,
		userID:     userID,
		testcaseID: testcaseID,
	}
}

// ParsePlaceholder splits a placeholder into its scenario id and key.
func ParsePlaceholder(value string) (scenarioID, key string, ok bool) {
	m := placeholderPattern.FindStringSubmatch(value)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsPlaceholder reports whether v is a string placeholder.
func IsPlaceholder(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, _, ok = ParsePlaceholder(s)
	return ok
}

// ResolveValue resolves one raw value. Non-strings and strings that are not
// placeholders are returned unchanged.
func (r *Resolver) ResolveValue(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	scenarioID, key, ok := ParsePlaceholder(s)
	if !ok {
		return v, nil
	}
	return r.outputs.Get(r.userID, r.testcaseID, scenarioID, key)
}

// Resolve returns a fully literal copy of data, or an error and no mapping.
// Fields are resolved independently; when several fail, the error reports the
// first failing field in sorted order.
func (r *Resolver) Resolve(data map[string]any) (map[string]any, error) {
	resolved, failures := r.ResolveEach(data)
	if len(failures) == 0 {
		return resolved, nil
	}

	fields := make([]string, 0, len(failures))
	for field := range failures {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return nil, &FieldError{Field: fields[0], Err: failures[fields[0]]}
}

// ResolveEach resolves every field it can and reports per-field failures.
func (r *Resolver) ResolveEach(data map[string]any) (map[string]any, map[string]error) {
	resolved := make(map[string]any, len(data))
	var failures map[string]error

	for field, raw := range data {
		v, err := r.ResolveValue(raw)
		if err != nil {
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[field] = err
			continue
		}
		resolved[field] = v
	}
	return resolved, failures
}
