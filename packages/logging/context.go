// Package logging configures structured logging and carries correlation ids
// (user, run, testcase, scenario, step) through contexts.
package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	runIDKey
	testcaseIDKey
	scenarioIDKey
	stepIDKey
)

// correlationKeys pairs each context key with its log attribute name, in the
// order attributes are emitted.
var correlationKeys = []struct {
	key  ctxKey
	attr string
}{
	{userIDKey, "user_id"},
	{runIDKey, "run_id"},
	{testcaseIDKey, "testcase_id"},
	{scenarioIDKey, "scenario_id"},
	{stepIDKey, "step_id"},
}

// WithUserID returns a context with the user ID set.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithRunID returns a context with the run ID set.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithTestcaseID returns a context with the testcase ID set.
func WithTestcaseID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, testcaseIDKey, id)
}

// WithScenarioID returns a context with the scenario ID set.
func WithScenarioID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scenarioIDKey, id)
}

// WithStepID returns a context with the step ID set.
func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepIDKey, id)
}

func UserID(ctx context.Context) string     { return value(ctx, userIDKey) }
func RunID(ctx context.Context) string      { return value(ctx, runIDKey) }
func TestcaseID(ctx context.Context) string { return value(ctx, testcaseIDKey) }
func ScenarioID(ctx context.Context) string { return value(ctx, scenarioIDKey) }
func StepID(ctx context.Context) string     { return value(ctx, stepIDKey) }

func value(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, ck := range correlationKeys {
		if v := value(ctx, ck.key); v != "" {
			logger = logger.With(slog.String(ck.attr, v))
		}
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, injecting correlation IDs from
// the context into every record. Callers log with logger.InfoContext(ctx, ...).
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, ck := range correlationKeys {
		if v := value(ctx, ck.key); v != "" {
			r.AddAttrs(slog.String(ck.attr, v))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
