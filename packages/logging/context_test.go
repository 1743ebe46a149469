package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", UserID(ctx))
	assert.Equal(t, "", StepID(ctx))

	ctx = WithUserID(ctx, "42")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithTestcaseID(ctx, "tc1")
	ctx = WithScenarioID(ctx, "sc1")
	ctx = WithStepID(ctx, "sc1_0")

	assert.Equal(t, "42", UserID(ctx))
	assert.Equal(t, "run-1", RunID(ctx))
	assert.Equal(t, "tc1", TestcaseID(ctx))
	assert.Equal(t, "sc1", ScenarioID(ctx))
	assert.Equal(t, "sc1_0", StepID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithUserID(context.Background(), "42")
	ctx = WithScenarioID(ctx, "sc1")

	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "user_id=42")
	assert.Contains(t, output, "scenario_id=sc1")
	assert.NotContains(t, output, "run_id")
	assert.NotContains(t, output, "step_id")
	assert.Contains(t, output, "test message")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithRunID(context.Background(), "run-9")
	ctx = WithTestcaseID(ctx, "tc2")
	logger.With("component", "runner").InfoContext(ctx, "testcase started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "run-9", record["run_id"])
	assert.Equal(t, "tc2", record["testcase_id"])
	assert.Equal(t, "runner", record["component"])
	assert.NotContains(t, record, "user_id")
}

func TestCorrelationHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithStepID(context.Background(), "sc1_3")
	logger.WithGroup("step").InfoContext(ctx, "grouped", "action", "click")

	assert.Contains(t, buf.String(), "step.step_id=sc1_3")
	assert.Contains(t, buf.String(), "step.action=click")
}

func TestCorrelationHandlerEnabled(t *testing.T) {
	h := NewCorrelationHandler(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
