package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/abdul-hamid-achik/flowspec/packages/orchestrator"
	"github.com/abdul-hamid-achik/flowspec/packages/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"explicit", withExitCode(ExitStoreError, errors.New("db down")), ExitStoreError},
		{"wrapped explicit", fmt.Errorf("run: %w", withExitCode(ExitValidationError, errors.New("bad"))), ExitValidationError},
		{"no testcases", flowerr.New(flowerr.CodeNoTestcases, "none"), ExitConfigError},
		{"missing main", fmt.Errorf("start: %w", flowerr.New(flowerr.CodeMissingMainConfig, "missing")), ExitConfigError},
		{"spawn", flowerr.New(flowerr.CodeWorkerSpawn, "exec"), ExitWorkerError},
		{"in progress", flowerr.New(flowerr.CodeRunInProgress, "busy"), ExitUsageError},
		{"other", errors.New("boom"), ExitTestFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeFor(tt.err))
		})
	}
}

func TestWithExitCode_Nil(t *testing.T) {
	assert.NoError(t, withExitCode(ExitStoreError, nil))
}

func TestSelectionFromFlags(t *testing.T) {
	sel, err := selectionFromFlags("", nil, "")
	require.NoError(t, err)
	assert.Equal(t, store.Selection{Mode: store.SelectAll}, sel)

	sel, err = selectionFromFlags("smoke", nil, "")
	require.NoError(t, err)
	assert.Equal(t, store.Selection{Mode: store.SelectByTag, Tag: "smoke"}, sel)

	sel, err = selectionFromFlags("", []string{"tc1", "tc2"}, "")
	require.NoError(t, err)
	assert.Equal(t, store.Selection{Mode: store.SelectByIDs, IDs: []string{"tc1", "tc2"}}, sel)

	sel, err = selectionFromFlags("", nil, "nightly")
	require.NoError(t, err)
	assert.Equal(t, store.Selection{Mode: store.SelectByGroup, Group: "nightly"}, sel)

	_, err = selectionFromFlags("smoke", nil, "nightly")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, exitCodeFor(err))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Nil(t, splitList(""))
}

func TestWorkerArgs(t *testing.T) {
	oldSettings, oldConfig, oldEnvFile := settings, configFlag, envFileFlag
	t.Cleanup(func() { settings, configFlag, envFileFlag = oldSettings, oldConfig, oldEnvFile })

	settings = &config.Config{LogLevel: "debug", LogFormat: "json"}
	configFlag = "flowspec.config.json"
	envFileFlag = ""

	c := &cobra.Command{Use: "run"}
	addExecutionFlags(c)
	require.NoError(t, c.Flags().Parse([]string{"--concurrency", "4", "--reporter", "json", "-v", "--timeout", "90s"}))

	assert.Equal(t, []string{
		"worker", "--log-level", "debug", "--log-format", "json",
		"--config", "flowspec.config.json",
		"--concurrency", "4",
		"--reporter", "json",
		"-v",
		"--timeout", "90s",
	}, workerArgs(c))
}

func TestHistoryEntry(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := orchestrator.RunRecord{
		RunID:  "r1",
		UserID: "42",
		Status: orchestrator.StatusFailed,
		Request: orchestrator.Request{
			UserID:        "42",
			TestcaseIDs:   []string{"tc1"},
			Browsers:      []string{"chromium"},
			RunMode:       "serial",
			SelectionMode: string(store.SelectByTag),
			Tag:           "smoke",
		},
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		ExitCode:   1,
		Error:      "worker exited with code 1",
	}

	entry := historyEntry(rec)
	assert.Equal(t, "r1", entry.RunID)
	assert.Equal(t, store.SelectByTag, entry.SelectionMode)
	assert.Equal(t, "smoke", entry.Tag)
	assert.Equal(t, "failed", entry.Status)
	assert.Equal(t, 1, entry.ExitCode)
	assert.Equal(t, []string{"chromium"}, entry.Browsers)
	assert.Equal(t, "1m0s", runDuration(entry))
	assert.Equal(t, "tag smoke", selectionLabel(entry))
}

func TestResultPath(t *testing.T) {
	env := config.NewWorkerEnv("runtime", "users", "7", "headless")
	assert.Equal(t, filepath.Join("users", "user_7", "results", JSONResultsFile), resultPath(env, "json"))
	assert.Equal(t, filepath.Join("users", "user_7", "test-results", JUnitResultsFile), resultPath(env, "junit"))
	assert.Equal(t, filepath.Join("users", "user_7", "reports", TAPResultsFile), resultPath(env, "tap"))

	bare := config.WorkerEnv{RuntimeDir: "runtime/user_7"}
	assert.Equal(t, filepath.Join("runtime/user_7", JSONResultsFile), resultPath(bare, "json"))
}

func TestOpenReporters_Unknown(t *testing.T) {
	cfg := &config.Config{Reporters: []string{"console", "html"}}
	_, err := openReporters(cfg, config.WorkerEnv{RuntimeDir: t.TempDir()}, nil)
	assert.ErrorContains(t, err, `unknown reporter "html"`)
}

func TestNotifierManager(t *testing.T) {
	m, err := notifierManager(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = notifierManager(&config.Config{Notify: &config.Notify{SlackWebhook: "http://slack", TeamsWebhook: "http://teams"}})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())

	_, err = notifierManager(&config.Config{Notify: &config.Notify{On: "recovery"}})
	assert.Error(t, err)
}

func TestExampleBundle(t *testing.T) {
	data, err := exampleBundle()
	require.NoError(t, err)

	b, err := store.ParseBundle(data)
	require.NoError(t, err)
	assert.Empty(t, b.Validate())
	require.Len(t, b.Testcases, 1)
	assert.Equal(t, []string{"login", "createJob"}, b.Testcases[0].Scenarios)
	require.Len(t, b.TestData, 1)
	assert.Equal(t, "{main.email}", b.TestData[0].Rows[0][0].Value)
}
