package config

import (
	"fmt"
	"path/filepath"
)

// Environment variables handed from the orchestrator to a worker process.
const (
	EnvRuntimeDir     = "RUNTIME_DIR"
	EnvUserID         = "USER_ID"
	EnvTestResultsDir = "TEST_RESULTS_DIR"
	EnvResultsDir     = "RESULTS_DIR"
	EnvReportDir      = "REPORT_DIR"
	EnvViewMode       = "FLOWSPEC_VIEW_MODE"
)

// Artifact subdirectories of a user's artifact directory.
const (
	TestResultsSubdir = "test-results"
	ResultsSubdir     = "results"
	ReportsSubdir     = "reports"
	ExecutionLogFile  = "execution.log"
)

// WorkerEnv is the environment contract of a worker process.
type WorkerEnv struct {
	RuntimeDir     string
	UserID         string
	TestResultsDir string
	ResultsDir     string
	ReportDir      string
	ViewMode       string
}

// UserDir returns the per-user directory name under a root.
func UserDir(root, userID string) string {
	return filepath.Join(root, "user_"+userID)
}

// NewWorkerEnv lays out the directories of one user's run.
func NewWorkerEnv(runtimeRoot, artifactRoot, userID, viewMode string) WorkerEnv {
	artifacts := UserDir(artifactRoot, userID)
	return WorkerEnv{
		RuntimeDir:     UserDir(runtimeRoot, userID),
		UserID:         userID,
		TestResultsDir: filepath.Join(artifacts, TestResultsSubdir),
		ResultsDir:     filepath.Join(artifacts, ResultsSubdir),
		ReportDir:      filepath.Join(artifacts, ReportsSubdir),
		ViewMode:       viewMode,
	}
}

// ArtifactDirs lists the directories created before a worker starts.
func (w WorkerEnv) ArtifactDirs() []string {
	return []string{w.TestResultsDir, w.ResultsDir, w.ReportDir}
}

// Environ renders the contract as KEY=value pairs.
func (w WorkerEnv) Environ() []string {
	return []string{
		EnvRuntimeDir + "=" + w.RuntimeDir,
		EnvUserID + "=" + w.UserID,
		EnvTestResultsDir + "=" + w.TestResultsDir,
		EnvResultsDir + "=" + w.ResultsDir,
		EnvReportDir + "=" + w.ReportDir,
		EnvViewMode + "=" + w.ViewMode,
	}
}

// WorkerEnvFrom reads the contract through getenv, typically os.Getenv.
// RUNTIME_DIR is required.
func WorkerEnvFrom(getenv func(string) string) (WorkerEnv, error) {
	w := WorkerEnv{
		RuntimeDir:     getenv(EnvRuntimeDir),
		UserID:         getenv(EnvUserID),
		TestResultsDir: getenv(EnvTestResultsDir),
		ResultsDir:     getenv(EnvResultsDir),
		ReportDir:      getenv(EnvReportDir),
		ViewMode:       getenv(EnvViewMode),
	}
	if w.RuntimeDir == "" {
		return WorkerEnv{}, fmt.Errorf("%s is not set", EnvRuntimeDir)
	}
	return w, nil
}
