// Package runner composes scenarios into testcases and executes a runtime
// snapshot.
//
// It provides functionality for:
//   - Projecting each scenario's data-required fields out of the testcase row
//   - Resolving cross-scenario placeholders right before each scenario runs
//   - Sequential, serial (bail on first failure) and parallel run modes
//   - Per-testcase diagnostics (resolved data and stored outputs)
//   - Step timing summaries
//
// Scenarios and steps of one testcase always run strictly in order; only
// whole testcases run concurrently, each on its own driver session.
package runner
