// Package output provides formatters for run results.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON output with per-step detail
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//
// JSON, JUnit and TAP accumulate one result per browser and write
// everything on Flush.
package output
