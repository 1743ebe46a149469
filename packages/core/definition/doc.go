// Package definition holds the data model of flowspec test flows.
//
// It provides:
//   - Page and element definitions with opaque locating descriptors
//   - Scenario flows made of action, assert and output steps
//   - Testcases, their bound data rows and run-level metadata
//   - The closed action, assertion and output variant sets
//
// Steps are addressed by "<scenarioId>_<index>" identifiers, which is how
// testcase data rows bind literal values to individual steps.
package definition
