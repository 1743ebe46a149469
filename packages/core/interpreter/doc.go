// Package interpreter replays declarative scenarios against a page driver.
//
// A scenario is a flat list of steps:
//   - step: perform an action (click, input, select, upload, ...) on an element
//   - assert: check an element (visible, hidden, text, contains, ...)
//   - output: extract a value from the page and store it for later scenarios
//
// Elements are looked up by name in the most recently referenced page
// definition. Data-required steps read their literal value from the resolved
// data row under the "<scenarioId>_<stepIndex>" identifier and are skipped
// when no value is present. The first failing step aborts the scenario.
package interpreter
