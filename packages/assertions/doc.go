// Package assertions evaluates UI assertions against a read-only view of a page.
//
// Supported assertions:
//   - visible: the element is displayed
//   - hidden: the element is not displayed
//   - text: the element's trimmed text equals the expected value
//   - contains: the element's text contains the expected value
//   - arrayContains: one of the matched elements' texts equals the expected
//     value, ignoring case, polled a bounded number of times
//   - value: the input's current value equals the expected value
//
// arrayContains is the only assertion that retries; all others evaluate once.
package assertions
