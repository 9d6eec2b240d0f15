// Package validation applies the asserts of a case or hook to a response.
//
// Stages run in a fixed order and stop at the first violation:
//
//   - status
//   - script
//   - schema
//   - headers
//   - has-json and has-not-json
//   - verifypath
//   - body
//   - responsetime
//   - handler validate and after
//
// Every violation is reported as a *failure.AssertionError carrying the
// stage name and the step label.
package validation
