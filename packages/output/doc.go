// Package output renders run results.
//
// Supported output formats:
//   - console: colored terminal output with wrapped failure messages
//   - json: machine-readable report
//   - junit: JUnit XML for CI systems
//   - tap: Test Anything Protocol version 13
//
// Formatters receive one SuiteResult per descriptor and write the complete
// report on Flush. NewReporter adapts a Formatter to runner.Reporter.
package output
