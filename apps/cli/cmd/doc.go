// Package cmd implements the ddtspec CLI commands using Cobra.
//
// Available commands:
//   - run: Execute descriptor suites, once, on file changes or on a schedule
//   - validate: Load and structurally check descriptors without any network
//   - list: Display the cases of each descriptor with their selection flags
//   - generate: Write descriptors from an OpenAPI 3 document
//   - schema: Print the JSON Schema of a test case block
//   - init: Create a starter config and an example descriptor
//   - version: Show ddtspec version information
//
// Every flag of run can also be set through a DDTSPEC_* environment
// variable. Precedence is defaults, config file, environment, flags.
package cmd
