package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// NewRootCommand creates the ddtspec command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ddtspec",
		Short: "Data-driven HTTP API tests",
		Long: `ddtspec runs HTTP API tests declared as data. Each descriptor file lists
config, schema, handler, hook and test blocks; tests chain requests,
share captured values and validate responses against status codes,
JSON schemas, paths, headers and scripts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newRunCommand(),
		newValidateCommand(),
		newListCommand(),
		newGenerateCommand(),
		newSchemaCommand(),
		newInitCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(v, bt string) int {
	version = v
	buildTime = bt

	err := NewRootCommand().Execute()
	code := exitCode(err)
	if err != nil && !isSilent(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}
