package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|directory>...",
		Short: "Check descriptor files without running them",
		Long: `Load every descriptor and report structural problems: decode errors,
test blocks that do not match the case schema, and references to handlers or
schemas that are not defined.

Examples:
  ddtspec validate petshop.yaml
  ddtspec validate ./suites/`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: validateCommand,
	}
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := requireFiles(args)
	if err != nil {
		return err
	}

	code := ExitSuccess
	for _, file := range files {
		err := validateFile(file)
		if err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Invalid: %v\n", err)
		// A file that cannot be parsed outranks one with bad contents.
		if c := exitCode(err); code == ExitSuccess || c == ExitParseError {
			code = c
		}
	}

	if code != ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

func validateFile(path string) error {
	doc, err := descriptor.Load(path)
	if err != nil {
		return err
	}
	return doc.Check(nil)
}
