package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/descriptor"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <file|directory>...",
		Short: "List the test cases in descriptor files",
		Long: `List the test cases declared in descriptor files with their request
and selection flags.

Examples:
  ddtspec list petshop.yaml
  ddtspec list ./suites/`,
		Args: usageArgs(cobra.MinimumNArgs(1)),
		RunE: listCommand,
	}
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := requireFiles(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, file := range files {
		doc, err := descriptor.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			failed = true
			continue
		}

		fmt.Fprintf(out, "\n%s:\n", file)
		for _, c := range doc.Cases {
			fmt.Fprintf(out, "  - %s\n", c.Name)
			fmt.Fprintf(out, "    %s %s\n", requestLine(c.Data.Method), c.Data.URL)
			if flags := caseFlags(c); flags != "" {
				fmt.Fprintf(out, "    flags: %s\n", flags)
			}
			if c.Data.DependsOn != "" {
				fmt.Fprintf(out, "    dependson: %s\n", c.Data.DependsOn)
			}
		}
	}

	if failed {
		return &ExitError{Code: ExitParseError}
	}
	return nil
}

func requestLine(method string) string {
	if method == "" {
		return "GET"
	}
	return strings.ToUpper(method)
}

func caseFlags(c *descriptor.Case) string {
	var flags []string
	if c.Only {
		flags = append(flags, "only")
	}
	if c.OnlyAll {
		flags = append(flags, "onlyall")
	}
	if c.SkipAll {
		flags = append(flags, "skipall")
	}
	return strings.Join(flags, ", ")
}
