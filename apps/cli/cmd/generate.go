package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ddtspec/packages/generate"
	"github.com/abdul-hamid-achik/ddtspec/packages/logging"
)

func newGenerateCommand() *cobra.Command {
	var (
		outDir  string
		tags    []string
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "generate <openapi-file|url>",
		Short: "Generate descriptor files from an OpenAPI document",
		Long: `Generate one descriptor per OpenAPI tag. Each operation becomes a test
case with example parameters and body, an expected status, and a reference
to the response schema when the document defines one.

Examples:
  ddtspec generate openapi.yaml -o ./suites
  ddtspec generate https://petstore3.swagger.io/api/v3/openapi.json --tag pet
  ddtspec generate openapi.yaml --base-url http://localhost:8080`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Level: getEnvString("LOG_LEVEL", "")})
			if err != nil {
				return usageError(err)
			}
			defer func() { _ = logger.Sync() }()

			g := generate.New(
				generate.WithTags(tags...),
				generate.WithBaseURL(baseURL),
				generate.WithLogger(logger),
			)
			doc, err := g.Load(cmd.Context(), args[0])
			if err != nil {
				return &ExitError{Code: ExitParseError, Err: err}
			}
			files, err := g.Generate(doc)
			if err != nil {
				return &ExitError{Code: ExitParseError, Err: err}
			}
			if len(files) == 0 {
				return usageError(fmt.Errorf("no operations matched in %s", args[0]))
			}
			paths, err := g.WriteDir(outDir, files)
			if err != nil {
				return err
			}
			for i, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "Created: %s (%d cases)\n", p, files[i].Cases)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Directory to write descriptors to")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Only generate these tags (repeatable)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "SERVICE_URL written into each descriptor (default: the first server)")
	return cmd
}
