package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/ddtspec/packages/core/config"
)

const exampleDescriptor = `# Example ddtspec suite. Run it with: ddtspec run petshop.yaml
- config:
    SERVICE_URL: "http://localhost:3000"

- test: create pet
  data:
    method: POST
    url: "${SERVICE_URL}/pet"
    options:
      json: true
      body:
        name: doggie
        status: available
  asserts:
    status: [200, 201]
    has-json:
      name: doggie

- test: get pet
  data:
    url: "${SERVICE_URL}/pet/${dependson.id}"
    dependson: create pet
  asserts:
    status: 200
    verifypath:
      - path: "$.name"
        expect: "value[0] == 'doggie'"
    responsetime: 2000
`

func newInitCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a config file and an example suite",
		Long: `Initialize a ddtspec project.

This creates:
  - ddtspec.yaml   - Configuration file with the default settings
  - petshop.yaml   - Example descriptor

Examples:
  ddtspec init
  ddtspec init ./api-tests --force`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return initProject(cmd, dir, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing files")
	return cmd
}

func initProject(cmd *cobra.Command, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "ddtspec.yaml")
	exampleFile := filepath.Join(dir, "petshop.yaml")

	if !force {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return usageError(fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Headers = map[string]string{"User-Agent": "ddtspec/" + version}
	cfg.EnvFile = ".env"
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleDescriptor), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nddtspec project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'ddtspec run %s' to execute the example suite.\n", exampleFile)
	return nil
}
