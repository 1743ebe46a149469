package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new flowspec project",
	Long: `Initialize a new flowspec project in the current directory.

This creates:
  - flowspec.config.json - Configuration file with defaults
  - flowspec.yaml        - Example definition bundle

Examples:
  flowspec init
  flowspec init --force
  flowspec import --user 1 flowspec.yaml`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "flowspec.config.json")
	bundleFile := filepath.Join(cwd, "flowspec.yaml")

	if !forceInit {
		for _, f := range []string{configFile, bundleFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	if err := config.DefaultConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	bundle, err := exampleBundle()
	if err != nil {
		return err
	}
	if err := os.WriteFile(bundleFile, bundle, 0644); err != nil {
		return fmt.Errorf("failed to create example bundle: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", bundleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nImport the example with: flowspec import --user <id> flowspec.yaml\n")
	return nil
}

// exampleBundle renders a small login and job posting flow.
func exampleBundle() ([]byte, error) {
	bundle := map[string]any{
		"main": map[string]any{
			"url":      "https://app.example.com",
			"email":    "qa@example.com",
			"password": "change-me",
		},
		"pages": []any{
			map[string]any{
				"page": "login",
				"elements": []any{
					map[string]any{"name": "email", "locator": "#email"},
					map[string]any{"name": "password", "locator": "#password"},
					map[string]any{"name": "submit", "locator": "button[type='submit']"},
				},
			},
			map[string]any{
				"page": "jobs",
				"elements": []any{
					map[string]any{"name": "newJob", "locator": "#new-job"},
					map[string]any{"name": "title", "locator": "#job-title"},
					map[string]any{"name": "save", "locator": "#save"},
					map[string]any{"name": "heading", "locator": "h1"},
				},
			},
		},
		"scenarios": []any{
			map[string]any{
				"scenario_id": "login",
				"name":        "Log in",
				"flow": []any{
					map[string]any{"type": "step", "page": "login", "element": "email", "action": "input"},
					map[string]any{"type": "step", "page": "login", "element": "password", "action": "input"},
					map[string]any{"type": "step", "page": "login", "element": "submit", "action": "click"},
				},
			},
			map[string]any{
				"scenario_id": "createJob",
				"name":        "Create a job",
				"flow": []any{
					map[string]any{"type": "step", "page": "jobs", "element": "newJob", "action": "click"},
					map[string]any{"type": "step", "page": "jobs", "element": "title", "action": "input"},
					map[string]any{"type": "step", "page": "jobs", "element": "save", "action": "click"},
					map[string]any{"type": "assert", "page": "jobs", "element": "heading", "assert": "text"},
				},
			},
		},
		"testcases": []any{
			map[string]any{
				"testcase_id": "tc_create_job",
				"name":        "Create a job posting",
				"scenarios":   []string{"login", "createJob"},
				"tags":        []string{"smoke"},
			},
		},
		"testData": []any{
			map[string]any{
				"testcase_id": "tc_create_job",
				"row_used":    1,
				"rows": []any{
					[]any{
						map[string]any{"id": "login_0", "value": "{main.email}"},
						map[string]any{"id": "login_1", "value": "{main.password}"},
						map[string]any{"id": "createJob_1", "value": "QA Engineer"},
						map[string]any{"id": "createJob_3", "value": "QA Engineer"},
					},
				},
			},
		},
		"groups": map[string]any{
			"smoke": []string{"tc_create_job"},
		},
	}

	return yaml.Marshal(bundle)
}
