package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/snapshot"
	"github.com/abdul-hamid-achik/flowspec/packages/store"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [snapshot-dir|bundle-file...]",
	Short: "Validate runtime snapshots and definition bundles",
	Long: `Validate runtime snapshot directories against their JSON schemas and
definition bundles for structural problems, without running anything.

Without arguments the runtime snapshot of the current user is validated.

Examples:
  flowspec validate --user 42
  flowspec validate runtime/user_42
  flowspec validate definitions.yaml`,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	targets := args
	if len(targets) == 0 {
		userID, err := requireUser()
		if err != nil {
			return err
		}
		targets = []string{config.UserDir(settings.RuntimeRoot, userID)}
	}

	hasErrors := false
	for _, target := range targets {
		problems, err := validateTarget(target)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", target, err)
			hasErrors = true
			continue
		}
		if len(problems) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "Invalid: %s\n", target)
			for _, p := range problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", p)
			}
			hasErrors = true
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", target)
	}

	if hasErrors {
		return withExitCode(ExitValidationError, errors.New("validation failed"))
	}
	return nil
}

// validateTarget checks a snapshot directory or a bundle file.
func validateTarget(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		b, err := store.LoadBundle(path)
		if err != nil {
			return nil, err
		}
		return b.Validate(), nil
	}

	byFile := snapshot.Validate(path)
	files := make([]string, 0, len(byFile))
	for file := range byFile {
		files = append(files, file)
	}
	sort.Strings(files)

	var problems []string
	for _, file := range files {
		for _, p := range byFile[file] {
			problems = append(problems, file+": "+p)
		}
	}
	return problems, nil
}
