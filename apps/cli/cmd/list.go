package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var listTagFlag string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the testcases of a user",
	Long: `List the testcases stored for a user with their tags and scenario count.

Examples:
  flowspec list --user 42
  flowspec list --user 42 --tag smoke`,
	Args: cobra.NoArgs,
	RunE: listCommand,
}

func init() {
	listCmd.Flags().StringVar(&listTagFlag, "tag", "", "Only list testcases carrying this tag")
}

func listCommand(cmd *cobra.Command, args []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	testcases, err := st.ListTestcases(cmd.Context(), userID)
	if err != nil {
		return withExitCode(ExitStoreError, err)
	}

	out := cmd.OutOrStdout()
	shown := 0
	for _, tc := range testcases {
		if listTagFlag != "" && !slices.Contains(tc.Tags, listTagFlag) {
			continue
		}
		name := tc.Name
		if name == "" {
			name = tc.ID
		}
		fmt.Fprintf(out, "  - %s (%s, %d scenarios)\n", name, tc.ID, tc.ScenarioCount)
		if len(tc.Tags) > 0 {
			fmt.Fprintf(out, "    tags: %s\n", strings.Join(tc.Tags, ", "))
		}
		shown++
	}

	if shown == 0 {
		fmt.Fprintln(out, "No testcases found")
	}
	return nil
}
