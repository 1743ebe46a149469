package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs of a user",
	Long: `Show the most recent runs of a user, newest first, with their selection,
browsers, final status and worker exit code.

Examples:
  flowspec history --user 42
  flowspec history --user 42 --limit 50`,
	Args: cobra.NoArgs,
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 20, "Number of runs to show, 0 for all")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}

	st, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), userID, historyLimitFlag)
	if err != nil {
		return withExitCode(ExitStoreError, err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-36s  %-19s  %-10s  %4s  %-9s  %-24s  %s\n", "RUN", "STARTED", "STATUS", "EXIT", "DURATION", "SELECTION", "BROWSERS")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-19s  %s  %4d  %-9s  %-24s  %s\n",
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			statusCell(r.Status),
			r.ExitCode,
			runDuration(r),
			selectionLabel(r),
			strings.Join(r.Browsers, ","),
		)
	}
	return nil
}

func statusCell(status string) string {
	cell := fmt.Sprintf("%-10s", status)
	switch status {
	case "completed":
		return color.GreenString(cell)
	case "failed":
		return color.RedString(cell)
	case "running":
		return color.YellowString(cell)
	}
	return cell
}

func runDuration(r store.RunEntry) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func selectionLabel(r store.RunEntry) string {
	var label string
	switch r.SelectionMode {
	case store.SelectByTag:
		label = "tag " + r.Tag
	case store.SelectByGroup:
		label = "group " + r.Group
	case store.SelectByIDs:
		label = fmt.Sprintf("%d ids", len(r.TestcaseIDs))
	default:
		label = fmt.Sprintf("all (%d)", len(r.TestcaseIDs))
	}
	if len(label) > 24 {
		label = label[:21] + "..."
	}
	return label
}
