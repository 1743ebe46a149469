package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/orchestrator"
	"github.com/abdul-hamid-achik/flowspec/packages/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run testcases of a user in a worker process",
	Long: `Select testcases from the definition store, snapshot them together with
their scenarios, pages and test data, and run them in a worker process.

Without a selection flag every testcase of the user runs.

Examples:
  flowspec run --user 42
  flowspec run --user 42 --tag smoke
  flowspec run --user 42 --ids tc1,tc2 --mode serial
  flowspec run --user 42 --group nightly --browser chromium --browser msedge
  flowspec run --user 42 --tag smoke --save-group smoke-suite`,
	Args: cobra.NoArgs,
	RunE: runCommand,
}

var (
	tagFlag        string
	idsFlag        []string
	groupFlag      string
	saveGroupFlag  string
	browserFlag    []string
	modeFlag       string
	viewFlag       string
	reportNameFlag string
	dryRunFlag     bool
)

// Execution flags, shared by run (which forwards them) and worker
var (
	concurrencyFlag int
	bailFlag        bool
	nameFlag        string
	tagsFilterFlag  string
	reporterFlag    []string
	verboseFlag     int
	noColorFlag     bool
	timeoutFlag     string
)

func init() {
	// Selection flags
	runCmd.Flags().StringVar(&tagFlag, "tag", getEnvString("FLOWSPEC_TAG", ""), "Run testcases carrying this tag (env: FLOWSPEC_TAG)")
	runCmd.Flags().StringSliceVar(&idsFlag, "ids", nil, "Run these testcase ids (comma-separated)")
	runCmd.Flags().StringVar(&groupFlag, "group", getEnvString("FLOWSPEC_GROUP", ""), "Run the testcases of a saved group (env: FLOWSPEC_GROUP)")
	runCmd.Flags().StringVar(&saveGroupFlag, "save-group", "", "Save the selected testcases as a group before running")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Show the selected testcases without running them")

	// Run settings
	runCmd.Flags().StringSliceVarP(&browserFlag, "browser", "b", getEnvList("FLOWSPEC_BROWSERS"), "Browsers to run in: chromium, chrome, msedge (env: FLOWSPEC_BROWSERS)")
	runCmd.Flags().StringVarP(&modeFlag, "mode", "m", getEnvString("FLOWSPEC_RUN_MODE", ""), "Run mode: default, serial, parallel (env: FLOWSPEC_RUN_MODE)")
	runCmd.Flags().StringVar(&viewFlag, "view", getEnvString("FLOWSPEC_VIEW_MODE", ""), "View mode: headless, headed (env: FLOWSPEC_VIEW_MODE)")
	runCmd.Flags().StringVar(&reportNameFlag, "report-name", getEnvString("FLOWSPEC_REPORT_NAME", ""), "Name shown in reports and notifications (env: FLOWSPEC_REPORT_NAME)")

	addExecutionFlags(runCmd)
}

// addExecutionFlags registers the flags the worker needs. run forwards the
// ones set explicitly.
func addExecutionFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("FLOWSPEC_CONCURRENCY", 0), "Concurrent testcases in parallel mode (env: FLOWSPEC_CONCURRENCY)")
	cmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("FLOWSPEC_BAIL", false), "Stop after the first failed testcase (env: FLOWSPEC_BAIL)")
	cmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only testcases whose name or id matches the pattern (* wildcards)")
	cmd.Flags().StringVarP(&tagsFilterFlag, "tags", "t", "", "Run only snapshot testcases with any of these tags (comma-separated)")
	cmd.Flags().StringSliceVarP(&reporterFlag, "reporter", "r", getEnvList("FLOWSPEC_REPORTERS"), "Reporters: console, json, junit, tap (env: FLOWSPEC_REPORTERS)")
	cmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose console output")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("FLOWSPEC_NO_COLOR", false), "Disable colored output (env: FLOWSPEC_NO_COLOR)")
	cmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("FLOWSPEC_TIMEOUT", ""), "Testcase timeout, e.g. 4m (env: FLOWSPEC_TIMEOUT)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	return splitList(os.Getenv(key))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// selectionFromFlags picks the selection mode. At most one of --tag, --ids
// and --group may be given.
func selectionFromFlags(tag string, ids []string, group string) (store.Selection, error) {
	given := 0
	for _, set := range []bool{tag != "", len(ids) > 0, group != ""} {
		if set {
			given++
		}
	}
	if given > 1 {
		return store.Selection{}, withExitCode(ExitUsageError, errors.New("--tag, --ids and --group are mutually exclusive"))
	}

	switch {
	case tag != "":
		return store.Selection{Mode: store.SelectByTag, Tag: tag}, nil
	case len(ids) > 0:
		return store.Selection{Mode: store.SelectByIDs, IDs: ids}, nil
	case group != "":
		return store.Selection{Mode: store.SelectByGroup, Group: group}, nil
	}
	return store.Selection{Mode: store.SelectAll}, nil
}

// workerArgs builds the worker command line. Browsers are appended by the
// launcher.
func workerArgs(cmd *cobra.Command) []string {
	args := []string{"worker", "--log-level", settings.LogLevel, "--log-format", settings.LogFormat}
	if configFlag != "" {
		args = append(args, "--config", configFlag)
	}
	if envFileFlag != "" {
		args = append(args, "--env-file", envFileFlag)
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		args = append(args, "--concurrency", strconv.Itoa(concurrencyFlag))
	}
	if flags.Changed("bail") {
		args = append(args, "--bail="+strconv.FormatBool(bailFlag))
	}
	if nameFlag != "" {
		args = append(args, "--name", nameFlag)
	}
	if tagsFilterFlag != "" {
		args = append(args, "--tags", tagsFilterFlag)
	}
	for _, r := range reporterFlag {
		args = append(args, "--reporter", r)
	}
	for i := 0; i < verboseFlag; i++ {
		args = append(args, "-v")
	}
	if noColorFlag {
		args = append(args, "--no-color")
	}
	if timeoutFlag != "" {
		args = append(args, "--timeout", timeoutFlag)
	}
	return args
}

func runCommand(cmd *cobra.Command, args []string) error {
	userID, err := requireUser()
	if err != nil {
		return err
	}
	sel, err := selectionFromFlags(tagFlag, idsFlag, groupFlag)
	if err != nil {
		return err
	}
	if timeoutFlag != "" {
		if _, err := time.ParseDuration(timeoutFlag); err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid timeout value %q: %w (use format like 90s, 4m)", timeoutFlag, err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ids, err := st.SelectTestcases(ctx, userID, sel)
	if err != nil {
		return withExitCode(ExitStoreError, err)
	}

	if saveGroupFlag != "" {
		if err := st.SaveGroup(ctx, userID, saveGroupFlag, ids); err != nil {
			return withExitCode(ExitStoreError, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved group %s (%d testcases)\n", saveGroupFlag, len(ids))
	}

	if dryRunFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "Would run %d testcase(s) (%s):\n", len(ids), sel.Mode)
		for _, id := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", id)
		}
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return withExitCode(ExitWorkerError, fmt.Errorf("locating worker binary: %w", err))
	}

	orch := orchestrator.New(st, &orchestrator.ProcessLauncher{Command: exe, Args: workerArgs(cmd)},
		orchestrator.Config{RuntimeRoot: settings.RuntimeRoot, ArtifactRoot: settings.ArtifactRoot},
		orchestrator.WithLogger(logger),
		orchestrator.WithFinishHook(recordHistory(st)),
	)
	defer orch.Close()

	req := orchestrator.Request{
		UserID:        userID,
		TestcaseIDs:   ids,
		Browsers:      firstNonEmpty(browserFlag, settings.Browsers),
		RunMode:       firstNonEmptyString(modeFlag, settings.RunMode),
		ViewMode:      firstNonEmptyString(viewFlag, settings.ViewMode),
		ReportName:    reportNameFlag,
		SelectionMode: string(sel.Mode),
		Tag:           sel.Tag,
		Group:         sel.Group,
	}

	rec, err := orch.StartRun(ctx, req)
	if err != nil {
		return err
	}
	if err := st.RecordRun(ctx, historyEntry(rec)); err != nil {
		logger.WarnContext(ctx, "recording run start", "error", err)
	}

	env := config.NewWorkerEnv(settings.RuntimeRoot, settings.ArtifactRoot, userID, req.ViewMode)
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s started: %d testcase(s), worker pid %d\n", rec.RunID, len(ids), rec.PID)
	fmt.Fprintf(cmd.OutOrStdout(), "Log:     %s\n", executionLogPath(userID))
	fmt.Fprintf(cmd.OutOrStdout(), "Results: %s\n", env.ResultsDir)

	final, err := orch.Wait(ctx, userID)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Interrupted, stopping worker...")
		_ = orch.Close()
		final = orch.PollStatus(userID)
	}

	return reportFinal(cmd, final)
}

func reportFinal(cmd *cobra.Command, final orchestrator.RunRecord) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	took := final.FinishedAt.Sub(final.StartedAt).Round(time.Millisecond)
	if final.Status == orchestrator.StatusCompleted {
		fmt.Fprintf(cmd.OutOrStdout(), "%s in %s\n", green("Run completed"), took)
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s in %s (exit code %d)\n", red("Run failed"), took, final.ExitCode)
	if final.ExitCode == ExitTestFailure {
		return withExitCode(ExitTestFailure, errors.New("one or more testcases failed"))
	}
	if final.Error == "" {
		final.Error = fmt.Sprintf("worker exited with code %d", final.ExitCode)
	}
	return withExitCode(ExitWorkerError, errors.New(final.Error))
}

// recordHistory stores every finalized run in the testruns table.
func recordHistory(st *store.Store) orchestrator.FinishHook {
	return func(rec orchestrator.RunRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.RecordRun(ctx, historyEntry(rec)); err != nil {
			logger.Warn("recording run history", "run_id", rec.RunID, "error", err)
		}
	}
}

func historyEntry(rec orchestrator.RunRecord) store.RunEntry {
	return store.RunEntry{
		RunID:         rec.RunID,
		UserID:        rec.UserID,
		SelectionMode: store.SelectionMode(rec.Request.SelectionMode),
		TestcaseIDs:   rec.Request.TestcaseIDs,
		Group:         rec.Request.Group,
		Tag:           rec.Request.Tag,
		Browsers:      rec.Request.Browsers,
		RunMode:       rec.Request.RunMode,
		ReportName:    rec.Request.ReportName,
		Status:        string(rec.Status),
		ExitCode:      rec.ExitCode,
		Error:         rec.Error,
		StartedAt:     rec.StartedAt,
		FinishedAt:    rec.FinishedAt,
	}
}

func executionLogPath(userID string) string {
	return filepath.Join(config.UserDir(settings.ArtifactRoot, userID), config.ExecutionLogFile)
}

func firstNonEmpty(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
