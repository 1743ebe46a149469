package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/browser"
	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/abdul-hamid-achik/flowspec/packages/datastore"
	"github.com/abdul-hamid-achik/flowspec/packages/logging"
	"github.com/abdul-hamid-achik/flowspec/packages/notify"
	"github.com/abdul-hamid-achik/flowspec/packages/output"
	"github.com/abdul-hamid-achik/flowspec/packages/snapshot"
	"github.com/spf13/cobra"
)

// Result files written by the worker reporters
const (
	JSONResultsFile  = "results.json"
	JUnitResultsFile = "junit.xml"
	TAPResultsFile   = "results.tap"
)

var workerBrowsersFlag []string

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Execute a runtime snapshot (started by run)",
	Hidden: true,
	Long: `Execute the runtime snapshot in $RUNTIME_DIR once per --browser and write
results into $RESULTS_DIR, $TEST_RESULTS_DIR and $REPORT_DIR.

The process exits 0 when every testcase passed.`,
	Args: cobra.NoArgs,
	RunE: workerCommand,
}

func init() {
	workerCmd.Flags().StringSliceVarP(&workerBrowsersFlag, "browser", "b", nil, "Browser to run in, repeatable")
	addExecutionFlags(workerCmd)
}

// Formatter is implemented by every reporter.
type Formatter interface {
	FormatResult(result *runner.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable is implemented by reporters that write a document at the end.
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

type reporter struct {
	formatter Formatter
	file      *os.File
}

func workerCommand(cmd *cobra.Command, args []string) error {
	env, err := config.WorkerEnvFrom(os.Getenv)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithUserID(ctx, env.UserID)

	snap, err := snapshot.Load(env.RuntimeDir, logger)
	if err != nil {
		return withExitCode(ExitValidationError, err)
	}

	cfg, err := workerSettings(cmd)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	reporters, err := openReporters(cfg, env, cmd.OutOrStdout())
	if err != nil {
		return withExitCode(ExitWorkerError, err)
	}
	defer closeReporters(reporters)
	for _, r := range reporters {
		r.formatter.FormatHeader(version)
	}

	browsers := workerBrowsersFlag
	if len(browsers) == 0 {
		browsers = cfg.Browsers
	}
	viewMode := firstNonEmptyString(env.ViewMode, snap.Run.ViewMode, cfg.ViewMode)

	start := time.Now()
	var results []*runner.RunResult
	for _, name := range browsers {
		if !browser.Supported(name) {
			logger.WarnContext(ctx, "skipping unsupported browser", "browser", name)
			continue
		}
		result, err := runInBrowser(ctx, cfg, snap, name, viewMode)
		if errors.Is(err, browser.ErrBrowserNotFound) {
			logger.WarnContext(ctx, "skipping browser that is not installed", "browser", name, "error", err)
			continue
		}
		if err != nil {
			for _, r := range reporters {
				r.formatter.FormatError(err)
			}
			return withExitCode(ExitWorkerError, err)
		}
		for _, r := range reporters {
			r.formatter.FormatResult(result)
		}
		results = append(results, result)
	}

	if len(results) == 0 {
		return withExitCode(ExitConfigError, fmt.Errorf("no supported browser in %s", strings.Join(browsers, ", ")))
	}

	total := time.Since(start)
	for _, r := range reporters {
		if f, ok := r.formatter.(Flushable); ok {
			if err := f.Flush(total); err != nil {
				logger.ErrorContext(ctx, "writing results", "error", err)
			}
		}
	}

	summary := notify.Summarize(results)
	sendNotifications(ctx, cfg, summary)

	if summary.FailedTests > 0 {
		return withExitCode(ExitTestFailure, fmt.Errorf("%d testcase(s) failed", summary.FailedTests))
	}
	return nil
}

// workerSettings layers the execution flags over the loaded settings.
func workerSettings(cmd *cobra.Command) (*config.Config, error) {
	overrides := &config.Config{
		Concurrency: concurrencyFlag,
		Reporters:   reporterFlag,
	}
	if cmd.Flags().Changed("bail") {
		overrides.Bail = config.BoolPtr(bailFlag)
	}
	if verboseFlag > 0 {
		overrides.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		overrides.NoColor = config.BoolPtr(true)
	}
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w", timeoutFlag, err)
		}
		overrides.TestcaseTimeout = int(d.Milliseconds())
	}
	return settings.Merge(overrides), nil
}

func runInBrowser(ctx context.Context, cfg *config.Config, snap *snapshot.Snapshot, name, viewMode string) (*runner.RunResult, error) {
	opts, err := browser.OptionsFor(name, viewMode)
	if err != nil {
		return nil, err
	}
	launcher := browser.NewLauncher(opts)
	sessions := func(ctx context.Context) (runner.Session, error) {
		s, err := launcher.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	r := runner.NewRunner(&runner.Config{
		Concurrency:     cfg.Concurrency,
		TestcaseTimeout: cfg.TestcaseTimeoutDuration(),
		Bail:            cfg.GetBail(),
		NameFilter:      nameFlag,
		TagsFilter:      splitList(tagsFilterFlag),
		Interpreter:     cfg.InterpreterConfig(),
	}, datastore.New(), sessions, runner.WithLogger(logger.With("browser", opts.Browser)))

	result, err := r.Run(ctx, snap)
	if err != nil {
		return nil, err
	}
	result.Browser = opts.Browser
	return result, nil
}

// openReporters creates one formatter per configured reporter. File
// reporters write into the worker's artifact directories.
func openReporters(cfg *config.Config, env config.WorkerEnv, stdout io.Writer) ([]reporter, error) {
	var reporters []reporter
	for _, name := range cfg.Reporters {
		switch name {
		case "console":
			reporters = append(reporters, reporter{formatter: output.NewConsoleFormatter(
				output.WithWriter(stdout),
				output.WithVerbose(cfg.GetVerbose()),
				output.WithNoColor(cfg.GetNoColor()),
			)})
		case "json", "junit", "tap":
			f, err := createResultFile(env, name)
			if err != nil {
				closeReporters(reporters)
				return nil, err
			}
			var formatter Formatter
			switch name {
			case "json":
				formatter = output.NewJSONFormatter(output.JSONWithWriter(f))
			case "junit":
				formatter = output.NewJUnitFormatter(output.JUnitWithWriter(f))
			default:
				formatter = output.NewTAPFormatter(output.TAPWithWriter(f))
			}
			reporters = append(reporters, reporter{formatter: formatter, file: f})
		default:
			closeReporters(reporters)
			return nil, fmt.Errorf("unknown reporter %q (want console, json, junit or tap)", name)
		}
	}
	return reporters, nil
}

func resultPath(env config.WorkerEnv, reporter string) string {
	switch reporter {
	case "json":
		return filepath.Join(firstNonEmptyString(env.ResultsDir, env.RuntimeDir), JSONResultsFile)
	case "junit":
		return filepath.Join(firstNonEmptyString(env.TestResultsDir, env.RuntimeDir), JUnitResultsFile)
	}
	return filepath.Join(firstNonEmptyString(env.ReportDir, env.RuntimeDir), TAPResultsFile)
}

func createResultFile(env config.WorkerEnv, reporter string) (*os.File, error) {
	path := resultPath(env, reporter)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s results: %w", reporter, err)
	}
	return f, nil
}

func closeReporters(reporters []reporter) {
	for _, r := range reporters {
		if r.file != nil {
			_ = r.file.Close()
		}
	}
}

func notifierManager(cfg *config.Config) (*notify.Manager, error) {
	if cfg.Notify == nil {
		return nil, nil
	}
	on, err := notify.ParseNotifyOn(cfg.Notify.On)
	if err != nil {
		return nil, err
	}
	m := notify.NewManager(on)
	if cfg.Notify.SlackWebhook != "" {
		var opts []notify.SlackOption
		if cfg.Notify.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(cfg.Notify.SlackChannel))
		}
		m.AddNotifier(notify.NewSlackNotifier(cfg.Notify.SlackWebhook, opts...))
	}
	if cfg.Notify.TeamsWebhook != "" {
		m.AddNotifier(notify.NewTeamsNotifier(cfg.Notify.TeamsWebhook))
	}
	return m, nil
}

// sendNotifications never fails the run.
func sendNotifications(ctx context.Context, cfg *config.Config, summary *notify.RunSummary) {
	m, err := notifierManager(cfg)
	if err != nil {
		logger.WarnContext(ctx, "notifications disabled", "error", err)
		return
	}
	if m == nil || m.Len() == 0 || !m.ShouldNotify(summary) {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := m.Notify(notifyCtx, summary); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.WarnContext(ctx, "notification timed out")
			return
		}
		logger.WarnContext(ctx, "sending notifications", "error", err)
	}
}
