package output

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/abdul-hamid-achik/flowspec/packages/core/interpreter"
	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case []string:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

// displayName prefers the testcase name and falls back to its id.
func displayName(tc *runner.TestcaseResult) string {
	if tc.Name != "" {
		return tc.Name
	}
	return tc.TestcaseID
}

// failedStep returns the step that ended the testcase, if any.
func failedStep(tc *runner.TestcaseResult) *interpreter.StepResult {
	for _, sc := range tc.Scenarios {
		for _, step := range sc.Steps {
			if step.Status == interpreter.StepFailed {
				return step
			}
		}
	}
	return nil
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	title := result.ReportName
	if title == "" {
		title = "user " + result.UserID
	}
	fmt.Fprintf(f.writer, "\n%s\n", bold(fmt.Sprintf("Running: %s (%s, %s)", title, result.Browser, result.RunMode)))
	fmt.Fprintf(f.writer, "\n")

	for _, tc := range result.Testcases {
		if tc.Skipped {
			fmt.Fprintf(f.writer, "  %s %s", yellow("-"), displayName(tc))
			if tc.SkipReason != "" && tc.SkipReason != "filtered out" {
				fmt.Fprintf(f.writer, " (%s)", tc.SkipReason)
			}
			fmt.Fprintf(f.writer, "\n")
			continue
		}

		symbol := green("✓")
		if !tc.Passed {
			symbol = red("✗")
		}
		fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, displayName(tc), cyan(fmt.Sprintf("(%dms)", tc.Duration.Milliseconds())))

		if f.verbose {
			for _, sc := range tc.Scenarios {
				mark := green("✓")
				if !sc.Passed {
					mark = red("✗")
				}
				fmt.Fprintf(f.writer, "    %s %s (%d steps, %d skipped)\n", mark, sc.ScenarioID, len(sc.Steps), sc.Skipped())
			}
		}

		if !tc.Passed && tc.Error != nil {
			fmt.Fprintf(f.writer, "    %s %v\n", red("→"), tc.Error)
			if step := failedStep(tc); step != nil && step.Assertion != nil && !step.Assertion.Passed {
				fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(step.Assertion.Expected, 100))
				fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(step.Assertion.Actual, 100))
			}
		}

		if f.verbose && len(tc.Outputs) > 0 {
			fmt.Fprintf(f.writer, "    Outputs:\n")
			for _, scenarioID := range sortedKeys(tc.Outputs) {
				for _, key := range sortedKeys(tc.Outputs[scenarioID]) {
					fmt.Fprintf(f.writer, "      %s.%s = %s\n", scenarioID, key, formatValue(tc.Outputs[scenarioID][key], 100))
				}
			}
		}
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if result.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", result.Passed)))
	}
	if result.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	if result.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", result.Skipped)))
	}
	total := result.Passed + result.Failed + result.Skipped
	fmt.Fprintf(f.writer, "%d total\n", total)
	if t := result.Timing; t != nil && t.Steps > 0 {
		fmt.Fprintf(f.writer, "Steps: %d (p50 %dms, p95 %dms, max %dms)\n",
			t.Steps, t.P50.Milliseconds(), t.P95.Milliseconds(), t.Max.Milliseconds())
	}
	fmt.Fprintf(f.writer, "Time:  %dms\n", result.Duration.Milliseconds())
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("flowspec"), version)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
