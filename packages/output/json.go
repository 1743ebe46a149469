package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Runs     []JSONRun   `json:"runs"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the test summary
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// JSONRun is one browser pass over the selected testcases.
type JSONRun struct {
	UserID     string      `json:"userId"`
	ReportName string      `json:"reportName,omitempty"`
	Browser    string      `json:"browser,omitempty"`
	RunMode    string      `json:"runMode"`
	StartedAt  string      `json:"startedAt"`
	Duration   float64     `json:"duration"`
	Timing     *JSONTiming `json:"timing,omitempty"`
	Tests      []JSONTest  `json:"tests"`
}

// JSONTiming is the step latency summary in milliseconds.
type JSONTiming struct {
	Steps    int64   `json:"steps"`
	Failures int64   `json:"failures"`
	P50      float64 `json:"p50"`
	P95      float64 `json:"p95"`
	P99      float64 `json:"p99"`
	Max      float64 `json:"max"`
}

// JSONTest represents a single testcase result
type JSONTest struct {
	ID         string                    `json:"id"`
	Name       string                    `json:"name,omitempty"`
	Tags       []string                  `json:"tags,omitempty"`
	Passed     bool                      `json:"passed"`
	Skipped    bool                      `json:"skipped,omitempty"`
	SkipReason string                    `json:"skipReason,omitempty"`
	Duration   float64                   `json:"duration"`
	Error      string                    `json:"error,omitempty"`
	ErrorCode  string                    `json:"errorCode,omitempty"`
	Scenarios  []JSONScenario            `json:"scenarios,omitempty"`
	Data       map[string]map[string]any `json:"data,omitempty"`
	Outputs    map[string]map[string]any `json:"outputs,omitempty"`
}

// JSONScenario represents one scenario of a testcase
type JSONScenario struct {
	ID       string     `json:"id"`
	Passed   bool       `json:"passed"`
	Duration float64    `json:"duration"`
	Error    string     `json:"error,omitempty"`
	Steps    []JSONStep `json:"steps"`
}

// JSONStep represents one executed or skipped step
type JSONStep struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Page       string         `json:"page,omitempty"`
	Element    string         `json:"element,omitempty"`
	Action     string         `json:"action,omitempty"`
	Status     string         `json:"status"`
	SkipReason string         `json:"skipReason,omitempty"`
	Duration   float64        `json:"duration"`
	Error      string         `json:"error,omitempty"`
	Assertion  *JSONAssertion `json:"assertion,omitempty"`
	OutputKey  string         `json:"outputKey,omitempty"`
	Output     any            `json:"output,omitempty"`
}

// JSONAssertion represents an assertion result
type JSONAssertion struct {
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// JSONFormatter formats run results as JSON
type JSONFormatter struct {
	writer io.Writer
	runs   []JSONRun
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		runs:   make([]JSONRun, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	run := JSONRun{
		UserID:     result.UserID,
		ReportName: result.ReportName,
		Browser:    result.Browser,
		RunMode:    string(result.RunMode),
		StartedAt:  result.StartedAt.Format(time.RFC3339),
		Duration:   millis(result.Duration),
		Tests:      make([]JSONTest, 0, len(result.Testcases)),
	}
	if t := result.Timing; t != nil {
		run.Timing = &JSONTiming{
			Steps:    t.Steps,
			Failures: t.Failures,
			P50:      millis(t.P50),
			P95:      millis(t.P95),
			P99:      millis(t.P99),
			Max:      millis(t.Max),
		}
	}

	for _, tc := range result.Testcases {
		test := JSONTest{
			ID:       tc.TestcaseID,
			Name:     tc.Name,
			Tags:     tc.Tags,
			Passed:   tc.Passed,
			Skipped:  tc.Skipped,
			Duration: millis(tc.Duration),
			Error:    errString(tc.Error),
		}
		if tc.SkipReason != "" && tc.SkipReason != "filtered out" {
			test.SkipReason = tc.SkipReason
		}
		if tc.Error != nil {
			test.ErrorCode = string(flowerr.CodeOf(tc.Error))
		}
		if len(tc.ResolvedData) > 0 {
			test.Data = tc.ResolvedData
		}
		if len(tc.Outputs) > 0 {
			test.Outputs = tc.Outputs
		}

		for _, sc := range tc.Scenarios {
			scenario := JSONScenario{
				ID:       sc.ScenarioID,
				Passed:   sc.Passed,
				Duration: millis(sc.Duration),
				Error:    errString(sc.Error),
				Steps:    make([]JSONStep, 0, len(sc.Steps)),
			}
			for _, st := range sc.Steps {
				step := JSONStep{
					ID:         st.ID,
					Type:       string(st.Type),
					Page:       st.Page,
					Element:    st.Element,
					Action:     st.Action,
					Status:     string(st.Status),
					SkipReason: st.SkipReason,
					Duration:   millis(st.Duration),
					Error:      errString(st.Error),
					OutputKey:  st.OutputKey,
					Output:     st.Output,
				}
				if a := st.Assertion; a != nil {
					step.Assertion = &JSONAssertion{
						Expected: a.Expected,
						Actual:   a.Actual,
						Passed:   a.Passed,
						Message:  a.Message,
					}
				}
				scenario.Steps = append(scenario.Steps, step)
			}
			test.Scenarios = append(test.Scenarios, scenario)
		}

		run.Tests = append(run.Tests, test)
	}

	f.runs = append(f.runs, run)
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var summary JSONSummary
	for _, run := range f.runs {
		for _, t := range run.Tests {
			summary.Total++
			if t.Skipped {
				summary.Skipped++
			} else if t.Passed {
				summary.Passed++
			} else {
				summary.Failed++
			}
		}
	}

	output := JSONOutput{
		Summary:  summary,
		Runs:     f.runs,
		Duration: millis(totalDuration),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
