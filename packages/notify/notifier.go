// Package notify posts run summaries to chat webhooks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a testcase fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when every testcase passes
	NotifySuccess NotifyOn = "success"
)

// ParseNotifyOn maps a config value. Empty means failure.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(s) {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess:
		return NotifyOn(s), nil
	}
	return "", fmt.Errorf("unknown notify policy %q (want always, failure or success)", s)
}

// RunSummary represents the summary of a worker run for notifications
type RunSummary struct {
	UserID        string        `json:"user_id"`
	ReportName    string        `json:"report_name,omitempty"`
	Browsers      []string      `json:"browsers,omitempty"`
	TotalTests    int           `json:"total_tests"`
	PassedTests   int           `json:"passed_tests"`
	FailedTests   int           `json:"failed_tests"`
	SkippedTests  int           `json:"skipped_tests"`
	Duration      time.Duration `json:"duration"`
	FailedResults []FailedTest  `json:"failed_results,omitempty"`
}

// FailedTest represents a failed testcase for notifications
type FailedTest struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Browser string `json:"browser,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Label is the name shown for the testcase.
func (f FailedTest) Label() string {
	if f.Name != "" {
		return f.Name
	}
	return f.ID
}

// Title is the headline of the summary.
func (s *RunSummary) Title() string {
	name := s.ReportName
	if name == "" {
		name = "user " + s.UserID
	}
	if s.FailedTests > 0 {
		return fmt.Sprintf("%s: %d testcase(s) failed", name, s.FailedTests)
	}
	return fmt.Sprintf("%s: all testcases passed", name)
}

// Summarize folds the per-browser results of one worker run.
func Summarize(results []*runner.RunResult) *RunSummary {
	s := &RunSummary{}
	for _, r := range results {
		if r == nil {
			continue
		}
		s.UserID = r.UserID
		s.ReportName = r.ReportName
		if r.Browser != "" {
			s.Browsers = append(s.Browsers, r.Browser)
		}
		s.TotalTests += len(r.Testcases)
		s.PassedTests += r.Passed
		s.FailedTests += r.Failed
		s.SkippedTests += r.Skipped
		s.Duration += r.Duration

		for _, tc := range r.Testcases {
			if tc.Passed || tc.Skipped {
				continue
			}
			ft := FailedTest{ID: tc.TestcaseID, Name: tc.Name, Browser: r.Browser}
			if tc.Error != nil {
				ft.Error = tc.Error.Error()
			}
			s.FailedResults = append(s.FailedResults, ft)
		}
	}
	return s
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about a run
	Notify(ctx context.Context, summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager manages multiple notifiers
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
	}
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Len reports the number of configured notifiers.
func (m *Manager) Len() int {
	return len(m.notifiers)
}

// ShouldNotify applies the configured policy.
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	switch m.notifyOn {
	case NotifyAlways:
		return true
	case NotifySuccess:
		return summary.FailedTests == 0
	default:
		return summary.FailedTests > 0
	}
}

// Notify sends the summary to every notifier when the policy allows it. All
// notifiers are tried; their errors are joined.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	if !m.ShouldNotify(summary) {
		return nil
	}

	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
