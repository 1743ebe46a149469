package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results() []*runner.RunResult {
	return []*runner.RunResult{
		{
			UserID: "7", ReportName: "nightly", Browser: "chromium",
			Passed: 1, Failed: 1, Duration: 2 * time.Second,
			Testcases: []*runner.TestcaseResult{
				{TestcaseID: "tc1", Passed: true},
				{TestcaseID: "tc2", Name: "edit job", Error: errors.New("[DRIVER_TIMEOUT] element not visible")},
			},
		},
		{
			UserID: "7", ReportName: "nightly", Browser: "msedge",
			Passed: 1, Skipped: 1, Duration: time.Second,
			Testcases: []*runner.TestcaseResult{
				{TestcaseID: "tc1", Passed: true},
				{TestcaseID: "tc2", Skipped: true, SkipReason: "filtered out"},
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(results())
	assert.Equal(t, "7", s.UserID)
	assert.Equal(t, []string{"chromium", "msedge"}, s.Browsers)
	assert.Equal(t, 4, s.TotalTests)
	assert.Equal(t, 2, s.PassedTests)
	assert.Equal(t, 1, s.FailedTests)
	assert.Equal(t, 1, s.SkippedTests)
	assert.Equal(t, 3*time.Second, s.Duration)
	require.Len(t, s.FailedResults, 1)
	assert.Equal(t, FailedTest{ID: "tc2", Name: "edit job", Browser: "chromium", Error: "[DRIVER_TIMEOUT] element not visible"}, s.FailedResults[0])
	assert.Equal(t, "nightly: 1 testcase(s) failed", s.Title())
}

func TestParseNotifyOn(t *testing.T) {
	on, err := ParseNotifyOn("")
	require.NoError(t, err)
	assert.Equal(t, NotifyFailure, on)

	on, err = ParseNotifyOn("always")
	require.NoError(t, err)
	assert.Equal(t, NotifyAlways, on)

	_, err = ParseNotifyOn("sometimes")
	assert.Error(t, err)
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, *RunSummary) error {
	r.calls++
	return r.err
}

func (r *recordingNotifier) Name() string { return "recording" }

func TestManager_Policy(t *testing.T) {
	failing := &RunSummary{FailedTests: 1}
	passing := &RunSummary{PassedTests: 3}

	tests := []struct {
		on        NotifyOn
		summary   *RunSummary
		wantCalls int
	}{
		{NotifyAlways, passing, 1},
		{NotifyAlways, failing, 1},
		{NotifyFailure, passing, 0},
		{NotifyFailure, failing, 1},
		{NotifySuccess, passing, 1},
		{NotifySuccess, failing, 0},
	}
	for _, tt := range tests {
		n := &recordingNotifier{}
		m := NewManager(tt.on, n)
		require.NoError(t, m.Notify(context.Background(), tt.summary))
		assert.Equal(t, tt.wantCalls, n.calls, "%s", tt.on)
	}
}

func TestManager_TriesEveryNotifier(t *testing.T) {
	broken := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	m := NewManager(NotifyAlways, broken)
	m.AddNotifier(ok)
	assert.Equal(t, 2, m.Len())

	err := m.Notify(context.Background(), &RunSummary{})
	assert.ErrorContains(t, err, "recording: boom")
	assert.Equal(t, 1, ok.calls)
}

func capture(t *testing.T, status int) (*httptest.Server, *[]byte) {
	t.Helper()
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

func TestSlackNotifier(t *testing.T) {
	srv, body := capture(t, http.StatusOK)
	n := NewSlackNotifier(srv.URL, WithSlackChannel("#qa"))
	require.NoError(t, n.Notify(context.Background(), Summarize(results())))

	var msg slackMessage
	require.NoError(t, json.Unmarshal(*body, &msg))
	assert.Equal(t, "#qa", msg.Channel)
	assert.Equal(t, "flowspec", msg.Username)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "danger", msg.Attachments[0].Color)
	assert.Contains(t, msg.Attachments[0].Title, "nightly: 1 testcase(s) failed")
	assert.Contains(t, msg.Attachments[0].Text, "`edit job` (chromium)")
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	srv, _ := capture(t, http.StatusForbidden)
	err := NewSlackNotifier(srv.URL).Notify(context.Background(), &RunSummary{})
	assert.ErrorContains(t, err, "status 403")
}

func TestTeamsNotifier(t *testing.T) {
	srv, body := capture(t, http.StatusAccepted)
	n := NewTeamsNotifier(srv.URL)
	require.NoError(t, n.Notify(context.Background(), Summarize(results())))

	var msg teamsMessage
	require.NoError(t, json.Unmarshal(*body, &msg))
	assert.Equal(t, "message", msg.Type)
	require.Len(t, msg.Attachments, 1)
	blocks := msg.Attachments[0].Content.Body
	assert.Equal(t, "✗ nightly: 1 testcase(s) failed", blocks[0].Text)
	assert.Equal(t, "attention", blocks[0].Color)

	var texts []string
	for _, b := range blocks {
		texts = append(texts, b.Text)
	}
	assert.Contains(t, texts, "**Browsers:** chromium, msedge")
	assert.Contains(t, texts, "- `edit job` (chromium): [DRIVER_TIMEOUT] element not visible")
}
