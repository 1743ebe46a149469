package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// RunEntry is one row of the run history.
type RunEntry struct {
	RunID         string
	UserID        string
	SelectionMode SelectionMode
	TestcaseIDs   []string
	Group         string
	Tag           string
	Browsers      []string
	RunMode       string
	ReportName    string
	Status        string
	ExitCode      int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// RecordRun inserts a run, or updates it when the run id is already known.
// Only a running row is updated, so a late start record never replaces a
// finished one.
func (s *Store) RecordRun(ctx context.Context, run RunEntry) error {
	ids, err := json.Marshal(nonNilStrings(run.TestcaseIDs))
	if err != nil {
		return fmt.Errorf("encoding testcase ids: %w", err)
	}

	_, err = s.exec(ctx, `INSERT INTO testruns
		(run_id, user_id, selection_mode, testcase_ids, group_name, tag, browsers, run_mode, report_name,
		 status, exit_code, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			status = excluded.status,
			exit_code = excluded.exit_code,
			error = excluded.error,
			finished_at = excluded.finished_at
		WHERE testruns.status = 'running'`,
		run.RunID, run.UserID, string(run.SelectionMode), string(ids), run.Group, run.Tag,
		strings.Join(run.Browsers, ","), run.RunMode, run.ReportName,
		run.Status, run.ExitCode, run.Error, formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs of a user, newest first. A limit of
// zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, userID string, limit int) ([]RunEntry, error) {
	q := `SELECT run_id, user_id, selection_mode, testcase_ids, group_name, tag, browsers, run_mode, report_name,
		status, exit_code, error, started_at, finished_at
		FROM testruns WHERE user_id = ? ORDER BY started_at DESC, run_id DESC`
	args := []any{userID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	var runs []RunEntry
	err := s.query(ctx, q, args, func(rows *sql.Rows) error {
		var (
			r                   RunEntry
			mode, ids, browsers string
			started, finished   string
		)
		if err := rows.Scan(&r.RunID, &r.UserID, &mode, &ids, &r.Group, &r.Tag, &browsers, &r.RunMode,
			&r.ReportName, &r.Status, &r.ExitCode, &r.Error, &started, &finished); err != nil {
			return err
		}
		r.SelectionMode = SelectionMode(mode)
		for _, id := range gjson.Parse(ids).Array() {
			r.TestcaseIDs = append(r.TestcaseIDs, id.String())
		}
		if browsers != "" {
			r.Browsers = strings.Split(browsers, ",")
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
