package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/tidwall/gjson"
)

// UpsertPage stores a page definition, replacing one with the same name.
func (s *Store) UpsertPage(ctx context.Context, userID string, page definition.PageDefinition) error {
	if page.Name == "" {
		return errors.New("page name is required")
	}
	doc, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encoding page %s: %w", page.Name, err)
	}
	_, err = s.exec(ctx, `INSERT INTO pages (user_id, page_name, page_json) VALUES (?, ?, ?)
		ON CONFLICT (user_id, page_name) DO UPDATE SET page_json = excluded.page_json`,
		userID, page.Name, string(doc))
	if err != nil {
		return fmt.Errorf("saving page %s: %w", page.Name, err)
	}
	return nil
}

// UpsertScenario stores a scenario definition, replacing one with the same id.
func (s *Store) UpsertScenario(ctx context.Context, userID string, scenario definition.ScenarioDefinition) error {
	if scenario.ID == "" {
		return errors.New("scenario_id is required")
	}
	doc, err := json.Marshal(scenario)
	if err != nil {
		return fmt.Errorf("encoding scenario %s: %w", scenario.ID, err)
	}
	_, err = s.exec(ctx, `INSERT INTO scenarios (user_id, scenario_id, scenario_json) VALUES (?, ?, ?)
		ON CONFLICT (user_id, scenario_id) DO UPDATE SET scenario_json = excluded.scenario_json`,
		userID, scenario.ID, string(doc))
	if err != nil {
		return fmt.Errorf("saving scenario %s: %w", scenario.ID, err)
	}
	return nil
}

// UpsertTestcase stores a testcase definition. A replaced testcase keeps its
// position in the "all" selection order.
func (s *Store) UpsertTestcase(ctx context.Context, userID string, tc definition.TestCaseDefinition) error {
	if tc.ID == "" {
		return errors.New("testcase_id is required")
	}
	doc, err := json.Marshal(tc)
	if err != nil {
		return fmt.Errorf("encoding testcase %s: %w", tc.ID, err)
	}
	_, err = s.exec(ctx, `INSERT INTO testcases (user_id, testcase_id, testcase_json) VALUES (?, ?, ?)
		ON CONFLICT (user_id, testcase_id) DO UPDATE SET testcase_json = excluded.testcase_json`,
		userID, tc.ID, string(doc))
	if err != nil {
		return fmt.Errorf("saving testcase %s: %w", tc.ID, err)
	}
	return nil
}

// UpsertTestData stores the data rows of a testcase. rowUsed selects the row
// handed to runs, counting from 1.
func (s *Store) UpsertTestData(ctx context.Context, userID, testcaseID string, rows [][]definition.DataItem, rowUsed int) error {
	if rowUsed < 1 || rowUsed > len(rows) {
		return fmt.Errorf("row_used %d out of range for %d rows of testcase %s", rowUsed, len(rows), testcaseID)
	}
	doc, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encoding test data of %s: %w", testcaseID, err)
	}
	_, err = s.exec(ctx, `INSERT INTO test_data (user_id, testcase_id, data_rows, row_used) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, testcase_id) DO UPDATE SET data_rows = excluded.data_rows, row_used = excluded.row_used`,
		userID, testcaseID, string(doc), rowUsed)
	if err != nil {
		return fmt.Errorf("saving test data of %s: %w", testcaseID, err)
	}
	return nil
}

// SetMainConfig stores the target-site credentials of a user.
func (s *Store) SetMainConfig(ctx context.Context, userID string, cfg definition.MainConfig) error {
	_, err := s.exec(ctx, `INSERT INTO main_data (user_id, site_url, site_email, site_password) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET site_url = excluded.site_url,
			site_email = excluded.site_email, site_password = excluded.site_password`,
		userID, cfg.URL, cfg.Email, cfg.Password)
	if err != nil {
		return fmt.Errorf("saving main configuration: %w", err)
	}
	return nil
}

// Testcases returns the definitions of the given testcases in request order.
// Unknown ids are left out.
func (s *Store) Testcases(ctx context.Context, userID string, ids []string) ([]definition.TestCaseDefinition, error) {
	docs, err := s.documents(ctx, "testcases", "testcase_id", "testcase_json", userID, ids)
	if err != nil {
		return nil, err
	}
	return decodeInOrder[definition.TestCaseDefinition](docs, ids)
}

// Scenarios returns the definitions of the given scenarios in request order.
func (s *Store) Scenarios(ctx context.Context, userID string, ids []string) ([]definition.ScenarioDefinition, error) {
	docs, err := s.documents(ctx, "scenarios", "scenario_id", "scenario_json", userID, ids)
	if err != nil {
		return nil, err
	}
	return decodeInOrder[definition.ScenarioDefinition](docs, ids)
}

// Pages returns the definitions of the named pages in request order.
func (s *Store) Pages(ctx context.Context, userID string, names []string) ([]definition.PageDefinition, error) {
	docs, err := s.documents(ctx, "pages", "page_name", "page_json", userID, names)
	if err != nil {
		return nil, err
	}
	return decodeInOrder[definition.PageDefinition](docs, names)
}

// TestData returns the selected data row of each given testcase. Testcases
// without stored data are left out.
func (s *Store) TestData(ctx context.Context, userID string, testcaseIDs []string) ([]definition.TestData, error) {
	if len(testcaseIDs) == 0 {
		return nil, nil
	}

	type stored struct {
		rows    string
		rowUsed int
	}
	found := make(map[string]stored, len(testcaseIDs))
	q := `SELECT testcase_id, data_rows, row_used FROM test_data WHERE user_id = ? AND testcase_id IN (` + inClause(len(testcaseIDs)) + `)`
	err := s.query(ctx, q, stringArgs([]any{userID}, testcaseIDs), func(rows *sql.Rows) error {
		var id string
		var st stored
		if err := rows.Scan(&id, &st.rows, &st.rowUsed); err != nil {
			return err
		}
		found[id] = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result []definition.TestData
	for _, id := range testcaseIDs {
		st, ok := found[id]
		if !ok {
			continue
		}
		row := gjson.Get(st.rows, strconv.Itoa(st.rowUsed-1))
		if !row.Exists() {
			return nil, fmt.Errorf("test data of %s has no row %d", id, st.rowUsed)
		}
		var items []definition.DataItem
		if err := json.Unmarshal([]byte(row.Raw), &items); err != nil {
			return nil, fmt.Errorf("decoding test data of %s: %w", id, err)
		}
		result = append(result, definition.TestData{TestcaseID: id, Data: items})
	}
	return result, nil
}

// MainConfig returns the target-site credentials of a user, or ErrNotFound.
func (s *Store) MainConfig(ctx context.Context, userID string) (*definition.MainConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var cfg definition.MainConfig
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT site_url, site_email, site_password FROM main_data WHERE user_id = ?`), userID).
		Scan(&cfg.URL, &cfg.Email, &cfg.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading main configuration: %w", err)
	}
	return &cfg, nil
}

// TestcaseSummary is the listing view of a stored testcase.
type TestcaseSummary struct {
	ID            string
	Name          string
	Tags          []string
	ScenarioCount int
}

// ListTestcases summarises every testcase of a user in insertion order.
func (s *Store) ListTestcases(ctx context.Context, userID string) ([]TestcaseSummary, error) {
	var result []TestcaseSummary
	err := s.query(ctx, `SELECT testcase_json FROM testcases WHERE user_id = ? ORDER BY id ASC`, []any{userID},
		func(rows *sql.Rows) error {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				return err
			}
			fields := gjson.GetMany(doc, "testcase_id", "name", "tags", "scenarios.#")
			summary := TestcaseSummary{
				ID:            fields[0].String(),
				Name:          fields[1].String(),
				ScenarioCount: int(fields[3].Int()),
			}
			for _, tag := range fields[2].Array() {
				summary.Tags = append(summary.Tags, tag.String())
			}
			result = append(result, summary)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// documents fetches raw JSON documents keyed by their id column.
func (s *Store) documents(ctx context.Context, table, keyColumn, docColumn, userID string, keys []string) (map[string]string, error) {
	docs := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return docs, nil
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE user_id = ? AND %s IN (%s)`,
		keyColumn, docColumn, table, keyColumn, inClause(len(keys)))
	err := s.query(ctx, q, stringArgs([]any{userID}, keys), func(rows *sql.Rows) error {
		var key, doc string
		if err := rows.Scan(&key, &doc); err != nil {
			return err
		}
		docs[key] = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	return docs, nil
}

func decodeInOrder[T any](docs map[string]string, keys []string) ([]T, error) {
	result := make([]T, 0, len(docs))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		doc, ok := docs[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true

		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		result = append(result, v)
	}
	return result, nil
}
