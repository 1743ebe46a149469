package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// SelectionMode is how a run picks its testcases.
type SelectionMode string

const (
	SelectAll     SelectionMode = "all"
	SelectByTag   SelectionMode = "byTag"
	SelectByIDs   SelectionMode = "byIds"
	SelectByGroup SelectionMode = "byGroup"
)

// Selection describes the testcases of a run.
type Selection struct {
	Mode  SelectionMode
	Tag   string
	IDs   []string
	Group string
}

// SelectTestcases resolves a selection to testcase ids. byIds returns the ids
// as given without checking them.
func (s *Store) SelectTestcases(ctx context.Context, userID string, sel Selection) ([]string, error) {
	switch sel.Mode {
	case SelectAll:
		return s.testcaseIDs(ctx, userID, "")
	case SelectByTag:
		if sel.Tag == "" {
			return nil, errors.New("tag is required for byTag selection")
		}
		return s.testcaseIDs(ctx, userID, sel.Tag)
	case SelectByIDs:
		return append([]string(nil), sel.IDs...), nil
	case SelectByGroup:
		if sel.Group == "" {
			return nil, errors.New("group is required for byGroup selection")
		}
		return s.groupTestcaseIDs(ctx, userID, sel.Group)
	default:
		return nil, fmt.Errorf("unknown selection mode %q", sel.Mode)
	}
}

// testcaseIDs lists testcase ids in insertion order, optionally only those
// carrying tag.
func (s *Store) testcaseIDs(ctx context.Context, userID, tag string) ([]string, error) {
	var ids []string
	err := s.query(ctx, `SELECT testcase_json FROM testcases WHERE user_id = ? ORDER BY id ASC`, []any{userID},
		func(rows *sql.Rows) error {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				return err
			}
			if tag != "" && !hasTag(doc, tag) {
				return nil
			}
			ids = append(ids, gjson.Get(doc, "testcase_id").String())
			return nil
		})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func hasTag(doc, tag string) bool {
	for _, t := range gjson.Get(doc, "tags").Array() {
		if t.String() == tag {
			return true
		}
	}
	return false
}

// SaveGroup creates or replaces a named testcase group.
func (s *Store) SaveGroup(ctx context.Context, userID, name string, testcaseIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var groupID int64
	err = tx.QueryRowContext(ctx, s.rebind(`INSERT INTO testcase_groups (user_id, group_name) VALUES (?, ?)
		ON CONFLICT (user_id, group_name) DO UPDATE SET group_name = excluded.group_name
		RETURNING id`), userID, name).Scan(&groupID)
	if err != nil {
		return fmt.Errorf("saving group %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM testcase_group_items WHERE group_id = ?`), groupID); err != nil {
		return fmt.Errorf("clearing group %s: %w", name, err)
	}
	for i, id := range testcaseIDs {
		_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO testcase_group_items (group_id, testcase_id, position) VALUES (?, ?, ?)
			ON CONFLICT (group_id, testcase_id) DO NOTHING`), groupID, id, i)
		if err != nil {
			return fmt.Errorf("adding %s to group %s: %w", id, name, err)
		}
	}

	return tx.Commit()
}

// groupTestcaseIDs lists the members of a group that still exist.
func (s *Store) groupTestcaseIDs(ctx context.Context, userID, name string) ([]string, error) {
	var ids []string
	err := s.query(ctx, `SELECT tgi.testcase_id
		FROM testcase_group_items tgi
		INNER JOIN testcase_groups tg ON tg.id = tgi.group_id
		INNER JOIN testcases tc ON tc.user_id = tg.user_id AND tc.testcase_id = tgi.testcase_id
		WHERE tg.user_id = ? AND tg.group_name = ?
		ORDER BY tgi.position ASC`, []any{userID, name},
		func(rows *sql.Rows) error {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
