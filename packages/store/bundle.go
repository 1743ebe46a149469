package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"gopkg.in/yaml.v3"
)

// Bundle is a set of definitions imported together. Bundles are YAML or
// JSON documents using the same field names as the runtime snapshot.
type Bundle struct {
	Main      *definition.MainConfig          `json:"main,omitempty"`
	Pages     []definition.PageDefinition     `json:"pages,omitempty"`
	Scenarios []definition.ScenarioDefinition `json:"scenarios,omitempty"`
	Testcases []definition.TestCaseDefinition `json:"testcases,omitempty"`
	TestData  []BundleTestData                `json:"testData,omitempty"`
	Groups    map[string][]string             `json:"groups,omitempty"`
}

// BundleTestData holds every data row of a testcase. RowUsed counts from 1
// and defaults to the first row.
type BundleTestData struct {
	TestcaseID string                  `json:"testcase_id"`
	Rows       [][]definition.DataItem `json:"rows"`
	RowUsed    int                     `json:"row_used,omitempty"`
}

// ImportStats counts what an import wrote.
type ImportStats struct {
	Pages     int
	Scenarios int
	Testcases int
	TestData  int
	Groups    int
	Main      bool
}

// ParseBundle decodes a YAML (or JSON) bundle. Field names follow the JSON
// tags of the definition types.
func ParseBundle(data []byte) (*Bundle, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing bundle: %w", err)
	}
	if raw == nil {
		return &Bundle{}, nil
	}

	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("converting bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, fmt.Errorf("decoding bundle: %w", err)
	}
	return &b, nil
}

// LoadBundle reads and parses a bundle file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := ParseBundle(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ImportBundle upserts every definition of b for userID. Groups are written
// last so they can reference testcases of the same bundle.
func (s *Store) ImportBundle(ctx context.Context, userID string, b *Bundle) (ImportStats, error) {
	var stats ImportStats

	for _, page := range b.Pages {
		if err := s.UpsertPage(ctx, userID, page); err != nil {
			return stats, err
		}
		stats.Pages++
	}
	for _, scenario := range b.Scenarios {
		if err := s.UpsertScenario(ctx, userID, scenario); err != nil {
			return stats, err
		}
		stats.Scenarios++
	}
	for _, tc := range b.Testcases {
		if err := s.UpsertTestcase(ctx, userID, tc); err != nil {
			return stats, err
		}
		stats.Testcases++
	}
	for _, td := range b.TestData {
		rowUsed := td.RowUsed
		if rowUsed == 0 {
			rowUsed = 1
		}
		if err := s.UpsertTestData(ctx, userID, td.TestcaseID, td.Rows, rowUsed); err != nil {
			return stats, err
		}
		stats.TestData++
	}
	if b.Main != nil {
		if err := s.SetMainConfig(ctx, userID, *b.Main); err != nil {
			return stats, err
		}
		stats.Main = true
	}

	for _, name := range b.groupNames() {
		if err := s.SaveGroup(ctx, userID, name, b.Groups[name]); err != nil {
			return stats, err
		}
		stats.Groups++
	}
	return stats, nil
}

// Validate reports structural problems of the bundle: missing or duplicate
// identifiers, steps on pages the bundle does not define and rows out of
// range. References to definitions stored earlier are not checked.
func (b *Bundle) Validate() []string {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	pages := make(map[string]bool)
	for i, p := range b.Pages {
		switch {
		case p.Name == "":
			addf("pages[%d]: page name is required", i)
		case pages[p.Name]:
			addf("pages[%d]: duplicate page %q", i, p.Name)
		}
		pages[p.Name] = true
	}

	scenarios := make(map[string]bool)
	for i, sc := range b.Scenarios {
		switch {
		case sc.ID == "":
			addf("scenarios[%d]: scenario_id is required", i)
		case scenarios[sc.ID]:
			addf("scenarios[%d]: duplicate scenario %q", i, sc.ID)
		}
		scenarios[sc.ID] = true
		for j, step := range sc.Flow {
			if step.Page != "" && len(b.Pages) > 0 && !pages[step.Page] {
				addf("scenario %s step %d: unknown page %q", sc.ID, j, step.Page)
			}
		}
	}

	testcases := make(map[string]bool)
	for i, tc := range b.Testcases {
		switch {
		case tc.ID == "":
			addf("testcases[%d]: testcase_id is required", i)
		case testcases[tc.ID]:
			addf("testcases[%d]: duplicate testcase %q", i, tc.ID)
		}
		testcases[tc.ID] = true
		for _, ref := range tc.Scenarios {
			if len(b.Scenarios) > 0 && !scenarios[ref] {
				addf("testcase %s: unknown scenario %q", tc.ID, ref)
			}
		}
	}

	for i, td := range b.TestData {
		if td.TestcaseID == "" {
			addf("testData[%d]: testcase_id is required", i)
		}
		if td.RowUsed < 0 || td.RowUsed > len(td.Rows) || (td.RowUsed == 0 && len(td.Rows) == 0) {
			addf("testData[%d]: row_used %d out of range for %d rows", i, td.RowUsed, len(td.Rows))
		}
	}

	for _, name := range b.groupNames() {
		if name == "" {
			addf("groups: group name is required")
		}
		if len(b.Groups[name]) == 0 {
			addf("group %s: no testcases", name)
		}
	}

	if b.Main != nil && b.Main.URL == "" {
		addf("main: url is required")
	}
	return problems
}

func (b *Bundle) groupNames() []string {
	names := make([]string, 0, len(b.Groups))
	for name := range b.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
