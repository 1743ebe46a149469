// Package snapshot writes and loads the runtime snapshot: the immutable set of
// JSON documents an orchestrator hands to a worker process.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/abdul-hamid-achik/flowspec/packages/logging"
)

const (
	PagesFile     = "pages.json"
	ScenariosFile = "scenarios.json"
	TestcasesFile = "testcases.json"
	TestDataFile  = "testdata.json"
	RunFile       = "run.json"
)

// Files lists the snapshot documents in the order they are written.
var Files = []string{PagesFile, ScenariosFile, TestcasesFile, TestDataFile, RunFile}

// Snapshot is the closure of definitions needed to run a set of testcases.
type Snapshot struct {
	Pages     []definition.PageDefinition
	Scenarios []definition.ScenarioDefinition
	Testcases []definition.TestCaseDefinition
	TestData  []definition.TestData
	Run       definition.RunMetadata

	// Indexes built by Load or Index.
	PagesByName        map[string]*definition.PageDefinition
	ScenariosByID      map[string]*definition.ScenarioDefinition
	TestDataByTestcase map[string]*definition.TestData
}

// FillCounts sets the entity counts of the run metadata.
func (s *Snapshot) FillCounts() {
	s.Run.TestcaseCount = len(s.Testcases)
	s.Run.ScenarioCount = len(s.Scenarios)
	s.Run.PageCount = len(s.Pages)
}

// Index builds the lookup maps. Pages without a name are skipped with a
// warning; later duplicates win.
func (s *Snapshot) Index(logger *slog.Logger) {
	logger = logging.OrDiscard(logger)

	s.PagesByName = make(map[string]*definition.PageDefinition, len(s.Pages))
	for i := range s.Pages {
		p := &s.Pages[i]
		if p.Name == "" {
			logger.Warn("page definition without a name, skipping", "index", i)
			continue
		}
		s.PagesByName[p.Name] = p
	}

	s.ScenariosByID = make(map[string]*definition.ScenarioDefinition, len(s.Scenarios))
	for i := range s.Scenarios {
		s.ScenariosByID[s.Scenarios[i].ID] = &s.Scenarios[i]
	}

	s.TestDataByTestcase = make(map[string]*definition.TestData, len(s.TestData))
	for i := range s.TestData {
		s.TestDataByTestcase[s.TestData[i].TestcaseID] = &s.TestData[i]
	}
}

// DataFor returns the data row of a testcase, or an empty mapping.
func (s *Snapshot) DataFor(testcaseID string) map[string]any {
	if td, ok := s.TestDataByTestcase[testcaseID]; ok {
		return td.Values()
	}
	return map[string]any{}
}

// Write replaces dir with a fresh copy of the snapshot.
func Write(dir string, s *Snapshot) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clearing runtime directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating runtime directory: %w", err)
	}

	docs := map[string]any{
		PagesFile:     nonNil(s.Pages),
		ScenariosFile: nonNil(s.Scenarios),
		TestcasesFile: nonNil(s.Testcases),
		TestDataFile:  nonNil(s.TestData),
		RunFile:       s.Run,
	}
	for _, name := range Files {
		if err := writeJSON(filepath.Join(dir, name), docs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and validates every document of the snapshot in dir and
// returns an indexed snapshot.
func Load(dir string, logger *slog.Logger) (*Snapshot, error) {
	raw := make(map[string][]byte, len(Files))
	for _, name := range Files {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if err := validateDocument(name, data); err != nil {
			return nil, err
		}
		raw[name] = data
	}

	s := &Snapshot{}
	targets := map[string]any{
		PagesFile:     &s.Pages,
		ScenariosFile: &s.Scenarios,
		TestcasesFile: &s.Testcases,
		TestDataFile:  &s.TestData,
		RunFile:       &s.Run,
	}
	for _, name := range Files {
		if err := json.Unmarshal(raw[name], targets[name]); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	}

	s.Index(logger)
	return s, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// nonNil makes empty collections encode as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
