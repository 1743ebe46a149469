package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/abdul-hamid-achik/flowspec/packages/snapshot"
)

// DefinitionSource serves the stored definitions of a user. Lookups by id
// leave unknown ids out. MainConfig returns an error wrapping
// flowerr.ErrNotFound when the user has no site credentials.
type DefinitionSource interface {
	Testcases(ctx context.Context, userID string, ids []string) ([]definition.TestCaseDefinition, error)
	Scenarios(ctx context.Context, userID string, ids []string) ([]definition.ScenarioDefinition, error)
	Pages(ctx context.Context, userID string, names []string) ([]definition.PageDefinition, error)
	TestData(ctx context.Context, userID string, testcaseIDs []string) ([]definition.TestData, error)
	MainConfig(ctx context.Context, userID string) (*definition.MainConfig, error)
}

// buildSnapshot fetches the closure of the requested testcases: their
// scenarios, the pages those scenarios reference, their test data and the
// user's site credentials.
func (o *Orchestrator) buildSnapshot(ctx context.Context, req Request) (*snapshot.Snapshot, error) {
	testcases, err := o.source.Testcases(ctx, req.UserID, req.TestcaseIDs)
	if err != nil {
		return nil, fmt.Errorf("fetching testcases: %w", err)
	}
	if len(testcases) == 0 {
		return nil, flowerr.Newf(flowerr.CodeNoTestcases, "no testcases found for ids %s", strings.Join(req.TestcaseIDs, ", "))
	}

	scenarios, err := o.source.Scenarios(ctx, req.UserID, scenarioIDs(testcases))
	if err != nil {
		return nil, fmt.Errorf("fetching scenarios: %w", err)
	}

	pages, err := o.source.Pages(ctx, req.UserID, pageNames(scenarios))
	if err != nil {
		return nil, fmt.Errorf("fetching pages: %w", err)
	}

	ids := make([]string, len(testcases))
	for i, tc := range testcases {
		ids[i] = tc.ID
	}
	testData, err := o.source.TestData(ctx, req.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("fetching test data: %w", err)
	}

	main, err := o.source.MainConfig(ctx, req.UserID)
	if errors.Is(err, flowerr.ErrNotFound) || (err == nil && main == nil) {
		return nil, flowerr.Newf(flowerr.CodeMissingMainConfig, "main configuration not found for user %s", req.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching main configuration: %w", err)
	}

	snap := &snapshot.Snapshot{
		Pages:     pages,
		Scenarios: scenarios,
		Testcases: testcases,
		TestData:  testData,
		Run: definition.RunMetadata{
			RunMode:    req.RunMode,
			ViewMode:   req.ViewMode,
			ReportName: req.ReportName,
			CreatedAt:  time.Now().UTC(),
			URL:        main.URL,
			Email:      main.Email,
			Password:   main.Password,
			UserID:     req.UserID,
		},
	}
	snap.FillCounts()
	return snap, nil
}

func writeSnapshot(dir string, snap *snapshot.Snapshot) error {
	if err := snapshot.Write(dir, snap); err != nil {
		return fmt.Errorf("writing runtime snapshot: %w", err)
	}
	return nil
}

// scenarioIDs returns the distinct scenario ids referenced by testcases, in
// first-use order.
func scenarioIDs(testcases []definition.TestCaseDefinition) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, tc := range testcases {
		for _, id := range tc.Scenarios {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// pageNames returns the distinct page names referenced by scenarios.
func pageNames(scenarios []definition.ScenarioDefinition) []string {
	seen := make(map[string]bool)
	var names []string
	for i := range scenarios {
		for _, name := range scenarios[i].PageNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

func executionLog(artifactRoot, userID string) string {
	return filepath.Join(config.UserDir(artifactRoot, userID), config.ExecutionLogFile)
}
