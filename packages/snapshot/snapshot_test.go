package snapshot

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() *Snapshot {
	s := &Snapshot{
		Pages: []definition.PageDefinition{{
			Name: "login",
			Elements: []definition.ElementDefinition{
				{Name: "email", Locator: "#email"},
				{Name: "jobs", Locator: "a.job", ItemLocator: "a[data-id='${jobId}']", PageCountLabel: ".count", NextPageLocator: ".next"},
			},
		}},
		Scenarios: []definition.ScenarioDefinition{{
			ID:   "sc1",
			Name: "Sign in",
			Flow: []definition.Step{
				{Type: definition.StepAction, Page: "login", Element: "email", Action: "input"},
				{Type: definition.StepOutput, Action: "saveJobID", Key: "jobId"},
			},
		}},
		Testcases: []definition.TestCaseDefinition{{ID: "tc1", Name: "Login", Scenarios: []string{"sc1"}}},
		TestData: []definition.TestData{{
			TestcaseID: "tc1",
			Data:       []definition.DataItem{{ID: "sc1_0", Value: "alice@example.com"}},
		}},
		Run: definition.RunMetadata{
			RunMode:    "serial",
			ReportName: "nightly",
			CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			URL:        "https://app.example.com",
			UserID:     "42",
		},
	}
	s.FillCounts()
	return s
}

func TestWriteAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "user_42")
	require.NoError(t, Write(dir, sampleSnapshot()))

	for _, name := range Files {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	loaded, err := Load(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, loaded.Run.TestcaseCount)
	assert.Equal(t, 1, loaded.Run.ScenarioCount)
	assert.Equal(t, 1, loaded.Run.PageCount)
	assert.Equal(t, "serial", loaded.Run.RunMode)
	assert.Equal(t, "42", loaded.Run.UserID)
	assert.True(t, loaded.Run.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	require.Contains(t, loaded.PagesByName, "login")
	el, ok := loaded.PagesByName["login"].Element("jobs")
	require.True(t, ok)
	assert.Equal(t, "a[data-id='7']", el.ItemLocatorFor("7"))

	require.Contains(t, loaded.ScenariosByID, "sc1")
	assert.Len(t, loaded.ScenariosByID["sc1"].Flow, 2)
	assert.Equal(t, map[string]any{"sc1_0": "alice@example.com"}, loaded.DataFor("tc1"))
	assert.Empty(t, loaded.DataFor("tc9"))
}

func TestWriteUsesWireFieldNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleSnapshot()))

	pages, err := os.ReadFile(filepath.Join(dir, PagesFile))
	require.NoError(t, err)
	assert.Contains(t, string(pages), `"page": "login"`)
	assert.Contains(t, string(pages), `"requiredJobTitleLocator"`)

	scenarios, err := os.ReadFile(filepath.Join(dir, ScenariosFile))
	require.NoError(t, err)
	assert.Contains(t, string(scenarios), `"scenario_id": "sc1"`)

	run, err := os.ReadFile(filepath.Join(dir, RunFile))
	require.NoError(t, err)
	assert.Contains(t, string(run), `"testcaseCount": 1`)
	assert.Contains(t, string(run), `"userId": "42"`)
}

func TestWriteReplacesDirectory(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stale.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0644))

	require.NoError(t, Write(dir, sampleSnapshot()))
	assert.NoFileExists(t, stale)
}

func TestWriteEmptyCollections(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, &Snapshot{Run: definition.RunMetadata{RunMode: "default", UserID: "1"}}))

	data, err := os.ReadFile(filepath.Join(dir, TestcasesFile))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	_, err = Load(dir, nil)
	assert.NoError(t, err)
}

func TestLoadSkipsUnnamedPages(t *testing.T) {
	dir := t.TempDir()
	s := sampleSnapshot()
	s.Pages = append(s.Pages, definition.PageDefinition{Elements: []definition.ElementDefinition{{Name: "x", Locator: "#x"}}})
	require.NoError(t, Write(dir, s))

	var buf bytes.Buffer
	loaded, err := Load(dir, slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	assert.Len(t, loaded.Pages, 2)
	assert.Len(t, loaded.PagesByName, 1)
	assert.Contains(t, buf.String(), "page definition without a name")
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleSnapshot()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScenariosFile),
		[]byte(`[{"name": "no id", "flow": [{"type": "jump"}]}]`), 0644))

	_, err := Load(dir, nil)
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ScenariosFile, ve.File)
	assert.GreaterOrEqual(t, len(ve.Problems), 2)
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleSnapshot()))
	require.NoError(t, os.Remove(filepath.Join(dir, RunFile)))

	_, err := Load(dir, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateReportsEveryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, sampleSnapshot()))
	assert.Empty(t, Validate(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, RunFile), []byte(`{"runMode": "serial"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, TestDataFile), []byte(`[{"testcase_id": "tc1", "data": [{"id": "nostep"}]}]`), 0644))
	require.NoError(t, os.Remove(filepath.Join(dir, PagesFile)))

	report := Validate(dir)
	assert.Len(t, report, 3)
	assert.Contains(t, report, RunFile)
	assert.Contains(t, report, TestDataFile)
	assert.Contains(t, report, PagesFile)
}
