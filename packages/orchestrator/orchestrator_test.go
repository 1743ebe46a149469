package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/abdul-hamid-achik/flowspec/packages/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	testcases map[string]definition.TestCaseDefinition
	scenarios map[string]definition.ScenarioDefinition
	pages     map[string]definition.PageDefinition
	data      map[string]definition.TestData
	main      *definition.MainConfig
	err       error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		testcases: map[string]definition.TestCaseDefinition{
			"tc1": {ID: "tc1", Scenarios: []string{"login", "create"}},
			"tc2": {ID: "tc2", Scenarios: []string{"login", "open"}},
		},
		scenarios: map[string]definition.ScenarioDefinition{
			"login": {ID: "login", Flow: []definition.Step{{Type: definition.StepAction, Page: "login", Element: "email", Action: "input"}}},
			"create": {ID: "create", Flow: []definition.Step{
				{Type: definition.StepAction, Page: "jobs", Element: "new", Action: "click"},
				{Type: definition.StepOutput, Action: "saveJobID", Key: "jobId"},
			}},
			"open": {ID: "open", Flow: []definition.Step{{Type: definition.StepAction, Page: "jobs", Element: "JobTitle", Action: "clickPerticularJobTitle"}}},
		},
		pages: map[string]definition.PageDefinition{
			"login": {Name: "login", Elements: []definition.ElementDefinition{{Name: "email", Locator: "#email"}}},
			"jobs":  {Name: "jobs", Elements: []definition.ElementDefinition{{Name: "new", Locator: "#new"}}},
			"other": {Name: "other"},
		},
		data: map[string]definition.TestData{
			"tc1": {TestcaseID: "tc1", Data: []definition.DataItem{{ID: "login_0", Value: "{main.email}"}}},
		},
		main: &definition.MainConfig{URL: "https://app.example.com", Email: "a@example.com", Password: "pw"},
	}
}

func (s *fakeSource) Testcases(_ context.Context, _ string, ids []string) ([]definition.TestCaseDefinition, error) {
	var out []definition.TestCaseDefinition
	for _, id := range ids {
		if tc, ok := s.testcases[id]; ok {
			out = append(out, tc)
		}
	}
	return out, s.err
}

func (s *fakeSource) Scenarios(_ context.Context, _ string, ids []string) ([]definition.ScenarioDefinition, error) {
	var out []definition.ScenarioDefinition
	for _, id := range ids {
		if sc, ok := s.scenarios[id]; ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *fakeSource) Pages(_ context.Context, _ string, names []string) ([]definition.PageDefinition, error) {
	var out []definition.PageDefinition
	for _, name := range names {
		if p, ok := s.pages[name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeSource) TestData(_ context.Context, _ string, ids []string) ([]definition.TestData, error) {
	var out []definition.TestData
	for _, id := range ids {
		if d, ok := s.data[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeSource) MainConfig(context.Context, string) (*definition.MainConfig, error) {
	if s.main == nil {
		return nil, fmt.Errorf("main data: %w", flowerr.ErrNotFound)
	}
	return s.main, nil
}

type fakeWorker struct {
	exit chan int
	ctx  context.Context
}

func (w *fakeWorker) PID() int { return 4242 }

func (w *fakeWorker) Wait() (int, error) {
	select {
	case code := <-w.exit:
		return code, nil
	case <-w.ctx.Done():
		return -1, nil
	}
}

type fakeLauncher struct {
	mu      sync.Mutex
	specs   []WorkerSpec
	workers []*fakeWorker
	err     error
}

func (l *fakeLauncher) Launch(ctx context.Context, spec WorkerSpec) (Worker, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	w := &fakeWorker{exit: make(chan int, 1), ctx: ctx}
	l.specs = append(l.specs, spec)
	l.workers = append(l.workers, w)
	return w, nil
}

func (l *fakeLauncher) last() *fakeWorker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers[len(l.workers)-1]
}

func (l *fakeLauncher) launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.workers)
}

func newTestOrchestrator(t *testing.T, source DefinitionSource, launcher Launcher, opts ...Option) (*Orchestrator, Config) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{RuntimeRoot: filepath.Join(root, "runtime"), ArtifactRoot: filepath.Join(root, "users")}
	o := New(source, launcher, cfg, opts...)
	t.Cleanup(func() { _ = o.Close() })
	return o, cfg
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStartRun_LaunchesAndCompletes(t *testing.T) {
	launcher := &fakeLauncher{}
	var finished []RunRecord
	var mu sync.Mutex
	o, cfg := newTestOrchestrator(t, newFakeSource(), launcher, WithFinishHook(func(r RunRecord) {
		mu.Lock()
		finished = append(finished, r)
		mu.Unlock()
	}))

	rec, err := o.StartRun(context.Background(), Request{
		UserID:      "7",
		TestcaseIDs: []string{"tc1", "tc2", "missing"},
		Browsers:    []string{"chromium"},
		RunMode:     "serial",
		ViewMode:    "headless",
		ReportName:  "nightly",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, 4242, rec.PID)
	assert.Equal(t, config.UserDir(cfg.RuntimeRoot, "7"), rec.RuntimeDir)
	assert.True(t, o.PollStatus("7").Running())

	spec := launcher.specs[0]
	assert.Equal(t, rec.RuntimeDir, spec.Env.RuntimeDir)
	assert.Equal(t, "7", spec.Env.UserID)
	assert.Equal(t, []string{"chromium"}, spec.Browsers)
	assert.Equal(t, filepath.Join(cfg.ArtifactRoot, "user_7", "execution.log"), spec.LogPath)
	for _, dir := range spec.Env.ArtifactDirs() {
		assert.DirExists(t, dir)
	}

	snap, err := snapshot.Load(rec.RuntimeDir, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Testcases, 2)
	assert.Len(t, snap.Scenarios, 3)
	assert.Len(t, snap.Pages, 2, "only referenced pages are included")
	assert.Len(t, snap.TestData, 1)
	assert.Equal(t, "serial", snap.Run.RunMode)
	assert.Equal(t, "a@example.com", snap.Run.Email)
	assert.Equal(t, "7", snap.Run.UserID)
	assert.Equal(t, 2, snap.Run.TestcaseCount)

	launcher.last().exit <- 0
	final, err := o.Wait(waitCtx(t), "7")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Zero(t, final.ExitCode)
	assert.Zero(t, final.PID)
	assert.False(t, final.FinishedAt.IsZero())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, finished, 1)
	assert.Equal(t, rec.RunID, finished[0].RunID)
}

func TestStartRun_RejectsSecondRunWhileRunning(t *testing.T) {
	launcher := &fakeLauncher{}
	o, _ := newTestOrchestrator(t, newFakeSource(), launcher)

	first, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	require.NoError(t, err)

	_, err = o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc2"}})
	assert.True(t, flowerr.Is(err, flowerr.CodeRunInProgress))
	assert.Equal(t, 1, launcher.launched())
	assert.Equal(t, first.RunID, o.PollStatus("7").RunID)

	_, err = o.StartRun(context.Background(), Request{UserID: "8", TestcaseIDs: []string{"tc2"}})
	require.NoError(t, err, "other users are independent")

	launcher.workers[0].exit <- 0
	_, err = o.Wait(waitCtx(t), "7")
	require.NoError(t, err)

	_, err = o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc2"}})
	assert.NoError(t, err, "a finished run frees the user")
}

func TestStartRun_ConcurrentCallsStartOneWorker(t *testing.T) {
	launcher := &fakeLauncher{}
	o, _ := newTestOrchestrator(t, newFakeSource(), launcher)

	var wg sync.WaitGroup
	var mu sync.Mutex
	started, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				started++
			} else if flowerr.Is(err, flowerr.CodeRunInProgress) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, 9, rejected)
	assert.Equal(t, 1, launcher.launched())
}

func TestStartRun_NonZeroExitFails(t *testing.T) {
	launcher := &fakeLauncher{}
	o, _ := newTestOrchestrator(t, newFakeSource(), launcher)

	_, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	require.NoError(t, err)

	launcher.last().exit <- 2
	final, err := o.Wait(waitCtx(t), "7")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, 2, final.ExitCode)
	assert.Contains(t, final.Error, "WORKER_EXIT")
}

func TestStartRun_PreSpawnFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*fakeSource, *fakeLauncher)
		ids      []string
		wantCode flowerr.Code
	}{
		{"no testcases", func(*fakeSource, *fakeLauncher) {}, []string{"nope"}, flowerr.CodeNoTestcases},
		{"empty selection", func(*fakeSource, *fakeLauncher) {}, nil, flowerr.CodeNoTestcases},
		{"missing main configuration", func(s *fakeSource, _ *fakeLauncher) { s.main = nil }, []string{"tc1"}, flowerr.CodeMissingMainConfig},
		{"spawn error", func(_ *fakeSource, l *fakeLauncher) { l.err = errors.New("exec: not found") }, []string{"tc1"}, flowerr.CodeWorkerSpawn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, launcher := newFakeSource(), &fakeLauncher{}
			tt.setup(source, launcher)
			var hooked int
			o, _ := newTestOrchestrator(t, source, launcher, WithFinishHook(func(RunRecord) { hooked++ }))

			rec, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: tt.ids})
			require.Error(t, err)
			assert.True(t, flowerr.Is(err, tt.wantCode), err.Error())
			assert.Equal(t, StatusFailed, rec.Status)
			assert.Equal(t, StatusFailed, o.PollStatus("7").Status)
			assert.Equal(t, 1, hooked)

			final, err := o.Wait(waitCtx(t), "7")
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, final.Status)
		})
	}
}

func TestStartRun_SourceError(t *testing.T) {
	source := newFakeSource()
	source.err = errors.New("connection refused")
	o, _ := newTestOrchestrator(t, source, &fakeLauncher{})

	_, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, StatusFailed, o.PollStatus("7").Status)
}

func TestStartRun_RequiresUser(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeSource(), &fakeLauncher{})
	_, err := o.StartRun(context.Background(), Request{TestcaseIDs: []string{"tc1"}})
	assert.Error(t, err)
}

func TestStartRun_ReplacesPreviousSnapshot(t *testing.T) {
	launcher := &fakeLauncher{}
	o, _ := newTestOrchestrator(t, newFakeSource(), launcher)

	rec, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	require.NoError(t, err)
	stale := filepath.Join(rec.RuntimeDir, "stale.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0644))
	launcher.last().exit <- 0
	_, err = o.Wait(waitCtx(t), "7")
	require.NoError(t, err)

	_, err = o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc2"}})
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestPollStatus_UnknownUserIsIdle(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeSource(), &fakeLauncher{})

	rec := o.PollStatus("nobody")
	assert.Equal(t, StatusIdle, rec.Status)
	assert.Equal(t, "nobody", rec.UserID)

	final, err := o.Wait(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, final.Status)
}

func TestPollStatus_ReturnsCopy(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeSource(), &fakeLauncher{})
	_, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	require.NoError(t, err)

	rec := o.PollStatus("7")
	rec.Status = StatusCompleted
	assert.Equal(t, StatusRunning, o.PollStatus("7").Status)
}

func TestWait_ContextCancelled(t *testing.T) {
	o, _ := newTestOrchestrator(t, newFakeSource(), &fakeLauncher{})
	_, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := o.Wait(ctx, "7")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusRunning, rec.Status)
}

func TestClose_KillsRunningWorkers(t *testing.T) {
	root := t.TempDir()
	o := New(newFakeSource(), &fakeLauncher{}, Config{RuntimeRoot: filepath.Join(root, "rt"), ArtifactRoot: filepath.Join(root, "art")})

	_, err := o.StartRun(context.Background(), Request{UserID: "7", TestcaseIDs: []string{"tc1"}})
	require.NoError(t, err)

	require.NoError(t, o.Close())
	rec := o.PollStatus("7")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, -1, rec.ExitCode)
}

func TestClosureHelpers(t *testing.T) {
	source := newFakeSource()
	tcs := []definition.TestCaseDefinition{source.testcases["tc1"], source.testcases["tc2"]}
	assert.Equal(t, []string{"login", "create", "open"}, scenarioIDs(tcs))

	scs := []definition.ScenarioDefinition{source.scenarios["login"], source.scenarios["create"], source.scenarios["open"]}
	assert.Equal(t, []string{"login", "jobs"}, pageNames(scs))
}
