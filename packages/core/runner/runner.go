package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/definition"
	"github.com/abdul-hamid-achik/flowspec/packages/core/interpreter"
	"github.com/abdul-hamid-achik/flowspec/packages/core/resolver"
	"github.com/abdul-hamid-achik/flowspec/packages/datastore"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/abdul-hamid-achik/flowspec/packages/logging"
	"github.com/abdul-hamid-achik/flowspec/packages/snapshot"
)

const (
	// DefaultConcurrency is the default number of concurrent testcases in parallel mode
	DefaultConcurrency = 3
	// DefaultTestcaseTimeout bounds one testcase, all of its scenarios included
	DefaultTestcaseTimeout = 240 * time.Second
	// MainScenarioID is the scenario id under which run credentials are seeded
	MainScenarioID = "main"
)

type RunMode string

const (
	RunModeDefault  RunMode = "default"
	RunModeSerial   RunMode = "serial"
	RunModeParallel RunMode = "parallel"
)

// ParseRunMode maps a run.json runMode. Unknown modes run sequentially.
func ParseRunMode(s string) RunMode {
	switch RunMode(s) {
	case RunModeSerial, RunModeParallel:
		return RunMode(s)
	}
	return RunModeDefault
}

// Session is one browser page. Parallel testcases each get their own.
type Session interface {
	interpreter.PageDriver
	Close() error
}

// SessionFactory opens a new session.
type SessionFactory func(ctx context.Context) (Session, error)

type Config struct {
	Concurrency int
	// TestcaseTimeout defaults to DefaultTestcaseTimeout; negative disables it.
	TestcaseTimeout time.Duration
	// Bail stops after the first failed testcase in any sequential mode.
	Bail        bool
	NameFilter  string
	TagsFilter  []string
	Interpreter *interpreter.Config
}

type Runner struct {
	config   *Config
	store    *datastore.Store
	sessions SessionFactory
	logger   *slog.Logger
	opts     []interpreter.Option
}

// Option is a functional option for configuring a Runner.
type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithInterpreterOptions passes options to every interpreter the runner builds.
func WithInterpreterOptions(opts ...interpreter.Option) Option {
	return func(r *Runner) {
		r.opts = append(r.opts, opts...)
	}
}

func NewRunner(cfg *Config, store *datastore.Store, sessions SessionFactory, opts ...Option) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Interpreter == nil {
		cfg.Interpreter = interpreter.DefaultConfig()
	}
	if cfg.TestcaseTimeout == 0 {
		cfg.TestcaseTimeout = DefaultTestcaseTimeout
	}
	r := &Runner{
		config:   cfg,
		store:    store,
		sessions: sessions,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type RunResult struct {
	UserID     string
	ReportName string
	RunMode    RunMode
	Browser    string
	Testcases  []*TestcaseResult
	StartedAt  time.Time
	Duration   time.Duration
	Passed     int
	Failed     int
	Skipped    int
	Timing     *TimingSummary
}

// Success reports whether no testcase failed.
func (r *RunResult) Success() bool {
	return r.Failed == 0
}

type TestcaseResult struct {
	TestcaseID string
	Name       string
	Tags       []string
	Scenarios  []*interpreter.ScenarioResult
	// ResolvedData holds the literal data each scenario ran with, by scenario id.
	ResolvedData map[string]map[string]any
	// Outputs holds the values stored by output steps, by scenario id. The
	// seeded "main" credentials are left out and the site password is
	// redacted everywhere in the result.
	Outputs    map[string]map[string]any
	Passed     bool
	Skipped    bool
	SkipReason string
	Duration   time.Duration
	Error      error
}

// Run executes every testcase of the snapshot. The user's data store is reset
// first. The returned error is non-nil only when the run could not start.
func (r *Runner) Run(ctx context.Context, snap *snapshot.Snapshot) (*RunResult, error) {
	userID := snap.Run.UserID
	if err := r.store.Reset(userID); err != nil {
		return nil, fmt.Errorf("resetting data store: %w", err)
	}
	if snap.ScenariosByID == nil {
		snap.Index(r.logger)
	}

	ctx = logging.WithUserID(ctx, userID)
	mode := ParseRunMode(snap.Run.RunMode)

	result := &RunResult{
		UserID:     userID,
		ReportName: snap.Run.ReportName,
		RunMode:    mode,
		StartedAt:  time.Now(),
	}
	metrics := NewStepMetrics()

	var selected []*definition.TestCaseDefinition
	results := make([]*TestcaseResult, len(snap.Testcases))
	slots := make([]int, 0, len(snap.Testcases))
	for i := range snap.Testcases {
		tc := &snap.Testcases[i]
		if !r.shouldRun(tc) {
			results[i] = skipped(tc, "filtered out")
			continue
		}
		selected = append(selected, tc)
		slots = append(slots, i)
	}

	r.logger.InfoContext(ctx, "run started", "mode", string(mode), "testcases", len(selected))

	var ran []*TestcaseResult
	if mode == RunModeParallel {
		ran = r.runParallel(ctx, snap, selected, metrics)
	} else {
		bail := r.config.Bail || mode == RunModeSerial
		ran = r.runSequential(ctx, snap, selected, metrics, bail)
	}
	for i, slot := range slots {
		results[slot] = ran[i]
	}

	for _, tr := range results {
		result.Testcases = append(result.Testcases, tr)
		switch {
		case tr.Skipped:
			result.Skipped++
		case tr.Passed:
			result.Passed++
		default:
			result.Failed++
		}
	}

	result.Duration = time.Since(result.StartedAt)
	result.Timing = metrics.Summary()
	r.logger.InfoContext(ctx, "run finished",
		"passed", result.Passed, "failed", result.Failed, "skipped", result.Skipped,
		"duration", result.Duration)
	return result, nil
}

// runSequential shares one session across testcases, in order.
func (r *Runner) runSequential(ctx context.Context, snap *snapshot.Snapshot, testcases []*definition.TestCaseDefinition, metrics *StepMetrics, bail bool) []*TestcaseResult {
	results := make([]*TestcaseResult, len(testcases))
	if len(testcases) == 0 {
		return results
	}

	session, err := r.openSession(ctx, snap)
	if err != nil {
		for i, tc := range testcases {
			results[i] = failed(tc, err)
		}
		return results
	}
	defer r.closeSession(ctx, session)

	failedOnce := false
	for i, tc := range testcases {
		if failedOnce && bail {
			results[i] = skipped(tc, "previous testcase failed")
			continue
		}
		results[i] = r.runTestcase(ctx, snap, session, tc, metrics)
		if !results[i].Passed {
			failedOnce = true
		}
	}
	return results
}

// runParallel gives every testcase its own session, bounded by Concurrency.
func (r *Runner) runParallel(ctx context.Context, snap *snapshot.Snapshot, testcases []*definition.TestCaseDefinition, metrics *StepMetrics) []*TestcaseResult {
	concurrency := r.config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]*TestcaseResult, len(testcases))
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)

	for i, tc := range testcases {
		wg.Add(1)
		sem <- struct{}{} // acquire semaphore

		go func(idx int, tc *definition.TestCaseDefinition) {
			defer wg.Done()
			defer func() { <-sem }() // release semaphore

			session, err := r.openSession(ctx, snap)
			if err != nil {
				results[idx] = failed(tc, err)
				return
			}
			defer r.closeSession(ctx, session)

			results[idx] = r.runTestcase(ctx, snap, session, tc, metrics)
		}(i, tc)
	}

	wg.Wait()
	return results
}

func (r *Runner) openSession(ctx context.Context, snap *snapshot.Snapshot) (Session, error) {
	session, err := r.sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening browser session: %w", err)
	}
	if snap.Run.URL != "" {
		if err := session.Navigate(ctx, snap.Run.URL); err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("navigating to %s: %w", snap.Run.URL, err)
		}
	}
	return session, nil
}

func (r *Runner) closeSession(ctx context.Context, session Session) {
	if err := session.Close(); err != nil {
		r.logger.WarnContext(ctx, "closing browser session", "error", err)
	}
}

// runTestcase runs the scenarios of one testcase in order. The first failure
// ends the testcase.
func (r *Runner) runTestcase(ctx context.Context, snap *snapshot.Snapshot, driver interpreter.PageDriver, tc *definition.TestCaseDefinition, metrics *StepMetrics) *TestcaseResult {
	start := time.Now()
	userID := snap.Run.UserID
	result := &TestcaseResult{
		TestcaseID:   tc.ID,
		Name:         tc.Name,
		Tags:         tc.Tags,
		ResolvedData: make(map[string]map[string]any),
		Passed:       true,
	}

	ctx = logging.WithTestcaseID(ctx, tc.ID)
	if r.config.TestcaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.TestcaseTimeout)
		defer cancel()
	}

	r.logger.InfoContext(ctx, "testcase started", "name", tc.Name)

	if err := r.seedMain(userID, tc.ID, &snap.Run); err != nil {
		result.Passed = false
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	row := snap.DataFor(tc.ID)
	interp := interpreter.New(driver, snap.PagesByName, r.store, r.config.Interpreter,
		append([]interpreter.Option{interpreter.WithLogger(r.logger)}, r.opts...)...)
	res := resolver.NewResolver(r.store, userID, tc.ID)
	scope := interpreter.Scope{UserID: userID, TestcaseID: tc.ID}
	redact := redactor{secret: snap.Run.Password}

	for _, scenarioID := range tc.Scenarios {
		scenario, ok := snap.ScenariosByID[scenarioID]
		if !ok {
			result.Passed = false
			result.Error = flowerr.ScenarioNotFound(scenarioID)
			break
		}

		// Placeholders resolve right before the scenario, after earlier
		// scenarios stored their outputs.
		data, err := res.Resolve(ProjectScenarioData(scenario, row))
		if err != nil {
			result.Passed = false
			result.Error = fmt.Errorf("resolving data of scenario %s: %w", scenarioID, err)
			break
		}
		result.ResolvedData[scenarioID] = redact.mapping(data)

		sr, err := interp.RunScenario(ctx, scope, scenario, data)
		redact.scenario(sr)
		result.Scenarios = append(result.Scenarios, sr)
		for _, step := range sr.Steps {
			if step.Status != interpreter.StepSkipped {
				metrics.Record(step.Action, step.Duration, step.Status == interpreter.StepFailed)
			}
		}
		if err != nil {
			result.Passed = false
			result.Error = err
			break
		}
	}

	result.Outputs = redact.outputs(r.store.GetTestcase(userID, tc.ID))
	result.Duration = time.Since(start)
	if result.Passed {
		r.logger.InfoContext(ctx, "testcase passed", "duration", result.Duration)
	} else {
		r.logger.ErrorContext(ctx, "testcase failed", "error", result.Error, "duration", result.Duration)
	}
	return result
}

// seedMain stores the run credentials under scenario "main" so flows can
// reference {main.url}, {main.email} and {main.password}.
func (r *Runner) seedMain(userID, testcaseID string, run *definition.RunMetadata) error {
	seed := map[string]string{
		"url":      run.URL,
		"email":    run.Email,
		"password": run.Password,
	}
	for key, value := range seed {
		if err := r.store.Set(userID, testcaseID, MainScenarioID, key, value); err != nil {
			return fmt.Errorf("seeding %s.%s: %w", MainScenarioID, key, err)
		}
	}
	return nil
}

// ProjectScenarioData picks the data-required fields of scenario out of the
// testcase row. Fields of other scenarios and of steps that take no data are
// left out.
func ProjectScenarioData(scenario *definition.ScenarioDefinition, row map[string]any) map[string]any {
	projected := make(map[string]any)
	for _, id := range scenario.DataStepIDs() {
		if v, ok := row[id]; ok {
			projected[id] = v
		}
	}
	return projected
}

func (r *Runner) shouldRun(tc *definition.TestCaseDefinition) bool {
	if r.config.NameFilter != "" {
		if !matchesPattern(tc.Name, r.config.NameFilter) && !matchesPattern(tc.ID, r.config.NameFilter) {
			return false
		}
	}

	if len(r.config.TagsFilter) > 0 {
		if !hasAnyTag(tc.Tags, r.config.TagsFilter) {
			return false
		}
	}

	return true
}

func skipped(tc *definition.TestCaseDefinition, reason string) *TestcaseResult {
	return &TestcaseResult{
		TestcaseID: tc.ID,
		Name:       tc.Name,
		Tags:       tc.Tags,
		Skipped:    true,
		SkipReason: reason,
	}
}

func failed(tc *definition.TestCaseDefinition, err error) *TestcaseResult {
	return &TestcaseResult{
		TestcaseID: tc.ID,
		Name:       tc.Name,
		Tags:       tc.Tags,
		Error:      err,
	}
}

func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}

	if pattern[0] == '*' && pattern[len(pattern)-1] == '*' && len(pattern) > 1 {
		substr := pattern[1 : len(pattern)-1]
		for i := 0; i <= len(name)-len(substr); i++ {
			if name[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	}

	if pattern[0] == '*' {
		suffix := pattern[1:]
		return len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix
	}

	if pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}

	return name == pattern
}

func hasAnyTag(tags []string, filters []string) bool {
	for _, filter := range filters {
		for _, tag := range tags {
			if tag == filter {
				return true
			}
		}
	}
	return false
}
