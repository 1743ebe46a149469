// Package orchestrator starts and tracks one worker process per user. It
// builds the runtime snapshot of the selected testcases, launches the worker
// without waiting for it and records the outcome when the worker exits.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/abdul-hamid-achik/flowspec/packages/logging"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a user's run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Request selects what a run executes.
type Request struct {
	UserID      string
	TestcaseIDs []string
	Browsers    []string
	RunMode     string
	ViewMode    string
	ReportName  string

	// Selection describes how TestcaseIDs were picked, for run history.
	SelectionMode string
	Tag           string
	Group         string
}

// RunRecord is the state of a user's latest run. Callers always receive
// copies.
type RunRecord struct {
	RunID      string
	UserID     string
	Status     Status
	Request    Request
	StartedAt  time.Time
	FinishedAt time.Time
	RuntimeDir string
	ExitCode   int
	Error      string
	PID        int
}

// Running reports whether the run is still in progress.
func (r RunRecord) Running() bool {
	return r.Status == StatusRunning
}

// FinishHook observes every finalized run.
type FinishHook func(RunRecord)

type Config struct {
	RuntimeRoot  string
	ArtifactRoot string
}

type Orchestrator struct {
	source   DefinitionSource
	launcher Launcher
	config   Config
	logger   *slog.Logger
	hooks    []FinishHook

	mu      sync.Mutex
	runs    map[string]*RunRecord
	workers map[string]Worker
	done    map[string]chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithFinishHook registers a hook called after every finalization.
func WithFinishHook(hook FinishHook) Option {
	return func(o *Orchestrator) {
		o.hooks = append(o.hooks, hook)
	}
}

func New(source DefinitionSource, launcher Launcher, cfg Config, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		source:   source,
		launcher: launcher,
		config:   cfg,
		logger:   logging.Discard(),
		runs:     make(map[string]*RunRecord),
		workers:  make(map[string]Worker),
		done:     make(map[string]chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartRun prepares the user's runtime snapshot and launches a worker. It
// returns as soon as the worker has started. A second run for a user whose
// run is still in progress is rejected.
func (o *Orchestrator) StartRun(ctx context.Context, req Request) (RunRecord, error) {
	if req.UserID == "" {
		return RunRecord{}, errors.New("user id is required")
	}

	rec, err := o.beginRun(req)
	if err != nil {
		return RunRecord{}, err
	}
	ctx = logging.WithRunID(logging.WithUserID(ctx, req.UserID), rec.RunID)
	o.logger.InfoContext(ctx, "run started", "testcases", len(req.TestcaseIDs))

	worker, err := o.prepareAndLaunch(ctx, req, rec.RuntimeDir)
	if err != nil {
		o.logger.ErrorContext(ctx, "run failed before the worker started", "error", err)
		o.finalizeRun(req.UserID, rec.RunID, -1, err)
		return o.PollStatus(req.UserID), err
	}

	o.mu.Lock()
	started := *rec
	if cur := o.runs[req.UserID]; cur != nil && cur.RunID == rec.RunID {
		cur.PID = worker.PID()
		o.workers[req.UserID] = worker
		started = *cur
	}
	o.mu.Unlock()

	o.wg.Add(1)
	go o.monitor(context.WithoutCancel(ctx), req.UserID, rec.RunID, worker)

	return started, nil
}

func (o *Orchestrator) prepareAndLaunch(ctx context.Context, req Request, runtimeDir string) (Worker, error) {
	snap, err := o.buildSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := writeSnapshot(runtimeDir, snap); err != nil {
		return nil, err
	}

	env := config.NewWorkerEnv(o.config.RuntimeRoot, o.config.ArtifactRoot, req.UserID, req.ViewMode)
	for _, dir := range env.ArtifactDirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating artifact directory: %w", err)
		}
	}

	worker, err := o.launcher.Launch(o.baseCtx, WorkerSpec{
		Env:      env,
		Browsers: req.Browsers,
		LogPath:  executionLog(o.config.ArtifactRoot, req.UserID),
	})
	if err != nil {
		return nil, flowerr.New(flowerr.CodeWorkerSpawn, "failed to start worker").WithCause(err)
	}
	return worker, nil
}

func (o *Orchestrator) monitor(ctx context.Context, userID, runID string, worker Worker) {
	defer o.wg.Done()

	code, err := worker.Wait()
	if err == nil && code != 0 {
		err = flowerr.Newf(flowerr.CodeWorkerExit, "worker exited with code %d", code)
	} else if err != nil {
		err = flowerr.New(flowerr.CodeWorkerExit, "worker did not exit cleanly").WithCause(err)
	}

	if err != nil {
		o.logger.ErrorContext(ctx, "run failed", "exit_code", code, "error", err)
	} else {
		o.logger.InfoContext(ctx, "run completed")
	}
	o.finalizeRun(userID, runID, code, err)
}

// beginRun marks the user's run as running before any I/O happens.
func (o *Orchestrator) beginRun(req Request) (*RunRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cur, ok := o.runs[req.UserID]; ok && cur.Running() {
		return nil, flowerr.Newf(flowerr.CodeRunInProgress, "a run is already in progress for user %s", req.UserID).
			WithDetails(map[string]any{"run_id": cur.RunID})
	}

	rec := &RunRecord{
		RunID:      uuid.New().String(),
		UserID:     req.UserID,
		Status:     StatusRunning,
		Request:    req,
		StartedAt:  time.Now(),
		RuntimeDir: config.UserDir(o.config.RuntimeRoot, req.UserID),
	}
	o.runs[req.UserID] = rec
	o.done[req.UserID] = make(chan struct{})

	copied := *rec
	return &copied, nil
}

// finalizeRun records the outcome of runID. Outcomes of superseded runs are
// ignored.
func (o *Orchestrator) finalizeRun(userID, runID string, exitCode int, runErr error) {
	o.mu.Lock()
	rec, ok := o.runs[userID]
	if !ok || rec.RunID != runID || !rec.Running() {
		o.mu.Unlock()
		return
	}

	rec.FinishedAt = time.Now()
	rec.ExitCode = exitCode
	rec.PID = 0
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Error = runErr.Error()
	} else {
		rec.Status = StatusCompleted
	}
	delete(o.workers, userID)
	if ch, ok := o.done[userID]; ok {
		close(ch)
		delete(o.done, userID)
	}
	finished := *rec
	o.mu.Unlock()

	for _, hook := range o.hooks {
		hook(finished)
	}
}

// PollStatus returns a copy of the user's latest run. A user without runs is
// idle.
func (o *Orchestrator) PollStatus(userID string) RunRecord {
	o.mu.Lock()
	defer o.mu.Unlock()

	if rec, ok := o.runs[userID]; ok {
		return *rec
	}
	return RunRecord{UserID: userID, Status: StatusIdle}
}

// Wait blocks until the user's current run is finalized and returns it.
func (o *Orchestrator) Wait(ctx context.Context, userID string) (RunRecord, error) {
	o.mu.Lock()
	ch := o.done[userID]
	o.mu.Unlock()

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			return o.PollStatus(userID), ctx.Err()
		}
	}
	return o.PollStatus(userID), nil
}

// Close kills every live worker and waits for their runs to be finalized.
func (o *Orchestrator) Close() error {
	o.cancel()
	o.wg.Wait()
	return nil
}
