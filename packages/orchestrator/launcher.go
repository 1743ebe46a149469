package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
)

// DefaultWaitDelay is how long a killed worker gets to release its output
// pipes.
const DefaultWaitDelay = 5 * time.Second

// WorkerSpec describes one worker process.
type WorkerSpec struct {
	Env      config.WorkerEnv
	Browsers []string
	// LogPath receives the worker's stdout and stderr, appended.
	LogPath string
}

// Worker is a started worker process.
type Worker interface {
	PID() int
	// Wait blocks until the worker exits and returns its exit code. A worker
	// killed by a signal reports -1.
	Wait() (int, error)
}

// Launcher starts workers. Cancelling ctx must kill the worker.
type Launcher interface {
	Launch(ctx context.Context, spec WorkerSpec) (Worker, error)
}

// ProcessLauncher runs the worker as a child process.
type ProcessLauncher struct {
	// Command and Args name the worker binary, typically this executable
	// followed by "worker".
	Command string
	Args    []string
	// Environ is the base environment; nil means os.Environ().
	Environ   []string
	WaitDelay time.Duration
}

// Launch starts the worker with the WorkerSpec environment contract and one
// --browser flag per browser.
func (l *ProcessLauncher) Launch(ctx context.Context, spec WorkerSpec) (Worker, error) {
	if l.Command == "" {
		return nil, errors.New("worker command is not configured")
	}

	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening execution log: %w", err)
	}

	args := append([]string{}, l.Args...)
	for _, b := range spec.Browsers {
		args = append(args, "--browser", b)
	}

	cmd := exec.CommandContext(ctx, l.Command, args...)
	base := l.Environ
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(append([]string{}, base...), spec.Env.Environ()...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Kill the worker on context cancellation and allow time for pipe drain.
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, err
	}
	return &processWorker{cmd: cmd, log: logFile}, nil
}

type processWorker struct {
	cmd  *exec.Cmd
	log  *os.File
	once sync.Once
	code int
	err  error
}

func (w *processWorker) PID() int {
	return w.cmd.Process.Pid
}

func (w *processWorker) Wait() (int, error) {
	w.once.Do(func() {
		err := w.cmd.Wait()
		_ = w.log.Close()

		w.code = -1
		if w.cmd.ProcessState != nil {
			w.code = w.cmd.ProcessState.ExitCode()
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			w.err = err
		}
	})
	return w.code, w.err
}
