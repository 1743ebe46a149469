package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellLauncher(t *testing.T, script string) *ProcessLauncher {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	return &ProcessLauncher{
		Command:   "/bin/sh",
		Args:      []string{"-c", script, "worker"},
		Environ:   []string{"PATH=" + os.Getenv("PATH")},
		WaitDelay: time.Second,
	}
}

func TestProcessLauncher_PassesEnvAndAppendsLog(t *testing.T) {
	l := shellLauncher(t, `echo "runtime=$RUNTIME_DIR user=$USER_ID view=$FLOWSPEC_VIEW_MODE"; echo "args=$*"; exit 3`)

	root := t.TempDir()
	logPath := filepath.Join(root, "users", "user_9", "execution.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(logPath), 0755))
	require.NoError(t, os.WriteFile(logPath, []byte("previous run\n"), 0644))

	spec := WorkerSpec{
		Env:      config.NewWorkerEnv(filepath.Join(root, "runtime"), filepath.Join(root, "users"), "9", "headed"),
		Browsers: []string{"chromium", "msedge"},
		LogPath:  logPath,
	}
	w, err := l.Launch(context.Background(), spec)
	require.NoError(t, err)
	assert.Positive(t, w.PID())

	code, err := w.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	again, err := w.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, again)

	log, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "previous run\n")
	assert.Contains(t, string(log), "runtime="+spec.Env.RuntimeDir+" user=9 view=headed")
	assert.Contains(t, string(log), "args=--browser chromium --browser msedge")
}

func TestProcessLauncher_CancelKillsWorker(t *testing.T) {
	l := shellLauncher(t, `exec sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	w, err := l.Launch(ctx, WorkerSpec{
		Env:     config.NewWorkerEnv(t.TempDir(), t.TempDir(), "1", ""),
		LogPath: filepath.Join(t.TempDir(), "execution.log"),
	})
	require.NoError(t, err)

	start := time.Now()
	cancel()
	code, _ := w.Wait()
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcessLauncher_RequiresCommand(t *testing.T) {
	_, err := (&ProcessLauncher{}).Launch(context.Background(), WorkerSpec{})
	assert.Error(t, err)
}

func TestProcessLauncher_MissingBinary(t *testing.T) {
	l := &ProcessLauncher{Command: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := l.Launch(context.Background(), WorkerSpec{LogPath: filepath.Join(t.TempDir(), "execution.log")})
	assert.Error(t, err)
}
