package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// GuardCommandName is the hidden subcommand that runs the guard loop.
const GuardCommandName = "guard"

// guardStopGrace is how long the guard gets to exit after an interrupt.
const guardStopGrace = 10 * time.Second

// Launcher runs the guard as a child process and reports its exit code.
type Launcher struct {
	store  domain.ArtifactStore
	dir    string
	logger *zap.Logger

	// self is swapped in tests.
	self   func() (string, error)
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewLauncher creates a launcher for the guard artifact in dir.
func NewLauncher(store domain.ArtifactStore, dir string, logger *zap.Logger) *Launcher {
	return &Launcher{
		store:  store,
		dir:    dir,
		logger: logger,
		self:   os.Executable,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// Run starts `<guard> guard --dir DIR [args...]` in the data directory and
// waits for it. The returned code is the child's exit code. When the guard
// artifact is missing or cannot be started, the agent's own executable is
// used instead.
func (l *Launcher) Run(ctx context.Context, args []string) (int, error) {
	guardArgs := append([]string{GuardCommandName, "--dir", l.dir}, args...)

	if l.store.Exists(domain.KindGuard) {
		path := l.store.Path(domain.KindGuard)
		code, started, err := l.run(ctx, path, guardArgs)
		if started {
			return code, err
		}
		l.logger.Warn("guard artifact could not be started, falling back to self",
			zap.String("status", "fail"),
			zap.String("path", path),
			zap.Error(err))
	} else {
		l.logger.Info("guard artifact missing, running built-in guard",
			zap.String("status", "ok"))
	}

	self, err := l.self()
	if err != nil {
		return 1, fmt.Errorf("failed to get executable path: %w", err)
	}
	code, _, err := l.run(ctx, self, guardArgs)
	return code, err
}

// run reports whether the process started at all, so the caller can tell a
// bad artifact from a guard that exited non-zero.
func (l *Launcher) run(ctx context.Context, path string, args []string) (code int, started bool, err error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = l.dir
	cmd.Stdin = l.stdin
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	// Let the guard finish its tick on shutdown instead of killing it outright
	cmd.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = guardStopGrace

	l.logger.Info("starting guard",
		zap.String("status", "ok"),
		zap.String("path", path),
		zap.Strings("args", args))

	runErr := cmd.Run()
	if cmd.ProcessState == nil {
		return 1, false, fmt.Errorf("start guard %s: %w", path, runErr)
	}

	code = cmd.ProcessState.ExitCode()
	if code < 0 {
		// Killed by a signal
		code = 1
	}
	status := "ok"
	if code != 0 {
		status = "fail"
	}
	l.logger.Info("guard exited",
		zap.String("status", status),
		zap.Int("exit_code", code))
	return code, true, nil
}
