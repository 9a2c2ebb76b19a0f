// ABOUTME: Supervisor that spawns a replacement process or replaces the image
// ABOUTME: Spawning is tried first; exec is the fallback when spawning fails

package restart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Supervisor carries out a restart plan. On success the caller should exit.
type Supervisor interface {
	Restart(ctx context.Context, plan Plan) error
}

// ExecSupervisor starts plan as a child attached to this terminal. If the
// child cannot be started it replaces the current process image instead.
type ExecSupervisor struct {
	Logger *slog.Logger

	// Start and Exec default to starting an exec.Cmd and to execImage.
	Start func(cmd *exec.Cmd) error
	Exec  func(path string, argv, env []string) error
}

// Restart spawns or execs plan. A successful exec never returns.
func (s *ExecSupervisor) Restart(ctx context.Context, plan Plan) error {
	if plan.Path == "" {
		return errors.New("restart plan has no executable")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(plan.Path, plan.Args...)
	cmd.Env = plan.Env
	cmd.Dir = plan.Dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	start := s.Start
	if start == nil {
		start = func(cmd *exec.Cmd) error { return cmd.Start() }
	}

	spawnErr := start(cmd)
	if spawnErr == nil {
		if cmd.Process != nil {
			logger.Info("restarted as child process", "pid", cmd.Process.Pid, "path", plan.Path)
			_ = cmd.Process.Release()
		}
		return nil
	}
	logger.Warn("spawning replacement failed, replacing process image", "path", plan.Path, "error", spawnErr)

	if err := ctx.Err(); err != nil {
		return err
	}

	execFn := s.Exec
	if execFn == nil {
		execFn = execImage
	}
	if err := execFn(plan.Path, plan.Argv(), plan.Env); err != nil {
		return fmt.Errorf("restarting %s: %w", plan.Path, errors.Join(spawnErr, err))
	}
	return nil
}
