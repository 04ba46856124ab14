package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

const (
	// maxStderrBytes caps the amount of stderr kept from a command.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second
)

// exec runs an external command on every rank of the job.
func (r *Registry) exec(ctx context.Context, env Env, args []string) int {
	logger := env.Logger()
	if len(args) == 0 {
		logger.Error("usage: exec COMMAND [ARG...]")
		return StatusUsage
	}
	status, stderr, err := runCommand(ctx, args, r.out, r.timeout, logger)
	if err != nil {
		logger.Warn("command failed", "command", args[0], "status", status, "error", err, "stderr", stderr)
	}
	return status
}

// runCommand runs argv and returns its exit status and captured stderr. A
// timeout or cancelled ctx sends SIGTERM, then SIGKILL after the grace
// period.
func runCommand(ctx context.Context, argv []string, stdout io.Writer, timeout time.Duration, logger *slog.Logger) (int, string, error) {
	// Not CommandContext: termination is escalated by hand.
	cmd := exec.Command(argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return StatusNotFound, "", fmt.Errorf("start process: %w", err)
		}
		return StatusCannotExec, "", fmt.Errorf("start process: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case err := <-waitErr:
		stderrStr := truncateStderr(stderr.String())
		if err == nil {
			return 0, stderrStr, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				code = 1
			}
			return code, stderrStr, err
		}
		return 1, stderrStr, fmt.Errorf("wait for process: %w", err)

	case <-deadline:
		logger.Warn("command timed out, sending SIGTERM", "command", argv[0], "timeout", timeout)
	case <-ctx.Done():
		logger.Warn("run cancelled, sending SIGTERM", "command", argv[0])
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Error("failed to send SIGTERM", "error", err)
	}
	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()
	select {
	case <-waitErr:
		logger.Info("command exited after SIGTERM")
	case <-grace.C:
		logger.Warn("command did not exit after SIGTERM, sending SIGKILL")
		if err := cmd.Process.Kill(); err != nil {
			logger.Error("failed to send SIGKILL", "error", err)
		}
		<-waitErr
	}
	return StatusTimedOut, truncateStderr(stderr.String()), context.DeadlineExceeded
}

// truncateStderr truncates stderr to maxStderrBytes.
func truncateStderr(s string) string {
	if len(s) > maxStderrBytes {
		return s[:maxStderrBytes]
	}
	return s
}
