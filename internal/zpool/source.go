// Package zpool reads pool health and capacity metrics from the zpool
// command-line tool and parses them into typed records.
//
// The data source is modeled as the [StatusSource] capability interface
// so the poll loop and tests never depend on a real zpool binary.
// [CommandSource] is the production implementation: it invokes
// `zpool list -Hp` as a subprocess with a hard deadline and returns the
// raw tab-separated output for [Parse].
package zpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// listArgs requests one tab-separated row per pool with exact
// (non-humanized) numeric values. -H drops the header, -p prints
// parseable numbers.
var listArgs = []string{"list", "-Hp"}

// StatusSource provides raw pool status text. Implementations must be
// safe to call repeatedly; each call reflects current pool state.
type StatusSource interface {
	// Fetch returns the raw output of one pool status read.
	Fetch(ctx context.Context) (string, error)
}

// ExecError reports a failed or timed-out zpool invocation.
type ExecError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExecError) Error() string {
	if e.TimedOut {
		return "zpool command timed out"
	}
	if e.Stderr != "" {
		return fmt.Sprintf("zpool command failed: rc=%d stderr=%q", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("zpool command failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// CommandSource runs the zpool binary as a subprocess.
type CommandSource struct {
	// Command is the path to the zpool binary.
	Command string
	// Timeout bounds one invocation. A run that exceeds it is killed
	// so a hung kernel call can never back up the poll loop.
	Timeout time.Duration
}

// NewCommandSource creates a CommandSource for the given binary path.
func NewCommandSource(command string, timeout time.Duration) *CommandSource {
	return &CommandSource{Command: command, Timeout: timeout}
}

// CheckBinary verifies the zpool binary exists. Called once at startup;
// a missing binary is an unrecoverable configuration problem, unlike a
// transient command failure mid-run.
func (s *CommandSource) CheckBinary() error {
	if _, err := os.Stat(s.Command); err != nil {
		return fmt.Errorf("zpool binary not found at %s: %w", s.Command, err)
	}
	return nil
}

// Fetch runs `zpool list -Hp` and returns its stdout. Nonzero exit or
// deadline expiry yields an *ExecError.
func (s *CommandSource) Fetch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command, listArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		execErr := &ExecError{
			ExitCode: -1,
			Stderr:   strings.TrimSpace(stderr.String()),
			TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}
		return "", execErr
	}

	return stdout.String(), nil
}
