// Package proc runs shell commands for the agent surface in the
// background. Results come back over the event queue like every other
// worker outcome; the consumer loop decides what to do with them.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/batalabs/chatd/internal/bus"
)

// DefaultTimeout bounds a command that never specifies its own deadline.
const DefaultTimeout = 60 * time.Second

// maxCaptured caps each captured stream at 50 KiB.
const maxCaptured = 50 * 1024

// Runner executes shell commands rooted at a working directory.
type Runner struct {
	queue *bus.Queue

	// Dir is the working directory for commands. Empty means the
	// process's own working directory.
	Dir string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// NewRunner creates a runner publishing results to queue.
func NewRunner(queue *bus.Queue, dir string) *Runner {
	return &Runner{queue: queue, Dir: dir}
}

// Start launches command in the background and publishes an
// EventProcessResult when it finishes. Cancelling ctx kills the command;
// the result is still published with whatever output was captured.
func (r *Runner) Start(ctx context.Context, command string) {
	go func() {
		r.queue.Publish(r.run(ctx, command))
	}()
}

func (r *Runner) run(ctx context.Context, command string) bus.Event {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.Dir
	// Background children inherit the output pipes; without a wait bound
	// they would hold Run open past the timeout, or forever for a daemon.
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrWaitDelay):
			// The command itself exited; only orphaned children kept the
			// pipes open. Report the command's own status.
			if cmd.ProcessState != nil {
				exitCode = cmd.ProcessState.ExitCode()
			}
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			// Start failures (bad dir, missing shell) have no exit code.
			exitCode = -1
			if stderr.Len() == 0 {
				fmt.Fprintf(&stderr, "%v", err)
			}
		}
	}

	return bus.Event{
		Kind:     bus.EventProcessResult,
		Command:  command,
		Stdout:   capture(stdout.String()),
		Stderr:   capture(stderr.String()),
		ExitCode: exitCode,
		TimedOut: timedOut,
	}
}

func capture(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxCaptured {
		s = s[:maxCaptured] + "\n... (truncated)"
	}
	return s
}
