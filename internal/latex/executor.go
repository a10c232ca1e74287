package latex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// ErrTimeout is returned by an Executor when an invocation exceeded its timeout
// and its process group was killed.
var ErrTimeout = errors.New("process timed out")

// Invocation describes one compiler process.
type Invocation struct {
	Program string // engine identifier, used for logs and errors
	Path    string // executable to start
	Args    []string
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration
}

// ProcessResult is what a finished process reports. A non-zero ExitCode is not an error.
type ProcessResult struct {
	ExitCode int
	Duration time.Duration
}

// Executor starts compiler processes. Run returns an error only when the process
// could not be started, timed out (ErrTimeout) or ctx ended first.
type Executor interface {
	Run(ctx context.Context, inv Invocation) (ProcessResult, error)
}

// ExecExecutor runs real processes, each in its own process group so a timeout
// takes down everything the compiler spawned (shell-escape helpers included).
type ExecExecutor struct{}

// Run implements Executor.
func (ExecExecutor) Run(ctx context.Context, inv Invocation) (ProcessResult, error) {
	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = inv.Stdout
	cmd.Stderr = inv.Stderr
	configureCommandProcess(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return ProcessResult{ExitCode: -1}, fmt.Errorf("start %s: %w", inv.Path, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeout <-chan time.Time
	if inv.Timeout > 0 {
		timer := time.NewTimer(inv.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		res := ProcessResult{Duration: time.Since(start)}
		var exitErr *exec.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitCode()
		default:
			return res, err
		}
		return res, nil
	case <-timeout:
		terminateCommandProcess(cmd)
		<-done
		return ProcessResult{ExitCode: -1, Duration: time.Since(start)}, ErrTimeout
	case <-ctx.Done():
		terminateCommandProcess(cmd)
		<-done
		return ProcessResult{ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
	}
}
