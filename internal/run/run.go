// File: internal/run/run.go
// Description: Structured subprocess invocation. Every external command the
// harness issues (git, patch, pytest, uv, pip) goes through a Runner so that
// the working directory, environment, and timeout are explicit data rather
// than shell strings, and so that tests can substitute a scripted runner.

package run

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout marks an invocation that was killed by the per-command deadline.
// It is a distinct outcome from a process that ran to completion with a
// non-zero exit status.
var ErrTimeout = errors.New("command timed out")

// Result holds everything observed from a completed invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Duration of the invocation, start to wait-completion.
	Duration time.Duration
}

// Ok reports whether the process terminated with a success status.
func (r Result) Ok() bool { return r.ExitCode == 0 }

// Invocation describes one command to execute.
type Invocation struct {
	// Argv is the full argument vector; Argv[0] is the executable name.
	Argv []string
	// Dir is the working directory. Empty means the caller's cwd, which no
	// harness component relies on; all callers set it.
	Dir string
	// Env is the extra environment appended to the ambient one, KEY=VALUE.
	// Used for virtualenv activation (VIRTUAL_ENV, PATH override).
	Env []string
	// Timeout bounds the invocation. Zero means no bound.
	Timeout time.Duration
}

func (inv Invocation) String() string { return strings.Join(inv.Argv, " ") }

// Runner executes an Invocation and reports the observed Result.
//
// A non-zero exit status is NOT an error: it is a Result with a non-zero
// ExitCode and a nil error. The error return is reserved for infrastructure
// failures, executable not found, context cancellation, or ErrTimeout.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner that executes commands on the host.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes the invocation and waits for full completion. Stdout and
// stderr are captured separately and in full.
func (e *ExecRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if len(inv.Argv) == 0 {
		return Result{}, errors.New("empty argument vector")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), inv.Env)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		// The deadline firing surfaces as a killed process; report it as a
		// timeout rather than a plain non-zero exit.
		if inv.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded {
			res.ExitCode = -1
			return res, ErrTimeout
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

// mergeEnv appends overrides to base, replacing any base entry that shares a
// key with an override. Later PATH overrides must win for virtualenv
// activation to take effect.
func mergeEnv(base, overrides []string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	overridden := make(map[string]bool, len(overrides))
	for _, kv := range overrides {
		if i := strings.IndexByte(kv, '='); i > 0 {
			overridden[kv[:i]] = true
		}
	}
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i > 0 && overridden[kv[:i]] {
			continue
		}
		merged = append(merged, kv)
	}
	return append(merged, overrides...)
}
