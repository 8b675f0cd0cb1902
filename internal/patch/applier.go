// File: internal/patch/applier.go
// Description: Best-effort patch application. Tries a fixed, strictest-first
// sequence of strategies against the working tree inside the activated
// execution environment; the first strategy that exits zero wins.

package patch

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/revet-dev/revet/internal/env"
	"github.com/revet-dev/revet/internal/gitx"
	"github.com/revet-dev/revet/internal/run"
)

// Payload is an opaque unified diff plus the direction to apply it in.
// Immutable once constructed; the applier only reads it.
type Payload struct {
	Diff    string
	Reverse bool
}

// Applier attempts a prioritized sequence of patch-application strategies.
type Applier struct {
	runner  run.Runner
	logger  *zap.Logger
	fuzz    int
	timeout time.Duration
}

// NewApplier returns an Applier with the given fuzz tolerance for the textual
// fallback strategy.
func NewApplier(runner run.Runner, logger *zap.Logger, fuzz int, timeout time.Duration) *Applier {
	return &Applier{
		runner:  runner,
		logger:  logger.Named("patch-applier"),
		fuzz:    fuzz,
		timeout: timeout,
	}
}

// strategy produces the argument vector for one application attempt.
type strategy struct {
	name string
	argv func(patchFile string, reverse bool, fuzz int) []string
}

// Ordered strictest to most permissive: exact structural apply, partial
// structural apply with .rej markers, then a line-fuzzed textual apply that
// tolerates drifted context.
var strategies = []strategy{
	{
		name: "git-apply",
		argv: func(patchFile string, reverse bool, _ int) []string {
			args := []string{"git", "apply", "--verbose"}
			if reverse {
				args = append(args, "--reverse")
			}
			return append(args, patchFile)
		},
	},
	{
		name: "git-apply-reject",
		argv: func(patchFile string, reverse bool, _ int) []string {
			args := []string{"git", "apply", "--verbose", "--reject"}
			if reverse {
				args = append(args, "--reverse")
			}
			return append(args, patchFile)
		},
	},
	{
		name: "patch-fuzz",
		argv: func(patchFile string, reverse bool, fuzz int) []string {
			args := []string{"patch", "--batch", "--fuzz=" + strconv.Itoa(fuzz), "-p1"}
			if reverse {
				args = append(args, "--reverse")
			}
			return append(args, "-i", patchFile)
		},
	},
}

// Apply persists the payload to a transient file and walks the strategy chain
// until one succeeds. Returns (true, nil) on first success and (false, nil)
// when every strategy has been attempted and failed; exhaustion is not an
// error. Precondition violations (missing repo, unusable environment) abort
// before any attempt. The transient patch file is removed on every exit path.
func (a *Applier) Apply(ctx context.Context, repoDir string, payload Payload, handle env.Handle) (applied bool, err error) {
	if info, statErr := os.Stat(repoDir); statErr != nil || !info.IsDir() {
		return false, fmt.Errorf("%w: %s", gitx.ErrRepositoryNotFound, repoDir)
	}
	if err := handle.Validate(); err != nil {
		return false, err
	}

	patchFile, err := writeTempPatch(payload.Diff)
	if err != nil {
		return false, err
	}
	defer func() {
		if rmErr := os.Remove(patchFile); rmErr != nil && !os.IsNotExist(rmErr) {
			a.logger.Warn("Failed to remove transient patch file.",
				zap.String("file", patchFile), zap.Error(rmErr))
		}
	}()

	action := "apply"
	if payload.Reverse {
		action = "revert"
	}

	for _, s := range strategies {
		inv := run.Invocation{
			Argv:    s.argv(patchFile, payload.Reverse, a.fuzz),
			Dir:     repoDir,
			Env:     handle.Environ(),
			Timeout: a.timeout,
		}
		res, runErr := a.runner.Run(ctx, inv)
		if runErr != nil {
			// Infrastructure failures (missing binary, timeout) count as a
			// failed attempt; the next strategy may still succeed.
			a.logger.Warn("Patch strategy could not run.",
				zap.String("strategy", s.name), zap.Error(runErr))
			continue
		}
		if res.Ok() {
			a.logger.Info("Patch "+action+" succeeded.",
				zap.String("strategy", s.name), zap.String("repo", repoDir))
			return true, nil
		}
		a.logger.Debug("Patch strategy failed, falling back.",
			zap.String("strategy", s.name),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", res.Stderr))
	}

	a.logger.Warn("All patch strategies exhausted.",
		zap.String("repo", repoDir), zap.String("action", action))
	return false, nil
}

// writeTempPatch persists the diff to a process-local temporary file.
func writeTempPatch(diff string) (string, error) {
	f, err := os.CreateTemp("", "revet-*.diff")
	if err != nil {
		return "", fmt.Errorf("creating transient patch file: %w", err)
	}
	if _, err := f.WriteString(diff); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing transient patch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
