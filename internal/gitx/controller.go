// File: internal/gitx/controller.go
// Description: Repository state lifecycle. Captures the current revision,
// switches a possibly-dirty working tree to a target revision without data
// loss, and restores the captured revision as the unconditional cleanup step.

package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/revet-dev/revet/internal/run"
)

// ErrRepositoryNotFound reports a missing or non-directory working tree.
var ErrRepositoryNotFound = errors.New("repository working tree not found")

// RepositoryStateError reports that a repository's history state could not be
// read (for example an empty repository with no commits).
type RepositoryStateError struct {
	Dir string
	Err error
}

func (e *RepositoryStateError) Error() string {
	return fmt.Sprintf("cannot read repository state at %s: %v", e.Dir, e.Err)
}

func (e *RepositoryStateError) Unwrap() error { return e.Err }

// RevisionSwitchError reports a failed mandatory step of a revision switch.
// The working tree is indeterminate afterwards, so callers must abort.
type RevisionSwitchError struct {
	Dir      string
	Revision string
	Step     string
	Err      error
}

func (e *RevisionSwitchError) Error() string {
	return fmt.Sprintf("switching %s to %s: %s failed: %v", e.Dir, e.Revision, e.Step, e.Err)
}

func (e *RevisionSwitchError) Unwrap() error { return e.Err }

// Snapshot is an opaque revision identifier captured before any mutation.
type Snapshot struct {
	Revision string
}

// Controller drives revision-control transitions on a working tree.
// Reads go through go-git; mutations (stash, reset, checkout) go through the
// git CLI because go-git has no stash support.
type Controller struct {
	runner  run.Runner
	logger  *zap.Logger
	timeout time.Duration
}

// NewController returns a Controller issuing git commands through runner.
func NewController(runner run.Runner, logger *zap.Logger, timeout time.Duration) *Controller {
	return &Controller{
		runner:  runner,
		logger:  logger.Named("gitx"),
		timeout: timeout,
	}
}

// CaptureRevision reads the current history tip of the repository at dir.
func (c *Controller) CaptureRevision(dir string) (Snapshot, error) {
	if err := checkDir(dir); err != nil {
		return Snapshot{}, err
	}
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return Snapshot{}, &RepositoryStateError{Dir: dir, Err: err}
	}
	head, err := repo.Head()
	if err != nil {
		return Snapshot{}, &RepositoryStateError{Dir: dir, Err: err}
	}
	rev := head.Hash().String()
	c.logger.Debug("Captured revision.", zap.String("repo", dir), zap.String("revision", rev))
	return Snapshot{Revision: rev}, nil
}

// SwitchToRevision moves the working tree to the target revision, preserving
// uncommitted and untracked changes where possible. Stash steps are
// best-effort; reset and checkout are mandatory and fatal on failure.
func (c *Controller) SwitchToRevision(ctx context.Context, dir, revision string) error {
	if err := checkDir(dir); err != nil {
		return err
	}
	c.logger.Info("Switching repository revision.", zap.String("repo", dir), zap.String("revision", revision))

	// "Nothing to stash" exits zero; a real stash failure is tolerated too,
	// because the subsequent patch application is the authoritative source of
	// the working tree's content.
	if res, err := c.git(ctx, dir, "stash", "--include-untracked"); err != nil || !res.Ok() {
		c.logger.Warn("Stash before switch failed, continuing.",
			zap.String("repo", dir), zap.Error(err), zap.String("stderr", res.Stderr))
	}

	if res, err := c.git(ctx, dir, "reset", "--hard", revision); err != nil || !res.Ok() {
		return &RevisionSwitchError{Dir: dir, Revision: revision, Step: "reset", Err: stepErr(res, err)}
	}
	if res, err := c.git(ctx, dir, "checkout", revision); err != nil || !res.Ok() {
		return &RevisionSwitchError{Dir: dir, Revision: revision, Step: "checkout", Err: stepErr(res, err)}
	}

	// Conflicts on pop are non-fatal for the same reason the stash step is.
	if res, err := c.git(ctx, dir, "stash", "pop"); err != nil || !res.Ok() {
		c.logger.Debug("Stash pop after switch did not apply cleanly.",
			zap.String("repo", dir), zap.Error(err), zap.String("stderr", res.Stderr))
	}

	c.logger.Info("Repository switched.", zap.String("repo", dir), zap.String("revision", revision))
	return nil
}

// RestoreRevision hard-resets and checks out the captured snapshot. This is
// the unconditional cleanup step of a session.
func (c *Controller) RestoreRevision(ctx context.Context, dir string, snap Snapshot) error {
	if err := checkDir(dir); err != nil {
		return err
	}
	c.logger.Info("Restoring repository.", zap.String("repo", dir), zap.String("revision", snap.Revision))

	if res, err := c.git(ctx, dir, "reset", "--hard", snap.Revision); err != nil || !res.Ok() {
		return &RevisionSwitchError{Dir: dir, Revision: snap.Revision, Step: "restore-reset", Err: stepErr(res, err)}
	}
	if res, err := c.git(ctx, dir, "checkout", snap.Revision); err != nil || !res.Ok() {
		return &RevisionSwitchError{Dir: dir, Revision: snap.Revision, Step: "restore-checkout", Err: stepErr(res, err)}
	}
	return nil
}

func (c *Controller) git(ctx context.Context, dir string, args ...string) (run.Result, error) {
	return c.runner.Run(ctx, run.Invocation{
		Argv:    append([]string{"git"}, args...),
		Dir:     dir,
		Timeout: c.timeout,
	})
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRepositoryNotFound, dir)
	}
	return nil
}

func stepErr(res run.Result, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("exit %d: %s", res.ExitCode, res.Stderr)
}
