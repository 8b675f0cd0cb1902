package gitx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/revet-dev/revet/internal/run"
	"github.com/revet-dev/revet/internal/run/runtest"
)

// initRepo creates a real repository with one commit, entirely in-process.
func initRepo(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, hash.String()
}

func newController(t *testing.T, runner run.Runner) *Controller {
	t.Helper()
	return NewController(runner, zaptest.NewLogger(t), time.Minute)
}

func TestCaptureRevision(t *testing.T) {
	t.Parallel()
	dir, want := initRepo(t)

	c := newController(t, runtest.NewScriptRunner())
	snap, err := c.CaptureRevision(dir)
	require.NoError(t, err)
	assert.Equal(t, want, snap.Revision)
}

func TestCaptureRevisionMissingDir(t *testing.T) {
	t.Parallel()
	c := newController(t, runtest.NewScriptRunner())

	_, err := c.CaptureRevision(filepath.Join(t.TempDir(), "nope"))
	require.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestCaptureRevisionNoHistory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	c := newController(t, runtest.NewScriptRunner())
	_, err = c.CaptureRevision(dir)

	var stateErr *RepositoryStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestSwitchToRevisionCommandSequence(t *testing.T) {
	t.Parallel()
	dir, _ := initRepo(t)

	runner := runtest.NewScriptRunner()
	c := newController(t, runner)
	require.NoError(t, c.SwitchToRevision(context.Background(), dir, "abc123"))

	lines := runner.CommandLines()
	require.Len(t, lines, 4)
	assert.Equal(t, "git stash --include-untracked", lines[0])
	assert.Equal(t, "git reset --hard abc123", lines[1])
	assert.Equal(t, "git checkout abc123", lines[2])
	assert.Equal(t, "git stash pop", lines[3])
}

func TestSwitchToRevisionToleratesStashFailures(t *testing.T) {
	t.Parallel()
	dir, _ := initRepo(t)

	runner := runtest.NewScriptRunner(
		runtest.Rule{Contains: "stash", Result: run.Result{ExitCode: 1, Stderr: "No local changes to save"}},
	)
	c := newController(t, runner)

	// Stash and stash-pop failures are best-effort, never fatal.
	require.NoError(t, c.SwitchToRevision(context.Background(), dir, "abc123"))
	require.Len(t, runner.Calls(), 4)
}

func TestSwitchToRevisionFatalOnReset(t *testing.T) {
	t.Parallel()
	dir, _ := initRepo(t)

	runner := runtest.NewScriptRunner(
		runtest.Rule{Contains: "reset --hard", Result: run.Result{ExitCode: 128, Stderr: "fatal: unknown revision"}},
	)
	c := newController(t, runner)

	err := c.SwitchToRevision(context.Background(), dir, "deadbeef")
	var switchErr *RevisionSwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, "reset", switchErr.Step)

	// Checkout and stash pop must not run after a failed reset.
	lines := runner.CommandLines()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "reset --hard")
}

func TestSwitchToRevisionFatalOnCheckout(t *testing.T) {
	t.Parallel()
	dir, _ := initRepo(t)

	runner := runtest.NewScriptRunner(
		runtest.Rule{Contains: "checkout", Result: run.Result{ExitCode: 1, Stderr: "error: pathspec"}},
	)
	c := newController(t, runner)

	err := c.SwitchToRevision(context.Background(), dir, "deadbeef")
	var switchErr *RevisionSwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, "checkout", switchErr.Step)
}

func TestRestoreRevision(t *testing.T) {
	t.Parallel()
	dir, rev := initRepo(t)

	runner := runtest.NewScriptRunner()
	c := newController(t, runner)
	require.NoError(t, c.RestoreRevision(context.Background(), dir, Snapshot{Revision: rev}))

	lines := runner.CommandLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "git reset --hard "+rev, lines[0])
	assert.Equal(t, "git checkout "+rev, lines[1])
}

func TestRestoreRevisionReportsFailure(t *testing.T) {
	t.Parallel()
	dir, rev := initRepo(t)

	runner := runtest.NewScriptRunner(
		runtest.Rule{Contains: "reset --hard", Result: run.Result{ExitCode: 1, Stderr: "boom"}},
	)
	c := newController(t, runner)

	err := c.RestoreRevision(context.Background(), dir, Snapshot{Revision: rev})
	var switchErr *RevisionSwitchError
	require.ErrorAs(t, err, &switchErr)
	assert.Equal(t, "restore-reset", switchErr.Step)
}
