package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerCapturesStreamsSeparately(t *testing.T) {
	t.Parallel()
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "echo out; echo err >&2"},
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "exit 3"},
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Ok())
}

func TestExecRunnerTimeout(t *testing.T) {
	t.Parallel()
	r := NewExecRunner()

	_, err := r.Run(context.Background(), Invocation{
		Argv:    []string{"sleep", "5"},
		Dir:     t.TempDir(),
		Timeout: 50 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestExecRunnerMissingExecutable(t *testing.T) {
	t.Parallel()
	r := NewExecRunner()

	res, err := r.Run(context.Background(), Invocation{
		Argv: []string{"definitely-not-a-real-binary-4af1"},
		Dir:  t.TempDir(),
	})
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}

func TestExecRunnerRespectsDirAndEnv(t *testing.T) {
	t.Parallel()
	r := NewExecRunner()
	dir := t.TempDir()

	res, err := r.Run(context.Background(), Invocation{
		Argv: []string{"sh", "-c", "pwd; printf '%s' \"$VIRTUAL_ENV\""},
		Dir:  dir,
		Env:  []string{"VIRTUAL_ENV=/opt/envs/demo"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
	assert.Contains(t, res.Stdout, "/opt/envs/demo")
}

func TestMergeEnvOverridesBaseKeys(t *testing.T) {
	t.Parallel()
	merged := mergeEnv(
		[]string{"PATH=/usr/bin", "HOME=/home/u"},
		[]string{"PATH=/opt/envs/demo/bin:/usr/bin"},
	)
	assert.NotContains(t, merged, "PATH=/usr/bin")
	assert.Contains(t, merged, "PATH=/opt/envs/demo/bin:/usr/bin")
	assert.Contains(t, merged, "HOME=/home/u")
}
