package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "revet", cfg.Logger.ServiceName)
	assert.Equal(t, 5, cfg.Harness.PatchFuzz)
	assert.Equal(t, 10, cfg.Harness.MaxBaseline)
	assert.Equal(t, 10*time.Minute, cfg.Harness.CommandTimeout)
	assert.Equal(t, ".test_logs", cfg.Harness.LogDirName)
	assert.Equal(t, "env", cfg.Env.BaseDir)
}

func TestValidateRejectsNegativeFuzz(t *testing.T) {
	t.Parallel()
	cfg := NewDefaultConfig()
	cfg.Harness.PatchFuzz = -1
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsAbsoluteLogDirName(t *testing.T) {
	t.Parallel()
	cfg := NewDefaultConfig()
	cfg.Harness.LogDirName = "/var/log/revet"
	require.Error(t, cfg.Validate())
}

func TestValidateExpandsHome(t *testing.T) {
	t.Parallel()
	cfg := NewDefaultConfig()
	cfg.Env.BaseDir = "~/envs"
	require.NoError(t, cfg.Validate())
	assert.NotContains(t, cfg.Env.BaseDir, "~")
}
