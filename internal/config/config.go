// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is constructed once
// at startup and handed to components explicitly; nothing reads ambient
// global state.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Env     EnvConfig     `mapstructure:"env" yaml:"env"`
	Harness HarnessConfig `mapstructure:"harness" yaml:"harness"`
}

// LoggerConfig controls the zap logger construction.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EnvConfig configures the execution-environment provider.
type EnvConfig struct {
	// BaseDir is the directory under which named virtualenvs are created.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
	// Manifest is an optional dependency manifest (requirements.txt)
	// installed into a freshly created environment.
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

// HarnessConfig configures the verification core.
type HarnessConfig struct {
	// ReposRoot is the directory holding the persistent repository checkouts.
	ReposRoot string `mapstructure:"repos_root" yaml:"repos_root"`
	// PatchFuzz is the fuzz tolerance handed to the textual patch fallback.
	PatchFuzz int `mapstructure:"patch_fuzz" yaml:"patch_fuzz"`
	// MaxBaseline caps how many baseline (expect-pass) tests run per session.
	// Zero means unlimited.
	MaxBaseline int `mapstructure:"max_baseline" yaml:"max_baseline"`
	// CommandTimeout bounds every external invocation (git, patch, pytest).
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// LogDirName is the harness-owned subdirectory of the repository that
	// receives per-test diagnostic logs.
	LogDirName string `mapstructure:"log_dir_name" yaml:"log_dir_name"`
}

// SetDefaults initializes default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "revet")
	v.SetDefault("logger.log_file", "revet.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Environment provider --
	v.SetDefault("env.base_dir", "env")
	v.SetDefault("env.manifest", "requirements.txt")

	// -- Harness --
	v.SetDefault("harness.repos_root", "repo")
	v.SetDefault("harness.patch_fuzz", 5)
	v.SetDefault("harness.max_baseline", 10)
	v.SetDefault("harness.command_timeout", "10m")
	v.SetDefault("harness.log_dir_name", ".test_logs")
}

// NewDefaultConfig creates a configuration populated with default values.
// Used by tests and as the fallback when no config file exists.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for values the harness cannot run with,
// and expands ~ in configured paths.
func (c *Config) Validate() error {
	if c.Harness.PatchFuzz < 0 {
		return fmt.Errorf("harness.patch_fuzz must be >= 0, got %d", c.Harness.PatchFuzz)
	}
	if c.Harness.MaxBaseline < 0 {
		return fmt.Errorf("harness.max_baseline must be >= 0, got %d", c.Harness.MaxBaseline)
	}
	if c.Harness.CommandTimeout < 0 {
		return fmt.Errorf("harness.command_timeout must be >= 0, got %s", c.Harness.CommandTimeout)
	}
	if c.Harness.LogDirName == "" || filepath.IsAbs(c.Harness.LogDirName) {
		return fmt.Errorf("harness.log_dir_name must be a non-empty relative name, got %q", c.Harness.LogDirName)
	}

	var err error
	if c.Env.BaseDir, err = expandPath(c.Env.BaseDir); err != nil {
		return fmt.Errorf("env.base_dir: %w", err)
	}
	if c.Env.Manifest, err = expandPath(c.Env.Manifest); err != nil {
		return fmt.Errorf("env.manifest: %w", err)
	}
	if c.Harness.ReposRoot, err = expandPath(c.Harness.ReposRoot); err != nil {
		return fmt.Errorf("harness.repos_root: %w", err)
	}
	return nil
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(p string) (string, error) {
	if p == "" {
		return p, nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", p, err)
	}
	return expanded, nil
}

// EnsureDir creates dir (and parents) if it does not exist and verifies it is
// a directory.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%q exists but is not a directory", dir)
	}
	return nil
}
