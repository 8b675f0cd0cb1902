// File: internal/env/provider.go
// Description: Execution-environment provider. Resolves a named uv virtualenv
// under a configured base directory, creating and provisioning it on first
// use. Re-requesting an existing healthy environment is a no-op so the
// installed dependency set never changes behind a caller's back.

package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/revet-dev/revet/internal/config"
	"github.com/revet-dev/revet/internal/run"
)

// ErrEnvironmentNotFound reports that a referenced environment does not exist
// or cannot be activated.
var ErrEnvironmentNotFound = errors.New("execution environment not found")

// Handle identifies a prepared execution environment. It is an opaque,
// already-resolved reference: consumers never re-resolve the name against the
// base directory.
type Handle struct {
	Name string
	Dir  string
}

// Validate checks that the environment is present and activatable.
func (h Handle) Validate() error {
	python := filepath.Join(h.Dir, "bin", "python")
	if info, err := os.Stat(python); err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s has no usable interpreter", ErrEnvironmentNotFound, h.Dir)
	}
	return nil
}

// Environ returns the environment-variable overrides that activate the
// virtualenv for a subprocess: VIRTUAL_ENV plus a PATH with the env's bin
// directory in front. Equivalent to sourcing bin/activate, without a shell.
func (h Handle) Environ() []string {
	bin := filepath.Join(h.Dir, "bin")
	return []string{
		"VIRTUAL_ENV=" + h.Dir,
		"PATH=" + bin + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
}

func (h Handle) python() string { return filepath.Join(h.Dir, "bin", "python") }

// Provider creates and repairs uv virtualenvs.
type Provider struct {
	cfg     config.EnvConfig
	runner  run.Runner
	logger  *zap.Logger
	timeout time.Duration
}

// NewProvider returns a Provider rooted at cfg.BaseDir.
func NewProvider(cfg config.EnvConfig, runner run.Runner, logger *zap.Logger, timeout time.Duration) *Provider {
	return &Provider{
		cfg:     cfg,
		runner:  runner,
		logger:  logger.Named("env-provider"),
		timeout: timeout,
	}
}

// Provide resolves the named environment, creating it if necessary.
// Idempotent: an existing environment that passes the health check is
// returned untouched, with no package installation of any kind.
func (p *Provider) Provide(ctx context.Context, name string) (Handle, error) {
	if name == "" {
		return Handle{}, fmt.Errorf("%w: empty environment name", ErrEnvironmentNotFound)
	}
	if err := config.EnsureDir(p.cfg.BaseDir); err != nil {
		return Handle{}, err
	}

	h := Handle{Name: name, Dir: filepath.Join(p.cfg.BaseDir, name)}

	if h.Validate() == nil {
		if err := p.ensurePip(ctx, h); err != nil {
			return Handle{}, err
		}
		p.logger.Info("Reusing existing environment.", zap.String("env", h.Dir))
		return h, nil
	}

	p.logger.Info("Creating environment.", zap.String("env", h.Dir))
	if res, err := p.exec(ctx, "", "uv", "venv", h.Dir); err != nil || !res.Ok() {
		return Handle{}, provisionErr("uv venv", h.Dir, res, err)
	}
	if err := h.Validate(); err != nil {
		return Handle{}, fmt.Errorf("environment created but %w", err)
	}
	if err := p.ensurePip(ctx, h); err != nil {
		return Handle{}, err
	}
	if err := p.installDependencies(ctx, h); err != nil {
		return Handle{}, err
	}

	p.logger.Info("Environment provisioned.", zap.String("env", h.Dir))
	return h, nil
}

// ensurePip health-checks pip inside the environment and repairs it with
// ensurepip when missing. uv-created envs ship without pip.
func (p *Provider) ensurePip(ctx context.Context, h Handle) error {
	res, err := p.exec(ctx, "", h.python(), "-m", "pip", "--version")
	if err == nil && res.Ok() {
		return nil
	}

	p.logger.Warn("pip missing in environment, attempting repair.", zap.String("env", h.Dir))
	res, err = p.exec(ctx, "", h.python(), "-m", "ensurepip", "--upgrade")
	if err != nil || !res.Ok() {
		return provisionErr("ensurepip", h.Dir, res, err)
	}
	return nil
}

// installDependencies installs the test runner and, when a manifest is
// declared and present, the project's dependency set. First-time creation
// only.
func (p *Provider) installDependencies(ctx context.Context, h Handle) error {
	if res, err := p.exec(ctx, "", h.python(), "-m", "pip", "install", "pytest"); err != nil || !res.Ok() {
		return provisionErr("pip install pytest", h.Dir, res, err)
	}

	if p.cfg.Manifest == "" {
		return nil
	}
	if _, err := os.Stat(p.cfg.Manifest); err != nil {
		p.logger.Debug("No dependency manifest found, skipping.", zap.String("manifest", p.cfg.Manifest))
		return nil
	}

	p.logger.Info("Installing dependency manifest.", zap.String("manifest", p.cfg.Manifest))
	if res, err := p.exec(ctx, "", h.python(), "-m", "pip", "install", "-r", p.cfg.Manifest); err != nil || !res.Ok() {
		return provisionErr("pip install -r", h.Dir, res, err)
	}
	return nil
}

func (p *Provider) exec(ctx context.Context, dir string, argv ...string) (run.Result, error) {
	return p.runner.Run(ctx, run.Invocation{
		Argv:    argv,
		Dir:     dir,
		Timeout: p.timeout,
	})
}

func provisionErr(step, dir string, res run.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s failed for %s: %w", step, dir, err)
	}
	return fmt.Errorf("%s failed for %s (exit %d): %s", step, dir, res.ExitCode, firstLine(res.Stderr))
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
