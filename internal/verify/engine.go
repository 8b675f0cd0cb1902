// File: internal/verify/engine.go
// Description: Test-outcome verification. Runs each test identifier in
// isolation inside the activated environment, classifies the observed exit
// status against an expectation policy, and writes a per-test diagnostic
// artifact under a harness-owned subdirectory of the repository.

package verify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/revet-dev/revet/internal/env"
	"github.com/revet-dev/revet/internal/gitx"
	"github.com/revet-dev/revet/internal/run"
)

// ErrInvalidTestSpec reports test-identifier input that is neither a
// recognized sequence nor a recognized delimited string.
var ErrInvalidTestSpec = errors.New("invalid test specification")

// Expectation is the success predicate applied to a batch of tests.
type Expectation int

const (
	// ExpectPass treats a zero exit status as matching.
	ExpectPass Expectation = iota
	// ExpectFail treats a non-zero exit status as matching.
	ExpectFail
)

func (e Expectation) String() string {
	if e == ExpectFail {
		return "expect-fail"
	}
	return "expect-pass"
}

// Matches classifies an observed outcome under this policy.
func (e Expectation) Matches(exitedZero bool) bool {
	if e == ExpectFail {
		return !exitedZero
	}
	return exitedZero
}

// Verdicts maps each test identifier to whether its observed outcome matched
// the expectation policy.
type Verdicts map[string]bool

// AllMatched reports whether every verdict in the batch matched.
func (v Verdicts) AllMatched() bool {
	for _, matched := range v {
		if !matched {
			return false
		}
	}
	return true
}

// ParseList normalizes a delimited test-identifier string: optionally
// bracket-wrapped, comma-separated, whitespace-tolerant. The empty string
// (or a bare "[]") yields an empty list, which is valid input.
func ParseList(s string) ([]string, error) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "[") {
		if !strings.HasSuffix(trimmed, "]") {
			return nil, fmt.Errorf("%w: unterminated bracket in %q", ErrInvalidTestSpec, s)
		}
		trimmed = trimmed[1 : len(trimmed)-1]
	}

	var tests []string
	for _, part := range strings.Split(trimmed, ",") {
		if t := strings.Trim(strings.TrimSpace(part), `"'`); t != "" {
			tests = append(tests, t)
		}
	}
	return tests, nil
}

// Normalize validates a native identifier sequence: identifiers are trimmed
// and must be non-empty.
func Normalize(tests []string) ([]string, error) {
	out := make([]string, 0, len(tests))
	for _, t := range tests {
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: empty test identifier", ErrInvalidTestSpec)
		}
		out = append(out, trimmed)
	}
	return out, nil
}

// Engine executes test batches and classifies their outcomes.
type Engine struct {
	runner     run.Runner
	logger     *zap.Logger
	logDirName string
	timeout    time.Duration
}

// NewEngine returns an Engine writing diagnostic artifacts into the
// logDirName subdirectory of each verified repository.
func NewEngine(runner run.Runner, logger *zap.Logger, logDirName string, timeout time.Duration) *Engine {
	return &Engine{
		runner:     runner,
		logger:     logger.Named("verify-engine"),
		logDirName: logDirName,
		timeout:    timeout,
	}
}

// Verify runs every identifier in tests, one at a time, and returns a verdict
// for each. The returned map's key set always equals the input identifier
// set: a test whose process cannot even start is recorded as matched=false
// rather than aborting the batch.
func (e *Engine) Verify(ctx context.Context, repoDir string, tests []string, exp Expectation, handle env.Handle) (Verdicts, error) {
	if info, err := os.Stat(repoDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", gitx.ErrRepositoryNotFound, repoDir)
	}
	if err := handle.Validate(); err != nil {
		return nil, err
	}
	normalized, err := Normalize(tests)
	if err != nil {
		return nil, err
	}

	logDir := filepath.Join(repoDir, e.logDirName)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating diagnostic log directory: %w", err)
	}

	verdicts := make(Verdicts, len(normalized))
	for _, nodeid := range normalized {
		matched := e.runOne(ctx, repoDir, logDir, nodeid, exp, handle)
		verdicts[nodeid] = matched
	}
	return verdicts, nil
}

// runOne executes a single test identifier and classifies its outcome.
func (e *Engine) runOne(ctx context.Context, repoDir, logDir, nodeid string, exp Expectation, handle env.Handle) bool {
	inv := run.Invocation{
		Argv:    []string{"pytest", "-q", "--disable-warnings", "--maxfail=1", nodeid},
		Dir:     repoDir,
		Env:     handle.Environ(),
		Timeout: e.timeout,
	}

	e.logger.Debug("Running test.", zap.String("nodeid", nodeid), zap.String("policy", exp.String()))
	res, err := e.runner.Run(ctx, inv)
	if err != nil {
		// Infrastructure failure: recorded, never escalated past this test.
		e.logger.Warn("Test invocation crashed.", zap.String("nodeid", nodeid), zap.Error(err))
		e.writeArtifact(logDir, nodeid, inv, res, err)
		return false
	}

	matched := exp.Matches(res.Ok())
	if matched {
		e.logger.Info("Test matched expectation.",
			zap.String("nodeid", nodeid), zap.String("policy", exp.String()))
	} else {
		e.logger.Warn("Test violated expectation.",
			zap.String("nodeid", nodeid),
			zap.String("policy", exp.String()),
			zap.Int("exit_code", res.ExitCode))
	}
	e.writeArtifact(logDir, nodeid, inv, res, nil)
	return matched
}

// writeArtifact records the command line and full captured output for one
// test. Artifact failures are logged but never affect the verdict.
func (e *Engine) writeArtifact(logDir, nodeid string, inv run.Invocation, res run.Result, runErr error) {
	var b strings.Builder
	b.WriteString("=== COMMAND ===\n")
	b.WriteString(inv.String())
	b.WriteString("\n\n=== STDOUT ===\n")
	b.WriteString(res.Stdout)
	b.WriteString("\n\n=== STDERR ===\n")
	b.WriteString(res.Stderr)
	b.WriteString("\n")
	if runErr != nil {
		b.WriteString("\n=== ERROR ===\n")
		b.WriteString(runErr.Error())
		b.WriteString("\n")
	}

	path := filepath.Join(logDir, ArtifactName(nodeid))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		e.logger.Warn("Failed to write diagnostic artifact.",
			zap.String("nodeid", nodeid), zap.Error(err))
	}
}

// ArtifactName maps a test identifier to a filesystem-safe log filename.
// Structural separators are replaced with safe substitutes and a short
// content hash keeps distinct identifiers from colliding after substitution.
func ArtifactName(nodeid string) string {
	r := strings.NewReplacer("::", "__", "[", "_", "]", "", "/", "_", " ", "")
	safe := r.Replace(nodeid)
	if len(safe) > 120 {
		safe = safe[:120]
	}
	sum := sha1.Sum([]byte(nodeid))
	return safe + "-" + hex.EncodeToString(sum[:4]) + ".log"
}
