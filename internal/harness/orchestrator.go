// File: internal/harness/orchestrator.go
// Description: Composes the environment provider, repository state
// controller, patch applier, and verification engine into one guarded
// session: snapshot, mutate, observe, and always restore.

package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revet-dev/revet/internal/config"
	"github.com/revet-dev/revet/internal/dataset"
	"github.com/revet-dev/revet/internal/env"
	"github.com/revet-dev/revet/internal/gitx"
	"github.com/revet-dev/revet/internal/patch"
	"github.com/revet-dev/revet/internal/verify"
)

// ErrDefectPatchFailed reports that no strategy could apply the defect patch.
var ErrDefectPatchFailed = errors.New("defect patch could not be applied")

// ErrFixPatchFailed reports that no strategy could apply the fix patch.
var ErrFixPatchFailed = errors.New("fix patch could not be applied")

// EnvironmentProvider supplies prepared execution environments.
type EnvironmentProvider interface {
	Provide(ctx context.Context, name string) (env.Handle, error)
}

// StateController manages the repository revision lifecycle.
type StateController interface {
	CaptureRevision(dir string) (gitx.Snapshot, error)
	SwitchToRevision(ctx context.Context, dir, revision string) error
	RestoreRevision(ctx context.Context, dir string, snap gitx.Snapshot) error
}

// PatchApplier applies or reverts a patch payload against a working tree.
type PatchApplier interface {
	Apply(ctx context.Context, repoDir string, payload patch.Payload, handle env.Handle) (bool, error)
}

// Verifier runs a test batch under an expectation policy.
type Verifier interface {
	Verify(ctx context.Context, repoDir string, tests []string, exp verify.Expectation, handle env.Handle) (verify.Verdicts, error)
}

// Summary is the structured outcome of one session.
type Summary struct {
	InstanceID string          `json:"instance_id"`
	SessionID  string          `json:"session_id"`
	Defect     verify.Verdicts `json:"defect_verification"`
	Baseline   verify.Verdicts `json:"baseline_verification"`
	Repair     verify.Verdicts `json:"repair_verification,omitempty"`
}

// Passed reports the overall run verdict: every partition that ran must have
// matched in full.
func (s Summary) Passed() bool {
	return s.Defect.AllMatched() && s.Baseline.AllMatched() && s.Repair.AllMatched()
}

// Options tune a single session.
type Options struct {
	// EnvName is the named execution environment to provide.
	EnvName string
	// FixPatch is an optional repair diff; when non-empty the session
	// re-verifies the defect tests under expect-pass after applying it.
	FixPatch string
}

// Orchestrator drives one verification session at a time. The repository
// working tree is a single shared mutable resource, so everything runs
// strictly sequentially.
type Orchestrator struct {
	cfg      config.HarnessConfig
	logger   *zap.Logger
	provider EnvironmentProvider
	state    StateController
	applier  PatchApplier
	verifier Verifier
}

// New creates an Orchestrator. All dependencies are injected for
// testability.
func New(
	cfg config.HarnessConfig,
	logger *zap.Logger,
	provider EnvironmentProvider,
	state StateController,
	applier PatchApplier,
	verifier Verifier,
) (*Orchestrator, error) {
	if logger == nil || provider == nil || state == nil || applier == nil || verifier == nil {
		return nil, errors.New("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logger.Named("harness"),
		provider: provider,
		state:    state,
		applier:  applier,
		verifier: verifier,
	}, nil
}

// Run executes the full guarded sequence for one benchmark instance and
// returns the session summary. Whatever happens after the revision snapshot
// is taken, the repository is restored before Run returns; a restore failure
// is joined with the primary error, never substituted for it.
func (o *Orchestrator) Run(ctx context.Context, inst dataset.Instance, opts Options) (summary Summary, err error) {
	summary = Summary{
		InstanceID: inst.InstanceID,
		SessionID:  uuid.NewString(),
	}
	logger := o.logger.With(
		zap.String("instance_id", inst.InstanceID),
		zap.String("session_id", summary.SessionID),
	)

	repoName, err := inst.RepoDirName()
	if err != nil {
		return summary, err
	}
	baseCommit, err := inst.BaseCommit()
	if err != nil {
		return summary, err
	}
	repoDir := filepath.Join(o.cfg.ReposRoot, repoName)
	logger.Info("Starting verification session.",
		zap.String("repo", repoDir), zap.String("base_commit", baseCommit))

	// Environment acquisition happens before the snapshot: it mutates nothing
	// in the repository, and its failures are precondition errors.
	handle, err := o.provider.Provide(ctx, opts.EnvName)
	if err != nil {
		return summary, fmt.Errorf("providing environment %q: %w", opts.EnvName, err)
	}

	snap, err := o.state.CaptureRevision(repoDir)
	if err != nil {
		return summary, err
	}
	logger.Info("Captured pre-run revision.", zap.String("revision", snap.Revision))

	// Everything below mutates the working tree. Restoration must run once
	// on every exit path, and must survive a cancelled context.
	defer func() {
		restoreCtx := context.WithoutCancel(ctx)
		if restoreErr := o.state.RestoreRevision(restoreCtx, repoDir, snap); restoreErr != nil {
			logger.Error("Failed to restore repository after session.",
				zap.String("revision", snap.Revision), zap.Error(restoreErr))
			err = errors.Join(err, fmt.Errorf("restoring repository: %w", restoreErr))
			return
		}
		logger.Info("Repository restored.", zap.String("revision", snap.Revision))
	}()

	if err = o.state.SwitchToRevision(ctx, repoDir, baseCommit); err != nil {
		return summary, err
	}

	applied, err := o.applier.Apply(ctx, repoDir, patch.Payload{Diff: inst.Patch}, handle)
	if err != nil {
		return summary, err
	}
	if !applied {
		return summary, ErrDefectPatchFailed
	}
	logger.Info("Defect patch applied.")

	summary.Defect, err = o.verifier.Verify(ctx, repoDir, inst.FailToPass, verify.ExpectFail, handle)
	if err != nil {
		return summary, err
	}

	baseline := capBaseline(inst.PassToPass, o.cfg.MaxBaseline)
	summary.Baseline, err = o.verifier.Verify(ctx, repoDir, baseline, verify.ExpectPass, handle)
	if err != nil {
		return summary, err
	}

	if opts.FixPatch != "" {
		applied, err = o.applier.Apply(ctx, repoDir, patch.Payload{Diff: opts.FixPatch}, handle)
		if err != nil {
			return summary, err
		}
		if !applied {
			return summary, ErrFixPatchFailed
		}
		logger.Info("Fix patch applied, re-verifying defect tests.")

		summary.Repair, err = o.verifier.Verify(ctx, repoDir, inst.FailToPass, verify.ExpectPass, handle)
		if err != nil {
			return summary, err
		}
	}

	logger.Info("Verification session complete.", zap.Bool("passed", summary.Passed()))
	return summary, nil
}

// capBaseline limits the baseline batch to the first max entries.
func capBaseline(tests []string, max int) []string {
	if max > 0 && len(tests) > max {
		return tests[:max]
	}
	return tests
}
