// internal/harness/mocks_test.go
package harness_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/revet-dev/revet/internal/env"
	"github.com/revet-dev/revet/internal/gitx"
	"github.com/revet-dev/revet/internal/harness"
	"github.com/revet-dev/revet/internal/patch"
	"github.com/revet-dev/revet/internal/verify"
)

// MockProvider is a mock implementation of harness.EnvironmentProvider.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Provide(ctx context.Context, name string) (env.Handle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(env.Handle), args.Error(1)
}

// MockState is a mock implementation of harness.StateController.
type MockState struct {
	mock.Mock
}

func (m *MockState) CaptureRevision(dir string) (gitx.Snapshot, error) {
	args := m.Called(dir)
	return args.Get(0).(gitx.Snapshot), args.Error(1)
}

func (m *MockState) SwitchToRevision(ctx context.Context, dir, revision string) error {
	args := m.Called(ctx, dir, revision)
	return args.Error(0)
}

func (m *MockState) RestoreRevision(ctx context.Context, dir string, snap gitx.Snapshot) error {
	args := m.Called(ctx, dir, snap)
	return args.Error(0)
}

// MockApplier is a mock implementation of harness.PatchApplier.
type MockApplier struct {
	mock.Mock
}

func (m *MockApplier) Apply(ctx context.Context, repoDir string, payload patch.Payload, handle env.Handle) (bool, error) {
	args := m.Called(ctx, repoDir, payload, handle)
	return args.Bool(0), args.Error(1)
}

// MockVerifier is a mock implementation of harness.Verifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, repoDir string, tests []string, exp verify.Expectation, handle env.Handle) (verify.Verdicts, error) {
	args := m.Called(ctx, repoDir, tests, exp, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(verify.Verdicts), args.Error(1)
}

var (
	_ harness.EnvironmentProvider = (*MockProvider)(nil)
	_ harness.StateController     = (*MockState)(nil)
	_ harness.PatchApplier        = (*MockApplier)(nil)
	_ harness.Verifier            = (*MockVerifier)(nil)
)
