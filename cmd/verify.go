// File: cmd/verify.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/revet-dev/revet/internal/dataset"
	"github.com/revet-dev/revet/internal/env"
	"github.com/revet-dev/revet/internal/gitx"
	"github.com/revet-dev/revet/internal/harness"
	"github.com/revet-dev/revet/internal/observability"
	"github.com/revet-dev/revet/internal/patch"
	"github.com/revet-dev/revet/internal/run"
	"github.com/revet-dev/revet/internal/verify"
)

// newVerifyCmd creates the verify command: one full verification session for
// a single benchmark instance.
func newVerifyCmd() *cobra.Command {
	var (
		datasetPath  string
		instanceID   string
		envName      string
		fixPatchPath string
		reposRoot    string
		maxBaseline  int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Apply an instance's defect patch and verify the expected test outcomes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadedConfig
			logger := observability.GetLogger()

			if reposRoot != "" {
				cfg.Harness.ReposRoot = reposRoot
			}
			if cmd.Flags().Changed("max-baseline") {
				cfg.Harness.MaxBaseline = maxBaseline
			}

			inst, err := dataset.LoadInstance(datasetPath, instanceID)
			if err != nil {
				return err
			}

			opts := harness.Options{EnvName: envName}
			if fixPatchPath != "" {
				fix, err := os.ReadFile(fixPatchPath)
				if err != nil {
					return fmt.Errorf("reading fix patch: %w", err)
				}
				opts.FixPatch = string(fix)
			}

			runner := run.NewExecRunner()
			timeout := cfg.Harness.CommandTimeout

			orch, err := harness.New(
				cfg.Harness,
				logger,
				env.NewProvider(cfg.Env, runner, logger, timeout),
				gitx.NewController(runner, logger, timeout),
				patch.NewApplier(runner, logger, cfg.Harness.PatchFuzz, timeout),
				verify.NewEngine(runner, logger, cfg.Harness.LogDirName, timeout),
			)
			if err != nil {
				return err
			}

			summary, runErr := orch.Run(cmd.Context(), inst, opts)

			// The summary is printed even for failed sessions; partial
			// partitions are still useful for diagnosis.
			out, encErr := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(summary, "", "  ")
			if encErr != nil {
				return encErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if runErr != nil {
				return runErr
			}
			if !summary.Passed() {
				logger.Warn("Verification did not match expectations.",
					zap.String("instance_id", instanceID))
				return fmt.Errorf("verification failed for %s", instanceID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "data/swe-smith.jsonl", "Path to the JSONL benchmark dataset.")
	cmd.Flags().StringVar(&instanceID, "instance", "", "Instance id to verify.")
	cmd.Flags().StringVar(&envName, "env", "", "Named execution environment to use.")
	cmd.Flags().StringVar(&fixPatchPath, "fix-patch", "", "Optional fix patch to apply and re-verify with.")
	cmd.Flags().StringVar(&reposRoot, "repos-root", "", "Override the configured repositories root.")
	cmd.Flags().IntVar(&maxBaseline, "max-baseline", 0, "Cap on baseline tests per session (0 = unlimited).")
	_ = cmd.MarkFlagRequired("instance")
	_ = cmd.MarkFlagRequired("env")

	return cmd
}
