// File: cmd/env.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/revet-dev/revet/internal/env"
	"github.com/revet-dev/revet/internal/observability"
	"github.com/revet-dev/revet/internal/run"
)

// newEnvCmd creates the env command group.
func newEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage execution environments.",
	}
	cmd.AddCommand(newEnvProvisionCmd())
	return cmd
}

// newEnvProvisionCmd creates or repairs a named environment. Safe to re-run:
// an existing healthy environment is left untouched.
func newEnvProvisionCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create or repair a named execution environment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadedConfig
			logger := observability.GetLogger()

			provider := env.NewProvider(cfg.Env, run.NewExecRunner(), logger, cfg.Harness.CommandTimeout)
			handle, err := provider.Provide(cmd.Context(), name)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), handle.Dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Environment name.")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}
