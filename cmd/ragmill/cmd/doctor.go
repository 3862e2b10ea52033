package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/graph"
	"github.com/ragmill/ragmill/internal/preflight"
)

// newDoctorCmd creates the environment check command.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment",
		Long: `Check that the vector store is writable, provider credentials are
present, and the knowledge graph is reachable. Warnings mean a feature
degrades; failures mean the server cannot work.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			dial := func(ctx context.Context, gc config.GraphConfig) error {
				runner, derr := graph.Connect(ctx, gc)
				if derr != nil {
					return derr
				}
				return runner.Close(ctx)
			}

			results := preflight.New(cfg, dial).RunAll(cmd.Context())
			preflight.Print(cmd.OutOrStdout(), results)
			if preflight.HasCriticalFailures(results) {
				return fmt.Errorf("environment check failed")
			}
			return nil
		},
	}
}
