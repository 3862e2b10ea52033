package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ragmill/ragmill/internal/config"
	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/graph"
	"github.com/ragmill/ragmill/internal/validation"
)

// newParseCmd creates the repository extraction command.
func newParseCmd() *cobra.Command {
	var maxConcurrent int

	cmd := &cobra.Command{
		Use:   "parse <repo-url>...",
		Short: "Extract repositories into the knowledge graph",
		Long: `Clone one or more git repositories and extract their classes, methods,
functions and attributes into the Neo4j knowledge graph. Requires
NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, u := range args {
				if err := validation.URL(u); err != nil {
					return err
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Graph.Configured() {
				return ragerr.GraphUnavailable()
			}

			ctx := cmd.Context()
			runner, err := graph.Connect(ctx, cfg.Graph)
			if err != nil {
				return err
			}
			defer runner.Close(ctx)

			ext := graph.NewExtractor(runner, cfg.Crawl.MaxRetries)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if len(args) == 1 {
				stats, perr := ext.ParseRepository(ctx, args[0])
				if perr != nil {
					return perr
				}
				return enc.Encode(stats)
			}
			return enc.Encode(ext.ParseRepositories(ctx, args, maxConcurrent))
		},
	}

	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 3, "Parallel repository clones")
	return cmd
}

// newCheckCmd creates the script validation command.
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <script.py>",
		Short: "Validate a script against the knowledge graph",
		Long: `Parse a Python script and check its imports, instantiations, method
calls and attribute accesses against the knowledge graph, reporting
each use as valid, uncertain or invalid with an overall confidence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.Graph.Configured() {
				return ragerr.GraphUnavailable()
			}

			ctx := cmd.Context()
			runner, err := graph.Connect(ctx, cfg.Graph)
			if err != nil {
				return err
			}
			defer runner.Close(ctx)

			report, err := graph.NewValidator(runner).CheckScript(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	return cmd
}
