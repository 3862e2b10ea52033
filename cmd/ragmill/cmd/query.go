package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/search"
	"github.com/ragmill/ragmill/internal/validation"
)

// newQueryCmd creates the one-shot retrieval command.
func newQueryCmd() *cobra.Command {
	var (
		source string
		count  int
		code   bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := args[0]
			if err := validation.Query(q); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := search.Options{
				SourceFilter: source,
				MatchCount:   count,
				Hybrid:       cfg.Flags.HybridSearch,
				Rerank:       cfg.Flags.Reranking,
				GraphEnrich:  cfg.Flags.GraphRAG,
			}
			var results []search.Result
			if code {
				results, err = eng.retriever.SearchCode(ctx, q, opts)
			} else {
				results, err = eng.retriever.Search(ctx, q, opts)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Restrict results to one source domain")
	cmd.Flags().IntVar(&count, "count", 0, "Number of results (default 10)")
	cmd.Flags().BoolVar(&code, "code", false, "Search code examples instead of pages")
	return cmd
}

// newSourcesCmd creates the source catalog command.
func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List ingested sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			sources, err := eng.store.ListSources(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sources)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <source-id>",
		Short: "Delete a source and all of its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			eng, cleanup, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			return eng.store.DeleteSource(ctx, args[0])
		},
	})
	return cmd
}
