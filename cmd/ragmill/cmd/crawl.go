package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/crawl"
	"github.com/ragmill/ragmill/internal/fetch"
	"github.com/ragmill/ragmill/internal/validation"
)

// newCrawlCmd creates the one-shot crawl command.
func newCrawlCmd() *cobra.Command {
	var (
		single    bool
		query     string
		strategy  string
		maxDepth  int
		maxPages  int
		chunkSize int
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a URL into the vector store",
		Long: `Crawl a URL and ingest the result. Strategy selection is automatic:
sitemaps fan out, text files ingest directly, and regular pages crawl
recursively. --single forces a one-page fetch; --query switches to the
query-directed adaptive crawl.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := args[0]
			if err := validation.URL(rawURL); err != nil {
				return err
			}
			if query != "" {
				if err := validation.Strategy(strategy,
					crawl.DisciplineBestFirst, crawl.DisciplineBFS, crawl.DisciplineDFS); err != nil {
					return err
				}
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

			opts := crawl.Options{
				Single:             single,
				Query:              query,
				Discipline:         strategy,
				MaxDepth:           maxDepth,
				MaxPages:           maxPages,
				RelevanceThreshold: threshold,
				Fetch:              fetch.Opts{Timeout: cfg.Crawl.FetchTimeout},
			}

			name := eng.dispatcher.Select(rawURL, opts).Name()
			docs, errc := eng.dispatcher.Crawl(ctx, rawURL, opts)
			res, err := eng.pipeline(chunkSize).Run(ctx, docs)
			if err != nil {
				go func() {
					for range docs {
					}
				}()
				<-errc
				return err
			}
			if cerr := <-errc; cerr != nil {
				return cerr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "crawled %d pages with the %s strategy\n",
				res.PagesIngested, name)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().BoolVar(&single, "single", false, "Fetch only the given page")
	cmd.Flags().StringVar(&query, "query", "", "Run a query-directed adaptive crawl")
	cmd.Flags().StringVar(&strategy, "strategy", crawl.DisciplineBestFirst, "Adaptive frontier: best_first, bfs or dfs")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Link depth budget (default 3)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 10, "Adaptive page budget")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default 5000)")
	cmd.Flags().Float64Var(&threshold, "relevance-threshold", 0, "Adaptive keep threshold (default 0.3)")
	return cmd
}
