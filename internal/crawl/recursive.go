package crawl

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragmill/ragmill/internal/fetch"
)

// recursiveStrategy walks internal links breadth-first from the start URL.
// Each level's frontier is fetched in parallel under the worker pool; the
// visited set is keyed by fragment-stripped URL so a page is never fetched
// twice. Only links on the start URL's site are followed.
type recursiveStrategy struct {
	fetcher fetch.Fetcher
}

func (s *recursiveStrategy) Name() string { return string(fetch.KindRecursive) }

// Detect always matches; the recursive strategy is the registry fallback.
func (s *recursiveStrategy) Detect(string, Options) bool { return true }

func (s *recursiveStrategy) Crawl(ctx context.Context, rawURL string, opts Options, emit EmitFunc) error {
	start := canonicalURL(rawURL)
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	gate := opts.admission()

	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		var (
			mu   sync.Mutex
			next []string
		)

		g, gctx := errgroup.WithContext(ctx)
		for _, u := range frontier {
			g.Go(func() error {
				if err := gate.Acquire(gctx); err != nil {
					return err
				}
				defer gate.Release()

				res, err := s.fetcher.Fetch(gctx, u, opts.fetchOpts(u))
				if err != nil {
					slog.Warn("recursive fetch failed",
						slog.String("url", u),
						slog.String("error", err.Error()))
					return nil
				}
				if err := emit(gctx, Document{URL: res.URL, Markdown: res.Markdown, Depth: depth}); err != nil {
					return err
				}

				mu.Lock()
				defer mu.Unlock()
				for _, link := range res.Links {
					canon := canonicalURL(link)
					if _, seen := visited[canon]; seen {
						continue
					}
					if !sameSite(rawURL, canon) {
						continue
					}
					visited[canon] = struct{}{}
					next = append(next, canon)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		frontier = next
	}
	return nil
}
