package crawl

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ragmill/ragmill/internal/fetch"
)

// sitemapStrategy fans a sitemap's URL list out to the worker pool. Documents
// stream in arrival order; a per-URL failure is skipped, and an unparseable
// sitemap yields zero documents without error.
type sitemapStrategy struct {
	fetcher fetch.Fetcher
}

func (s *sitemapStrategy) Name() string { return string(fetch.KindSitemap) }

func (s *sitemapStrategy) Detect(rawURL string, opts Options) bool {
	return fetch.Classify(rawURL, opts.classifyInput()) == fetch.KindSitemap
}

func (s *sitemapStrategy) Crawl(ctx context.Context, rawURL string, opts Options, emit EmitFunc) error {
	urls := fetch.FetchSitemap(ctx, s.fetcher, rawURL, opts.fetchOpts(rawURL))
	if len(urls) == 0 {
		slog.Info("sitemap yielded no urls", slog.String("url", rawURL))
		return nil
	}

	gate := opts.admission()
	g, ctx := errgroup.WithContext(ctx)
	for _, u := range urls {
		g.Go(func() error {
			if err := gate.Acquire(ctx); err != nil {
				return err
			}
			defer gate.Release()

			res, err := s.fetcher.Fetch(ctx, u, opts.fetchOpts(u))
			if err != nil {
				slog.Warn("sitemap page fetch failed",
					slog.String("url", u),
					slog.String("error", err.Error()))
				return nil
			}
			return emit(ctx, Document{URL: res.URL, Markdown: res.Markdown, Depth: 1})
		})
	}
	return g.Wait()
}
