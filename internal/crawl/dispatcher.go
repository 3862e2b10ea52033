package crawl

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ragmill/ragmill/internal/fetch"
)

// EmitFunc delivers one document downstream. It returns an error when the
// consumer is gone, which aborts the strategy.
type EmitFunc func(ctx context.Context, doc Document) error

// Strategy is one crawl discipline. Detect reports whether the strategy
// applies to the URL; the dispatcher scans its registry in order and runs the
// first match.
type Strategy interface {
	Name() string
	Detect(rawURL string, opts Options) bool
	Crawl(ctx context.Context, rawURL string, opts Options, emit EmitFunc) error
}

// Dispatcher selects and runs crawl strategies.
type Dispatcher struct {
	fetcher    fetch.Fetcher
	strategies []Strategy
}

// NewDispatcher builds a dispatcher with the standard strategy registry.
func NewDispatcher(f fetch.Fetcher) *Dispatcher {
	return &Dispatcher{
		fetcher: f,
		strategies: []Strategy{
			&sitemapStrategy{fetcher: f},
			&textFileStrategy{fetcher: f},
			&singlePageStrategy{fetcher: f},
			&adaptiveStrategy{fetcher: f},
			&recursiveStrategy{fetcher: f},
		},
	}
}

// Select returns the first strategy whose Detect accepts the URL. The
// recursive strategy matches everything, so Select always succeeds.
func (d *Dispatcher) Select(rawURL string, opts Options) Strategy {
	for _, s := range d.strategies {
		if s.Detect(rawURL, opts) {
			return s
		}
	}
	return d.strategies[len(d.strategies)-1]
}

// Crawl runs the selected strategy and streams documents on the returned
// channel. The channel is closed when the crawl ends; the error channel then
// carries the terminal error (nil on success). Cancel ctx to abort.
func (d *Dispatcher) Crawl(ctx context.Context, rawURL string, opts Options) (<-chan Document, <-chan error) {
	opts = opts.withDefaults()
	docs := make(chan Document)
	errc := make(chan error, 1)

	s := d.Select(rawURL, opts)
	slog.Debug("crawl strategy selected",
		slog.String("url", rawURL),
		slog.String("strategy", s.Name()))

	go func() {
		defer close(docs)
		emit := func(ctx context.Context, doc Document) error {
			select {
			case docs <- doc:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		errc <- s.Crawl(ctx, rawURL, opts, emit)
	}()

	return docs, errc
}

// Collect runs a crawl to completion and returns all documents. Convenience
// wrapper for callers that do not stream.
func (d *Dispatcher) Collect(ctx context.Context, rawURL string, opts Options) ([]Document, error) {
	docs, errc := d.Crawl(ctx, rawURL, opts)
	var out []Document
	for doc := range docs {
		out = append(out, doc)
	}
	return out, <-errc
}

// URLResult is the per-URL outcome of a multi-URL crawl.
type URLResult struct {
	URL string
	Doc *Document
	Err error
}

// CrawlMany fetches each URL as a single page under the shared worker pool.
// Results keep the input order; per-URL failures are recorded, not fatal.
func (d *Dispatcher) CrawlMany(ctx context.Context, urls []string, opts Options) []URLResult {
	opts = opts.withDefaults()
	results := make([]URLResult, len(urls))
	gate := opts.admission()

	g, ctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = URLResult{URL: u}
			if err := gate.Acquire(ctx); err != nil {
				results[i].Err = err
				return nil
			}
			defer gate.Release()

			res, err := d.fetcher.Fetch(ctx, u, opts.fetchOpts(u))
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Doc = &Document{URL: res.URL, Markdown: res.Markdown, Depth: 1}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
