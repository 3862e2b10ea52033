package crawl

import (
	"context"

	"github.com/ragmill/ragmill/internal/fetch"
)

// singlePageStrategy fetches exactly one page.
type singlePageStrategy struct {
	fetcher fetch.Fetcher
}

func (s *singlePageStrategy) Name() string { return string(fetch.KindSinglePage) }

func (s *singlePageStrategy) Detect(rawURL string, opts Options) bool {
	return fetch.Classify(rawURL, opts.classifyInput()) == fetch.KindSinglePage
}

func (s *singlePageStrategy) Crawl(ctx context.Context, rawURL string, opts Options, emit EmitFunc) error {
	res, err := s.fetcher.Fetch(ctx, rawURL, opts.fetchOpts(rawURL))
	if err != nil {
		return err
	}
	return emit(ctx, Document{URL: res.URL, Markdown: res.Markdown, Depth: 1})
}

// textFileStrategy fetches one .txt URL; the body is the markdown verbatim.
type textFileStrategy struct {
	fetcher fetch.Fetcher
}

func (s *textFileStrategy) Name() string { return string(fetch.KindTextFile) }

func (s *textFileStrategy) Detect(rawURL string, opts Options) bool {
	return fetch.Classify(rawURL, opts.classifyInput()) == fetch.KindTextFile
}

func (s *textFileStrategy) Crawl(ctx context.Context, rawURL string, opts Options, emit EmitFunc) error {
	res, err := s.fetcher.Fetch(ctx, rawURL, opts.fetchOpts(rawURL))
	if err != nil {
		return err
	}
	return emit(ctx, Document{URL: res.URL, Markdown: res.Markdown, Depth: 1})
}
