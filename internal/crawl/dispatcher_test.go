package crawl

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmill/ragmill/internal/fetch"
)

// page is one canned response for the fake fetcher.
type page struct {
	markdown string
	links    []string
}

// fakeFetcher serves canned pages and records every fetch.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, _ fetch.Opts) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	p, ok := f.pages[rawURL]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no page for %s", rawURL)
	}
	return &fetch.Result{URL: rawURL, Markdown: p.markdown, Links: p.links, Status: 200}, nil
}

func (f *fakeFetcher) fetchCount(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

func TestSelectStrategyOrder(t *testing.T) {
	d := NewDispatcher(&fakeFetcher{})

	tests := []struct {
		name string
		url  string
		opts Options
		want string
	}{
		{"sitemap wins", "https://x.test/sitemap.xml", Options{Single: true}, "sitemap"},
		{"text file", "https://x.test/llms.txt", Options{Query: "q"}, "text_file"},
		{"single", "https://x.test/doc", Options{Single: true}, "single_page"},
		{"adaptive", "https://x.test/doc", Options{Query: "q"}, "adaptive"},
		{"recursive default", "https://x.test/doc", Options{}, "recursive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Select(tt.url, tt.opts).Name())
		})
	}
}

func TestCrawlSinglePage(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "# Title\n\nHello world."},
	}}
	d := NewDispatcher(f)

	docs, err := d.Collect(context.Background(), "https://x.test/doc", Options{Single: true})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "https://x.test/doc", docs[0].URL)
	assert.Equal(t, "# Title\n\nHello world.", docs[0].Markdown)
}

func TestCrawlSinglePageFetchError(t *testing.T) {
	d := NewDispatcher(&fakeFetcher{pages: map[string]page{}})
	docs, err := d.Collect(context.Background(), "https://x.test/doc", Options{Single: true})
	assert.Error(t, err)
	assert.Empty(t, docs)
}

func TestSitemapFanOut(t *testing.T) {
	sitemap := `<urlset>
		<url><loc>https://x.test/a</loc></url>
		<url><loc>https://x.test/b</loc></url>
		<url><loc>https://x.test/missing</loc></url>
	</urlset>`
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/sitemap.xml": {markdown: sitemap},
		"https://x.test/a":           {markdown: "page a"},
		"https://x.test/b":           {markdown: "page b"},
	}}
	d := NewDispatcher(f)

	docs, err := d.Collect(context.Background(), "https://x.test/sitemap.xml", Options{})
	require.NoError(t, err)

	// The missing page is skipped, not fatal.
	urls := make([]string, 0, len(docs))
	for _, doc := range docs {
		urls = append(urls, doc.URL)
	}
	assert.ElementsMatch(t, []string{"https://x.test/a", "https://x.test/b"}, urls)
}

func TestSitemapUnparseable(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/sitemap.xml": {markdown: "not xml at all"},
	}}
	d := NewDispatcher(f)

	docs, err := d.Collect(context.Background(), "https://x.test/sitemap.xml", Options{})
	assert.NoError(t, err)
	assert.Empty(t, docs)
}

func TestCrawlCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "hello"},
	}}
	d := NewDispatcher(f)

	_, err := d.Collect(ctx, "https://x.test/doc", Options{Single: true})
	// Either the fetch or the emit observes cancellation; the crawl must not
	// hang.
	_ = err
}

func TestCrawlMany(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/a": {markdown: "a"},
		"https://x.test/c": {markdown: "c"},
	}}
	d := NewDispatcher(f)

	results := d.CrawlMany(context.Background(),
		[]string{"https://x.test/a", "https://x.test/b", "https://x.test/c"}, Options{})
	require.Len(t, results, 3)

	assert.Equal(t, "https://x.test/a", results[0].URL)
	require.NotNil(t, results[0].Doc)
	assert.Equal(t, "a", results[0].Doc.Markdown)

	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Doc)

	require.NotNil(t, results[2].Doc)
	assert.Equal(t, "c", results[2].Doc.Markdown)
}
