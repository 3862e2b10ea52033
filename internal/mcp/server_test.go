package mcp

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/crawl"
	"github.com/ragmill/ragmill/internal/fetch"
	"github.com/ragmill/ragmill/internal/search"
	"github.com/ragmill/ragmill/internal/store"
	"github.com/ragmill/ragmill/internal/telemetry"
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

// fakeEmbedder maps each text to a deterministic non-zero vector.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%7 + 1), 1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int { return 3 }

// fakeRunner answers graph queries from a scripted function.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	respond func(cypher string, params map[string]any) ([]map[string]any, error)
}

func (f *fakeRunner) Run(_ context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cypher)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(cypher, params)
}

func (f *fakeRunner) Close(context.Context) error { return nil }

// testServer wires a server against a fake fetcher and an in-memory store.
func testServer(t *testing.T, fetcher *fakeFetcher, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.New()
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.Open(config.StoreConfig{}, 3)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	metrics := telemetry.NewMetrics()
	retriever := search.NewRetriever(st, fakeEmbedder{}, nil, nil, metrics)

	s, err := NewServer(Deps{
		Config:     cfg,
		Store:      st,
		Embedder:   fakeEmbedder{},
		Dispatcher: crawl.NewDispatcher(fetcher),
		Retriever:  retriever,
		Metrics:    metrics,
	})
	require.NoError(t, err)
	return s
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestServeUnknownTransport(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)
	err := s.Serve(context.Background(), "carrier-pigeon", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestCrawlSinglePageThenQuery(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "# Title\n\nHNSW tuning notes."},
	}}
	s := testServer(t, f, nil)
	ctx := context.Background()

	_, crawled, err := s.handleCrawlSinglePage(ctx, nil, CrawlSinglePageInput{
		URL: "https://x.test/doc",
	})
	require.NoError(t, err)
	require.True(t, crawled.Success, crawled.Error)
	assert.Equal(t, 1, crawled.ChunksStored)
	assert.Equal(t, []string{"x.test"}, crawled.Sources)
	assert.Positive(t, crawled.ContentLength)

	_, queried, err := s.handleRAGQuery(ctx, nil, RAGQueryInput{Query: "hnsw tuning"})
	require.NoError(t, err)
	require.True(t, queried.Success, queried.Error)
	require.Equal(t, 1, queried.Count)
	assert.Equal(t, "https://x.test/doc", queried.Results[0].URL)
	assert.Contains(t, queried.Results[0].Content, "HNSW tuning notes.")
	assert.Equal(t, "vector", queried.SearchMode)
}

func TestCrawlSinglePageValidation(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	for _, bad := range []string{"", "not a url", "ftp://x.test"} {
		_, out, err := s.handleCrawlSinglePage(context.Background(), nil,
			CrawlSinglePageInput{URL: bad})
		require.NoError(t, err, bad)
		assert.False(t, out.Success, bad)
		assert.Equal(t, "validation_error", out.ErrorType, bad)
	}
}

func TestCrawlSinglePageFetchFailure(t *testing.T) {
	s := testServer(t, &fakeFetcher{pages: map[string]page{}}, nil)

	_, out, err := s.handleCrawlSinglePage(context.Background(), nil,
		CrawlSinglePageInput{URL: "https://x.test/missing"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.NotEmpty(t, out.Error)
}

func TestSmartCrawlSitemapReingest(t *testing.T) {
	sitemap := `<urlset>
		<url><loc>https://x.test/a</loc></url>
		<url><loc>https://x.test/b</loc></url>
	</urlset>`
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/sitemap.xml": {markdown: sitemap},
		"https://x.test/a":           {markdown: "alpha content"},
		"https://x.test/b":           {markdown: "beta content"},
	}}
	s := testServer(t, f, nil)
	ctx := context.Background()

	_, first, err := s.handleSmartCrawl(ctx, nil, SmartCrawlInput{
		URL: "https://x.test/sitemap.xml",
	})
	require.NoError(t, err)
	require.True(t, first.Success, first.Error)
	assert.Equal(t, "sitemap", first.StrategyUsed)
	assert.Equal(t, 2, first.PagesCrawled)
	assert.Equal(t, 2, first.ChunksStored)

	// Same crawl again replaces rows instead of duplicating them.
	_, second, err := s.handleSmartCrawl(ctx, nil, SmartCrawlInput{
		URL: "https://x.test/sitemap.xml",
	})
	require.NoError(t, err)
	require.True(t, second.Success, second.Error)

	n, err := s.deps.Store.ChunkCount(ctx, "https://x.test/a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStealthCrawl(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "guarded page"},
	}}
	s := testServer(t, f, nil)

	_, out, err := s.handleStealthCrawl(context.Background(), nil, StealthCrawlInput{
		URL: "https://x.test/doc",
	})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, 1, out.PagesCrawled)
}

func TestMultiURLCrawlPartialFailure(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/a": {markdown: "alpha"},
		"https://x.test/c": {markdown: "gamma"},
	}}
	s := testServer(t, f, nil)

	_, out, err := s.handleMultiURLCrawl(context.Background(), nil, MultiURLCrawlInput{
		URLs: []string{"https://x.test/a", "https://x.test/b", "https://x.test/c"},
	})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	require.Len(t, out.Results, 3)

	assert.True(t, out.Results[0].Success)
	assert.False(t, out.Results[1].Success)
	assert.NotEmpty(t, out.Results[1].Error)
	assert.True(t, out.Results[2].Success)
	assert.Equal(t, 2, out.PagesCrawled)
}

func TestMultiURLCrawlEmptyInput(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	_, out, err := s.handleMultiURLCrawl(context.Background(), nil, MultiURLCrawlInput{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "validation_error", out.ErrorType)
}

func TestMemoryCrawlReportsStats(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "monitored page"},
	}}
	s := testServer(t, f, nil)

	_, out, err := s.handleMemoryCrawl(context.Background(), nil, MemoryCrawlInput{
		URL: "https://x.test/doc",
	})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, 1, out.PagesCrawled)
	require.NotNil(t, out.MemoryStats)
}

func TestAdaptiveCrawlZeroBudget(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "seed page"},
	}}
	s := testServer(t, f, nil)

	zero := 0
	_, out, err := s.handleAdaptiveCrawl(context.Background(), nil, AdaptiveCrawlInput{
		URL:      "https://x.test/doc",
		Query:    "vector search",
		MaxPages: &zero,
	})
	require.NoError(t, err)
	// An explicit zero budget is a successful crawl of nothing.
	require.True(t, out.Success, out.Error)
	assert.Zero(t, out.PagesCrawled)
	assert.Empty(t, out.TopSources)
}

func TestAdaptiveCrawlUnknownStrategy(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	_, out, err := s.handleAdaptiveCrawl(context.Background(), nil, AdaptiveCrawlInput{
		URL:      "https://x.test/doc",
		Query:    "vector search",
		Strategy: "random-walk",
	})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "validation_error", out.ErrorType)
}

func TestAdaptiveCrawlCollectsScores(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {
			markdown: "vector search overview with vector search terms",
			links:    []string{"https://x.test/other"},
		},
		"https://x.test/other": {markdown: "vector search details and more vector search"},
	}}
	s := testServer(t, f, nil)

	_, out, err := s.handleAdaptiveCrawl(context.Background(), nil, AdaptiveCrawlInput{
		URL:   "https://x.test/doc",
		Query: "vector search",
	})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	require.NotEmpty(t, out.TopSources)
	for i := 1; i < len(out.TopSources); i++ {
		assert.GreaterOrEqual(t, out.TopSources[i-1].Score, out.TopSources[i].Score)
	}
}

func TestGetSourcesEmptyAndPopulated(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "some content here"},
	}}
	s := testServer(t, f, nil)
	ctx := context.Background()

	_, empty, err := s.handleGetSources(ctx, nil, GetSourcesInput{})
	require.NoError(t, err)
	require.True(t, empty.Success)
	assert.Zero(t, empty.Count)
	assert.NotNil(t, empty.Sources)

	_, _, err = s.handleCrawlSinglePage(ctx, nil, CrawlSinglePageInput{URL: "https://x.test/doc"})
	require.NoError(t, err)

	_, out, err := s.handleGetSources(ctx, nil, GetSourcesInput{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "x.test", out.Sources[0].SourceID)
}

func TestRAGQueryValidation(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	_, out, err := s.handleRAGQuery(context.Background(), nil, RAGQueryInput{Query: "   "})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "validation_error", out.ErrorType)
}

func TestRAGQueryEmptyStoreSucceeds(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	_, out, err := s.handleRAGQuery(context.Background(), nil, RAGQueryInput{Query: "anything"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.Zero(t, out.Count)
	assert.NotNil(t, out.Results)
}

func TestRAGQueryHybridMode(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, func(cfg *config.Config) {
		cfg.Flags.HybridSearch = true
	})

	_, out, err := s.handleRAGQuery(context.Background(), nil, RAGQueryInput{Query: "anything"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "hybrid", out.SearchMode)
}

func TestSearchCodeExamples(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	_, out, err := s.handleSearchCode(context.Background(), nil, SearchCodeInput{Query: "connect"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.Zero(t, out.Count)
}

func TestDeleteSource(t *testing.T) {
	f := &fakeFetcher{pages: map[string]page{
		"https://x.test/doc": {markdown: "doomed content"},
	}}
	s := testServer(t, f, nil)
	ctx := context.Background()

	_, _, err := s.handleCrawlSinglePage(ctx, nil, CrawlSinglePageInput{URL: "https://x.test/doc"})
	require.NoError(t, err)

	_, out, err := s.handleDeleteSource(ctx, nil, DeleteSourceInput{SourceID: "x.test"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	_, sources, err := s.handleGetSources(ctx, nil, GetSourcesInput{})
	require.NoError(t, err)
	assert.Zero(t, sources.Count)
}

func TestDeleteSourceValidation(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	_, out, err := s.handleDeleteSource(context.Background(), nil, DeleteSourceInput{})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "validation_error", out.ErrorType)
}

func TestQueryMetrics(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)
	ctx := context.Background()

	_, _, err := s.handleRAGQuery(ctx, nil, RAGQueryInput{Query: "anything"})
	require.NoError(t, err)

	_, out, err := s.handleQueryMetrics(ctx, nil, QueryMetricsInput{})
	require.NoError(t, err)
	require.True(t, out.Success)
	assert.Equal(t, int64(1), out.Metrics.TotalQueries)
	assert.Equal(t, int64(1), out.Metrics.ZeroResultCount)
}

func TestGraphRAGQueryWithoutGraph(t *testing.T) {
	s := testServer(t, &fakeFetcher{}, nil)

	// No graph configured: the query still runs, just without enrichment.
	_, out, err := s.handleGraphRAGQuery(context.Background(), nil,
		GraphRAGQueryInput{Query: "anything"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.False(t, out.Enriched)
}
