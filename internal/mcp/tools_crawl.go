package mcp

import (
	"context"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragmill/ragmill/internal/crawl"
	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/fetch"
	"github.com/ragmill/ragmill/internal/ingest"
	"github.com/ragmill/ragmill/internal/validation"
)

// crawlAndIngest runs a crawl and feeds the document stream through the
// ingest pipeline. On a pipeline failure the remaining documents are drained
// so the strategy goroutine can finish and report its own error.
func (s *Server) crawlAndIngest(ctx context.Context, rawURL string, opts crawl.Options, p *ingest.Pipeline) (*ingest.Result, string, error) {
	strategy := s.deps.Dispatcher.Select(rawURL, opts)
	docs, errc := s.deps.Dispatcher.Crawl(ctx, rawURL, opts)

	res, ierr := p.Run(ctx, docs)
	if ierr != nil {
		go func() {
			for range docs {
			}
		}()
	}
	cerr := <-errc

	if ierr != nil {
		return res, strategy.Name(), ierr
	}
	if cerr != nil {
		return res, strategy.Name(), cerr
	}
	return res, strategy.Name(), nil
}

type CrawlSinglePageInput struct {
	URL string `json:"url" jsonschema:"the page URL to fetch and store"`
}

type CrawlSinglePageOutput struct {
	Envelope
	URL           string   `json:"url,omitempty"`
	ChunksStored  int      `json:"chunks_stored,omitempty"`
	CodeExamples  int      `json:"code_examples_stored,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	ContentLength int      `json:"content_length,omitempty"`
}

func (s *Server) handleCrawlSinglePage(ctx context.Context, _ *mcp.CallToolRequest, in CrawlSinglePageInput) (*mcp.CallToolResult, CrawlSinglePageOutput, error) {
	if err := validation.URL(in.URL); err != nil {
		return nil, CrawlSinglePageOutput{Envelope: failEnvelope(err)}, nil
	}

	opts := crawl.Options{
		Single: true,
		Fetch:  fetch.Opts{Timeout: s.deps.Config.Crawl.FetchTimeout},
	}
	docs, errc := s.deps.Dispatcher.Crawl(ctx, in.URL, opts)

	var length int
	teed := make(chan crawl.Document)
	go func() {
		defer close(teed)
		for doc := range docs {
			length += len(doc.Markdown)
			teed <- doc
		}
	}()

	res, err := s.pipeline(0).Run(ctx, teed)
	if err == nil {
		err = <-errc
	} else {
		go func() {
			for range teed {
			}
		}()
		<-errc
	}
	if err != nil {
		return nil, CrawlSinglePageOutput{Envelope: failEnvelope(err)}, nil
	}

	return nil, CrawlSinglePageOutput{
		Envelope:      okEnvelope(),
		URL:           in.URL,
		ChunksStored:  res.ChunksStored,
		CodeExamples:  res.CodeExamples,
		Sources:       res.Sources,
		ContentLength: length,
	}, nil
}

type SmartCrawlInput struct {
	URL           string `json:"url" jsonschema:"the URL to crawl; sitemaps and text files are detected automatically"`
	MaxDepth      int    `json:"max_depth,omitempty" jsonschema:"recursive crawl depth, default 3"`
	MaxConcurrent int    `json:"max_concurrent,omitempty" jsonschema:"parallel fetch workers, default 10"`
	ChunkSize     int    `json:"chunk_size,omitempty" jsonschema:"chunk size in characters, default 5000"`
}

type SmartCrawlOutput struct {
	Envelope
	URL          string   `json:"url,omitempty"`
	StrategyUsed string   `json:"strategy_used,omitempty"`
	PagesCrawled int      `json:"pages_crawled,omitempty"`
	ChunksStored int      `json:"chunks_stored,omitempty"`
	CodeExamples int      `json:"code_examples_stored,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

func (s *Server) handleSmartCrawl(ctx context.Context, _ *mcp.CallToolRequest, in SmartCrawlInput) (*mcp.CallToolResult, SmartCrawlOutput, error) {
	if err := validation.URL(in.URL); err != nil {
		return nil, SmartCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	opts := crawl.Options{
		MaxDepth:      in.MaxDepth,
		MaxConcurrent: in.MaxConcurrent,
		Fetch:         fetch.Opts{Timeout: s.deps.Config.Crawl.FetchTimeout},
	}
	res, strategy, err := s.crawlAndIngest(ctx, in.URL, opts, s.pipeline(in.ChunkSize))
	if err != nil {
		return nil, SmartCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	return nil, SmartCrawlOutput{
		Envelope:     okEnvelope(),
		URL:          in.URL,
		StrategyUsed: strategy,
		PagesCrawled: res.PagesIngested,
		ChunksStored: res.ChunksStored,
		CodeExamples: res.CodeExamples,
		Sources:      res.Sources,
	}, nil
}

type StealthCrawlInput struct {
	URL          string  `json:"url" jsonschema:"the URL to crawl with browser-like headers"`
	ExtraWait    float64 `json:"extra_wait,omitempty" jsonschema:"additional seconds to wait before each request"`
	SimulateUser bool    `json:"simulate_user,omitempty" jsonschema:"add randomized delays and a referer header"`
}

type StealthCrawlOutput struct {
	Envelope
	URL          string   `json:"url,omitempty"`
	StrategyUsed string   `json:"strategy_used,omitempty"`
	PagesCrawled int      `json:"pages_crawled,omitempty"`
	ChunksStored int      `json:"chunks_stored,omitempty"`
	Sources      []string `json:"sources,omitempty"`
}

func (s *Server) handleStealthCrawl(ctx context.Context, _ *mcp.CallToolRequest, in StealthCrawlInput) (*mcp.CallToolResult, StealthCrawlOutput, error) {
	if err := validation.URL(in.URL); err != nil {
		return nil, StealthCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	opts := crawl.Options{
		Fetch: fetch.Opts{
			Timeout:      s.deps.Config.Crawl.FetchTimeout,
			ExtraWait:    time.Duration(in.ExtraWait * float64(time.Second)),
			Stealth:      true,
			SimulateUser: in.SimulateUser,
		},
	}
	res, strategy, err := s.crawlAndIngest(ctx, in.URL, opts, s.pipeline(0))
	if err != nil {
		return nil, StealthCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	return nil, StealthCrawlOutput{
		Envelope:     okEnvelope(),
		URL:          in.URL,
		StrategyUsed: strategy,
		PagesCrawled: res.PagesIngested,
		ChunksStored: res.ChunksStored,
		Sources:      res.Sources,
	}, nil
}

type MultiURLCrawlInput struct {
	URLs          []string `json:"urls" jsonschema:"the URLs to crawl"`
	MaxConcurrent int      `json:"max_concurrent,omitempty" jsonschema:"parallel fetch workers, default 10"`
}

// MultiURLResult is the per-URL outcome within a multi-URL crawl response.
type MultiURLResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type MultiURLCrawlOutput struct {
	Envelope
	Results      []MultiURLResult `json:"results,omitempty"`
	PagesCrawled int              `json:"pages_crawled,omitempty"`
	ChunksStored int              `json:"chunks_stored,omitempty"`
	Sources      []string         `json:"sources,omitempty"`
}

func (s *Server) handleMultiURLCrawl(ctx context.Context, _ *mcp.CallToolRequest, in MultiURLCrawlInput) (*mcp.CallToolResult, MultiURLCrawlOutput, error) {
	if len(in.URLs) == 0 {
		err := ragerr.ValidationError("urls is required", nil)
		return nil, MultiURLCrawlOutput{Envelope: failEnvelope(err)}, nil
	}
	for _, u := range in.URLs {
		if err := validation.URL(u); err != nil {
			return nil, MultiURLCrawlOutput{Envelope: failEnvelope(err)}, nil
		}
	}

	opts := crawl.Options{
		MaxConcurrent: in.MaxConcurrent,
		Fetch:         fetch.Opts{Timeout: s.deps.Config.Crawl.FetchTimeout},
		Patterns:      multiURLPatterns(s.deps.Config.Crawl.FetchTimeout),
	}
	results := s.deps.Dispatcher.CrawlMany(ctx, in.URLs, opts)

	out := MultiURLCrawlOutput{Results: make([]MultiURLResult, len(results))}
	var docs []crawl.Document
	for i, r := range results {
		out.Results[i] = MultiURLResult{URL: r.URL, Success: r.Err == nil}
		if r.Err != nil {
			out.Results[i].Error = r.Err.Error()
			continue
		}
		docs = append(docs, *r.Doc)
	}

	res, err := s.pipeline(0).Run(ctx, stream(docs))
	if err != nil {
		return nil, MultiURLCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	out.Envelope = okEnvelope()
	out.PagesCrawled = res.PagesIngested
	out.ChunksStored = res.ChunksStored
	out.Sources = res.Sources
	return nil, out, nil
}

// multiURLPatterns are the per-URL fetch overrides for multi-URL crawls:
// hosts that commonly sit behind bot protection get the stealth treatment.
func multiURLPatterns(timeout time.Duration) []fetch.URLPattern {
	stealth := fetch.Opts{Timeout: timeout, Stealth: true, ExtraWait: time.Second}
	return []fetch.URLPattern{
		{Pattern: "cloudflare", Opts: stealth},
		{Pattern: "linkedin.com", Opts: stealth},
		{Pattern: "medium.com", Opts: stealth},
	}
}

// stream adapts a slice of documents to the pipeline's channel input.
func stream(docs []crawl.Document) <-chan crawl.Document {
	ch := make(chan crawl.Document, len(docs))
	for _, d := range docs {
		ch <- d
	}
	close(ch)
	return ch
}

type MemoryCrawlInput struct {
	URL               string  `json:"url" jsonschema:"the URL to crawl under memory monitoring"`
	MemoryThresholdMB float64 `json:"memory_threshold_mb,omitempty" jsonschema:"RSS threshold in MB before shedding workers, default 512"`
	MaxConcurrent     int     `json:"max_concurrent,omitempty" jsonschema:"maximum parallel fetch workers, default 10"`
}

type MemoryCrawlOutput struct {
	Envelope
	URL          string             `json:"url,omitempty"`
	PagesCrawled int                `json:"pages_crawled,omitempty"`
	ChunksStored int                `json:"chunks_stored,omitempty"`
	Sources      []string           `json:"sources,omitempty"`
	MemoryStats  *crawl.MemoryStats `json:"memory_stats,omitempty"`
}

func (s *Server) handleMemoryCrawl(ctx context.Context, _ *mcp.CallToolRequest, in MemoryCrawlInput) (*mcp.CallToolResult, MemoryCrawlOutput, error) {
	if err := validation.URL(in.URL); err != nil {
		return nil, MemoryCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	threshold := in.MemoryThresholdMB
	if threshold <= 0 {
		threshold = s.deps.Config.Crawl.MemoryThresholdMB
	}
	workers := in.MaxConcurrent
	if workers <= 0 {
		workers = s.deps.Config.Crawl.MaxConcurrent
	}

	monitorCtx, stop := context.WithCancel(ctx)
	defer stop()
	monitor := crawl.NewMonitor(threshold, workers)
	go monitor.Run(monitorCtx)

	opts := crawl.Options{
		MaxConcurrent: workers,
		Fetch:         fetch.Opts{Timeout: s.deps.Config.Crawl.FetchTimeout},
		Monitor:       monitor,
	}
	res, _, err := s.crawlAndIngest(ctx, in.URL, opts, s.pipeline(0))
	stop()
	stats := monitor.Stats()

	if err != nil {
		return nil, MemoryCrawlOutput{Envelope: failEnvelope(err), MemoryStats: &stats}, nil
	}
	return nil, MemoryCrawlOutput{
		Envelope:     okEnvelope(),
		URL:          in.URL,
		PagesCrawled: res.PagesIngested,
		ChunksStored: res.ChunksStored,
		Sources:      res.Sources,
		MemoryStats:  &stats,
	}, nil
}

type AdaptiveCrawlInput struct {
	URL                string  `json:"url" jsonschema:"the start URL"`
	Query              string  `json:"query" jsonschema:"the query that directs the crawl"`
	Strategy           string  `json:"strategy,omitempty" jsonschema:"frontier discipline: best_first, bfs or dfs; default best_first"`
	MaxPages           *int    `json:"max_pages,omitempty" jsonschema:"page budget, default 10; 0 crawls nothing"`
	RelevanceThreshold float64 `json:"relevance_threshold,omitempty" jsonschema:"minimum relevance score to keep a page, default 0.3"`
	MaxDepth           int     `json:"max_depth,omitempty" jsonschema:"link distance budget, default 3"`
}

// TopSource is one kept page of an adaptive crawl, with its relevance score.
type TopSource struct {
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type AdaptiveCrawlOutput struct {
	Envelope
	URL          string      `json:"url,omitempty"`
	Query        string      `json:"query,omitempty"`
	Strategy     string      `json:"strategy,omitempty"`
	PagesCrawled int         `json:"pages_crawled,omitempty"`
	ChunksStored int         `json:"chunks_stored,omitempty"`
	TopSources   []TopSource `json:"top_sources,omitempty"`
}

func (s *Server) handleAdaptiveCrawl(ctx context.Context, _ *mcp.CallToolRequest, in AdaptiveCrawlInput) (*mcp.CallToolResult, AdaptiveCrawlOutput, error) {
	if err := validation.URL(in.URL); err != nil {
		return nil, AdaptiveCrawlOutput{Envelope: failEnvelope(err)}, nil
	}
	if err := validation.Query(in.Query); err != nil {
		return nil, AdaptiveCrawlOutput{Envelope: failEnvelope(err)}, nil
	}
	discipline := in.Strategy
	if discipline == "" {
		discipline = crawl.DisciplineBestFirst
	}
	if err := validation.Strategy(discipline,
		crawl.DisciplineBestFirst, crawl.DisciplineBFS, crawl.DisciplineDFS); err != nil {
		return nil, AdaptiveCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	// A missing budget means the default; an explicit zero is a successful
	// zero-page crawl.
	maxPages := 10
	if in.MaxPages != nil {
		maxPages = *in.MaxPages
	}

	opts := crawl.Options{
		Query:              in.Query,
		Discipline:         discipline,
		MaxPages:           maxPages,
		MaxDepth:           in.MaxDepth,
		RelevanceThreshold: in.RelevanceThreshold,
		Fetch:              fetch.Opts{Timeout: s.deps.Config.Crawl.FetchTimeout},
	}

	docs, errc := s.deps.Dispatcher.Crawl(ctx, in.URL, opts)

	var kept []TopSource
	teed := make(chan crawl.Document)
	go func() {
		defer close(teed)
		for doc := range docs {
			kept = append(kept, TopSource{URL: doc.URL, Score: doc.Score})
			teed <- doc
		}
	}()

	res, err := s.pipeline(0).Run(ctx, teed)
	if err == nil {
		err = <-errc
	} else {
		go func() {
			for range teed {
			}
		}()
		<-errc
	}
	if err != nil {
		return nil, AdaptiveCrawlOutput{Envelope: failEnvelope(err)}, nil
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })

	return nil, AdaptiveCrawlOutput{
		Envelope:     okEnvelope(),
		URL:          in.URL,
		Query:        in.Query,
		Strategy:     discipline,
		PagesCrawled: res.PagesIngested,
		ChunksStored: res.ChunksStored,
		TopSources:   kept,
	}, nil
}
