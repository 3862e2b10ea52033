// Package mcp exposes the crawl, retrieval and knowledge-graph engine as MCP
// tools over stdio or SSE. Every tool answers with a {success, ...} envelope;
// operation failures never kill the process. In stdio mode nothing but
// protocol bytes may touch standard output, so all logging goes to standard
// error (see internal/logging).
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/crawl"
	"github.com/ragmill/ragmill/internal/embed"
	"github.com/ragmill/ragmill/internal/graph"
	"github.com/ragmill/ragmill/internal/ingest"
	"github.com/ragmill/ragmill/internal/llm"
	"github.com/ragmill/ragmill/internal/search"
	"github.com/ragmill/ragmill/internal/store"
	"github.com/ragmill/ragmill/internal/telemetry"
	"github.com/ragmill/ragmill/pkg/version"
)

// Deps are the engine singletons the tool handlers share. Chat and Graph may
// be nil when the corresponding backends are not configured; the dependent
// tools then degrade or report the graph as unavailable.
type Deps struct {
	Config     *config.Config
	Store      *store.Store
	Embedder   embed.Embedder
	Chat       llm.Client
	Dispatcher *crawl.Dispatcher
	Retriever  *search.Retriever
	Graph      graph.Runner
	GraphRAG   *graph.GraphRAG
	Metrics    *telemetry.Metrics
}

// Server is the MCP face of the engine.
type Server struct {
	mcp    *mcp.Server
	deps   Deps
	logger *slog.Logger
}

// NewServer wires the tool surface. Store, Embedder, Dispatcher and
// Retriever are required.
func NewServer(deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("crawl dispatcher is required")
	}
	if deps.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if deps.Config == nil {
		deps.Config = config.New()
	}

	s := &Server{
		deps:   deps,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "ragmill", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools declares the full tool surface.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_single_page",
		Description: "Fetch one URL, chunk it and store it in the vector index.",
	}, s.handleCrawlSinglePage)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "smart_crawl_url",
		Description: "Crawl a URL with automatic strategy detection: sitemaps fan out, text files ingest directly, regular pages crawl recursively.",
	}, s.handleSmartCrawl)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_with_stealth_mode",
		Description: "Crawl with browser-like headers and paced requests for bot-protected sites.",
	}, s.handleStealthCrawl)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_with_multi_url_config",
		Description: "Crawl a list of URLs in one run, with fetch settings inferred per URL.",
	}, s.handleMultiURLCrawl)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "crawl_with_memory_monitoring",
		Description: "Crawl while watching resident memory, shedding workers under pressure, and report memory statistics.",
	}, s.handleMemoryCrawl)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "adaptive_deep_crawl",
		Description: "Query-directed crawl that scores pages for relevance and keeps only those above a threshold.",
	}, s.handleAdaptiveCrawl)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_available_sources",
		Description: "List ingested sources with their summaries and word counts.",
	}, s.handleGetSources)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "perform_rag_query",
		Description: "Retrieve stored chunks for a query using vector search, optionally hybrid-merged with full-text matches and reranked.",
	}, s.handleRAGQuery)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_code_examples",
		Description: "Search extracted code examples by meaning and summary.",
	}, s.handleSearchCode)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_source",
		Description: "Remove a source and all of its chunks and code examples.",
	}, s.handleDeleteSource)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "graphrag_query",
		Description: "RAG query with entity-graph context attached to the top results.",
	}, s.handleGraphRAGQuery)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_metrics",
		Description: "Report query telemetry: counts by mode, latency buckets, zero-result and repeated queries.",
	}, s.handleQueryMetrics)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_github_repository",
		Description: "Clone a repository and extract its classes, methods and functions into the knowledge graph.",
	}, s.handleParseRepo)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_github_repositories_batch",
		Description: "Parse several repositories into the knowledge graph in parallel.",
	}, s.handleParseRepoBatch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_ai_script_hallucinations",
		Description: "Validate a script's imports, calls and attribute accesses against the knowledge graph.",
	}, s.handleCheckScript)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_knowledge_graph",
		Description: "Inspect the knowledge graph: repos, explore <repo>, classes <repo>, method <name>.",
	}, s.handleKGQuery)

	s.logger.Debug("tools registered", slog.Int("count", 16))
}

// Serve runs the server on the chosen transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("starting server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case "sse":
		handler := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
		srv := &http.Server{Addr: addr, Handler: handler}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	default:
		return errors.New("unknown transport: " + transport + " (expected stdio or sse)")
	}
}

// graphReady reports whether knowledge-graph tools can run.
func (s *Server) graphReady() bool {
	return s.deps.Graph != nil && s.deps.Config.Flags.KnowledgeGraph
}

// pipeline builds an ingest pipeline, overriding the chunk size when the
// caller supplied one.
func (s *Server) pipeline(chunkSize int) *ingest.Pipeline {
	cfg := s.deps.Config.Crawl
	if chunkSize > 0 {
		cfg.ChunkSize = chunkSize
	}
	p := ingest.New(s.deps.Store, s.deps.Embedder, s.deps.Chat, s.deps.Config.Flags, cfg)
	if s.deps.GraphRAG != nil {
		p.WithEntitySink(func(ctx context.Context, url string, chunks []string) error {
			_, err := s.deps.GraphRAG.ExtractDocument(ctx, url, chunks)
			return err
		})
	}
	return p
}
