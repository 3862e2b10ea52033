package cmd

import (
	"context"
	"log/slog"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/crawl"
	"github.com/ragmill/ragmill/internal/embed"
	"github.com/ragmill/ragmill/internal/fetch"
	"github.com/ragmill/ragmill/internal/graph"
	"github.com/ragmill/ragmill/internal/ingest"
	"github.com/ragmill/ragmill/internal/llm"
	"github.com/ragmill/ragmill/internal/mcp"
	"github.com/ragmill/ragmill/internal/search"
	"github.com/ragmill/ragmill/internal/store"
	"github.com/ragmill/ragmill/internal/telemetry"
)

// engine bundles the wired application singletons for one command run.
type engine struct {
	cfg        *config.Config
	store      *store.Store
	embedder   embed.Embedder
	chat       llm.Client
	dispatcher *crawl.Dispatcher
	retriever  *search.Retriever
	graph      graph.Runner
	graphRAG   *graph.GraphRAG
	metrics    *telemetry.Metrics
}

// buildEngine wires the engine from config. The returned cleanup closes the
// store and the graph connection.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, func(), error) {
	st, err := store.Open(cfg.Store, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, nil, err
	}

	e := &engine{
		cfg:      cfg,
		store:    st,
		embedder: embed.NewFromConfig(cfg.Embedding),
		metrics:  telemetry.NewMetrics(),
	}

	// No chat credentials means summaries, reranking and entity extraction
	// fall back to their non-LLM forms.
	if cfg.LLM.APIKey != "" || cfg.LLM.BaseURL != "" {
		e.chat = llm.New(cfg.LLM)
	}

	fetcher := fetch.NewHTTPFetcher()
	e.dispatcher = crawl.NewDispatcher(fetcher)

	if cfg.Graph.Configured() {
		runner, gerr := graph.Connect(ctx, cfg.Graph)
		if gerr != nil {
			slog.Warn("knowledge graph unreachable, graph tools disabled",
				slog.String("error", gerr.Error()))
		} else {
			e.graph = runner
		}
	}
	if e.graph != nil && e.chat != nil && cfg.Flags.GraphRAG {
		e.graphRAG = graph.NewGraphRAG(e.graph, e.chat, graph.DefaultExtractConcurrency)
	}

	var reranker search.Reranker
	if cfg.Flags.Reranking && e.chat != nil {
		reranker = search.NewLLMReranker(e.chat)
	}
	var enricher search.GraphEnricher
	if e.graphRAG != nil {
		enricher = e.graphRAG
	}
	e.retriever = search.NewRetriever(st, e.embedder, reranker, enricher, e.metrics)

	cleanup := func() {
		if e.graph != nil {
			if cerr := e.graph.Close(context.Background()); cerr != nil {
				slog.Warn("graph close failed", slog.String("error", cerr.Error()))
			}
		}
		if cerr := st.Close(); cerr != nil {
			slog.Warn("store close failed", slog.String("error", cerr.Error()))
		}
	}
	return e, cleanup, nil
}

// pipeline builds an ingest pipeline over the engine's store, with the
// entity sink attached when GraphRAG is live.
func (e *engine) pipeline(chunkSize int) *ingest.Pipeline {
	crawlCfg := e.cfg.Crawl
	if chunkSize > 0 {
		crawlCfg.ChunkSize = chunkSize
	}
	p := ingest.New(e.store, e.embedder, e.chat, e.cfg.Flags, crawlCfg)
	if e.graphRAG != nil {
		p.WithEntitySink(func(ctx context.Context, url string, chunks []string) error {
			_, err := e.graphRAG.ExtractDocument(ctx, url, chunks)
			return err
		})
	}
	return p
}

// mcpDeps adapts the engine to the MCP server's dependency set.
func (e *engine) mcpDeps() mcp.Deps {
	return mcp.Deps{
		Config:     e.cfg,
		Store:      e.store,
		Embedder:   e.embedder,
		Chat:       e.chat,
		Dispatcher: e.dispatcher,
		Retriever:  e.retriever,
		Graph:      e.graph,
		GraphRAG:   e.graphRAG,
		Metrics:    e.metrics,
	}
}
