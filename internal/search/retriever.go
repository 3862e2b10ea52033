package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ragmill/ragmill/internal/embed"
	"github.com/ragmill/ragmill/internal/store"
	"github.com/ragmill/ragmill/internal/telemetry"
)

// Retriever executes queries against the vector store. The reranker and
// enricher are optional; a nil field disables the corresponding pass even
// when the caller asks for it.
type Retriever struct {
	store    *store.Store
	embedder embed.Embedder
	reranker Reranker
	enricher GraphEnricher
	metrics  *telemetry.Metrics
}

// NewRetriever wires a retriever. reranker, enricher and metrics may be nil.
func NewRetriever(st *store.Store, embedder embed.Embedder, reranker Reranker, enricher GraphEnricher, metrics *telemetry.Metrics) *Retriever {
	return &Retriever{
		store:    st,
		embedder: embedder,
		reranker: reranker,
		enricher: enricher,
		metrics:  metrics,
	}
}

// Search retrieves crawled-page chunks for a query.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	mode := telemetry.ModeVector
	if opts.Hybrid {
		mode = telemetry.ModeHybrid
	}
	return r.run(ctx, query, opts, mode, r.store.VectorSearch, r.store.TextSearch)
}

// SearchCode retrieves indexed code examples for a query.
func (r *Retriever) SearchCode(ctx context.Context, query string, opts Options) ([]Result, error) {
	return r.run(ctx, query, opts, telemetry.ModeCode, r.store.VectorSearchCode, r.store.TextSearchCode)
}

type vectorFn func(ctx context.Context, query []float32, k int, sourceID string) ([]store.SearchResult, error)
type textFn func(ctx context.Context, query string, k int, sourceID string) ([]store.SearchResult, error)

func (r *Retriever) run(ctx context.Context, query string, opts Options, mode telemetry.Mode, vsearch vectorFn, tsearch textFn) ([]Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	qvec := vectors[0]

	var hits []store.SearchResult
	if opts.Hybrid {
		var vecHits, textHits []store.SearchResult
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var verr error
			vecHits, verr = vsearch(gctx, qvec, opts.MatchCount, opts.SourceFilter)
			return verr
		})
		g.Go(func() error {
			var terr error
			textHits, terr = tsearch(gctx, query, opts.MatchCount, opts.SourceFilter)
			return terr
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		hits = mergeHybrid(vecHits, textHits, opts.MatchCount)
	} else {
		hits, err = vsearch(ctx, qvec, opts.MatchCount, opts.SourceFilter)
		if err != nil {
			return nil, err
		}
	}

	results := toResults(hits)
	if opts.Rerank && r.reranker != nil {
		results = r.rerank(ctx, query, results, opts.MatchCount)
	}
	if opts.GraphEnrich && r.enricher != nil {
		r.enrich(ctx, results)
	}

	if r.metrics != nil {
		r.metrics.Record(telemetry.Event{
			Query:       query,
			Mode:        mode,
			ResultCount: len(results),
			Latency:     time.Since(start),
		})
	}
	return results, nil
}

// rerank reorders results by cross-encoder score. Failures keep the
// first-pass order.
func (r *Retriever) rerank(ctx context.Context, query string, results []Result, matchCount int) []Result {
	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Content
	}

	scored, err := r.reranker.Rerank(ctx, query, docs, matchCount)
	if err != nil {
		slog.Warn("rerank failed, keeping first-pass order", slog.String("error", err.Error()))
		return results
	}

	out := make([]Result, 0, len(scored))
	for _, s := range scored {
		res := results[s.Index]
		res.RerankScore = s.Score
		out = append(out, res)
	}
	return out
}

// enrich attaches graph context to the leading results. Graph trouble is
// logged and skipped.
func (r *Retriever) enrich(ctx context.Context, results []Result) {
	top := len(results)
	if top > enrichTopK {
		top = enrichTopK
	}
	for i := 0; i < top; i++ {
		gc, err := r.enricher.Enrich(ctx, results[i].Content, enrichEntities)
		if err != nil {
			slog.Warn("graph enrichment skipped", slog.String("error", err.Error()))
			continue
		}
		results[i].GraphContext = gc
	}
}

func toResults(hits []store.SearchResult) []Result {
	out := make([]Result, len(hits))
	for i, h := range hits {
		out[i] = Result{
			URL:         h.URL,
			ChunkNumber: h.ChunkNumber,
			Content:     h.Content,
			Summary:     h.Summary,
			Metadata:    h.Metadata,
			SourceID:    h.SourceID,
			Similarity:  h.Similarity,
		}
	}
	return out
}
