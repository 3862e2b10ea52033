// Package ingest runs the document pipeline: chunk, enrich, embed, write.
// Documents stream in from the crawl dispatcher; rows and vectors come out
// the other end, and the source catalog is refreshed when the stream ends.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ragmill/ragmill/internal/chunk"
	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/crawl"
	"github.com/ragmill/ragmill/internal/embed"
	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/llm"
	"github.com/ragmill/ragmill/internal/store"
)

// sourceSampleChunks is how many leading chunks per source feed the source
// summary prompt.
const sourceSampleChunks = 25

// Pipeline ingests crawled documents into the vector store.
type Pipeline struct {
	store    *store.Store
	embedder embed.Embedder
	chat     llm.Client // nil when no LLM is configured
	flags    config.FeatureFlags
	cfg      config.CrawlConfig

	urls *keyMutex

	// entities, when set, receives each document's chunk contents after the
	// store write. Failures are logged, never fatal.
	entities func(ctx context.Context, url string, chunks []string) error
}

// New builds a pipeline. chat may be nil; contextual summaries, code
// summaries and source summaries then fall back to their non-LLM forms.
func New(st *store.Store, embedder embed.Embedder, chat llm.Client, flags config.FeatureFlags, cfg config.CrawlConfig) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = config.DefaultChunkSize
	}
	if cfg.MinCodeBlockLen <= 0 {
		cfg.MinCodeBlockLen = config.DefaultMinCodeBlockLen
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = config.DefaultMaxConcurrent
	}
	return &Pipeline{
		store:    st,
		embedder: embedder,
		chat:     chat,
		flags:    flags,
		cfg:      cfg,
		urls:     newKeyMutex(),
	}
}

// WithEntitySink adds a per-document entity extraction hook, used when
// GraphRAG is enabled.
func (p *Pipeline) WithEntitySink(fn func(ctx context.Context, url string, chunks []string) error) *Pipeline {
	p.entities = fn
	return p
}

// Result summarizes one ingest run.
type Result struct {
	PagesIngested int         `json:"pages_ingested"`
	ChunksStored  int         `json:"chunks_stored"`
	CodeExamples  int         `json:"code_examples_stored"`
	Sources       []string    `json:"sources"`
	Stats         chunk.Stats `json:"stats"`
}

// sourceAccum collects per-source material while documents stream through.
type sourceAccum struct {
	sample     []string
	sampleLeft int
	wordCount  int
}

// Run consumes a document stream to completion. Per-document failures are
// logged and skipped; a store failure or cancellation aborts the run after
// the current document's atomic write finishes.
func (p *Pipeline) Run(ctx context.Context, docs <-chan crawl.Document) (*Result, error) {
	var (
		mu      sync.Mutex
		res     Result
		accums  = make(map[string]*sourceAccum)
		urls    []string
		bodies  []string
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(p.cfg.MaxConcurrent)

	for doc := range docs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			chunksStored, codeStored, words, sampled, err := p.ingestDocument(gctx, doc)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			res.PagesIngested++
			res.ChunksStored += chunksStored
			res.CodeExamples += codeStored
			urls = append(urls, doc.URL)
			bodies = append(bodies, doc.Markdown)

			src := SourceID(doc.URL)
			acc, ok := accums[src]
			if !ok {
				acc = &sourceAccum{sampleLeft: sourceSampleChunks}
				accums[src] = acc
			}
			acc.wordCount += words
			for _, s := range sampled {
				if acc.sampleLeft == 0 {
					break
				}
				acc.sample = append(acc.sample, s)
				acc.sampleLeft--
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return &res, ragerr.Cancelled(fmt.Sprintf("%d pages ingested", res.PagesIngested))
		}
		return &res, err
	}

	for src, acc := range accums {
		summary := "Content from " + src
		if p.chat != nil {
			summary = llm.SourceSummary(ctx, p.chat, src, strings.Join(acc.sample, "\n\n"))
		}
		if uerr := p.store.UpsertSource(ctx, src, summary, acc.wordCount); uerr != nil {
			return &res, uerr
		}
		res.Sources = append(res.Sources, src)
	}

	res.Stats = chunk.Aggregate(urls, bodies)
	if ferr := p.store.Flush(); ferr != nil {
		slog.Warn("store flush failed", slog.String("error", ferr.Error()))
	}
	return &res, nil
}

// ingestDocument chunks, enriches, embeds and writes one document under its
// URL lock. Returns stored counts, the chunk word total, and sample chunks
// for the source summary.
func (p *Pipeline) ingestDocument(ctx context.Context, doc crawl.Document) (int, int, int, []string, error) {
	pieces := chunk.Split(doc.Markdown, p.cfg.ChunkSize)
	if len(pieces) == 0 {
		return 0, 0, 0, nil, nil
	}
	src := SourceID(doc.URL)

	// Embedding input may differ from stored content only through the
	// contextual summary, which we keep in the content as well so the
	// retrieved text carries its own situation.
	contents := pieces
	if p.flags.ContextualEmbeddings && p.chat != nil {
		contents = make([]string, len(pieces))
		for i, piece := range pieces {
			contents[i], _ = llm.ContextualContent(ctx, p.chat, doc.Markdown, piece)
		}
	}

	vectors, err := p.embedder.Embed(ctx, contents)
	if err != nil {
		return 0, 0, 0, nil, err
	}

	words := 0
	chunks := make([]store.Chunk, len(contents))
	for i, content := range contents {
		meta := chunk.Extract(content)
		words += meta.WordCount
		chunks[i] = store.Chunk{
			URL:         doc.URL,
			ChunkNumber: i,
			Content:     content,
			Metadata: map[string]any{
				"headers":        meta.Headers,
				"char_count":     meta.CharCount,
				"word_count":     meta.WordCount,
				"contains_table": meta.HasTable,
			},
			SourceID:  src,
			Embedding: vectors[i],
		}
	}

	var examples []store.CodeExample
	if p.flags.AgenticRAG {
		examples, err = p.codeExamples(ctx, doc, src)
		if err != nil {
			return 0, 0, 0, nil, err
		}
	}

	unlock := p.urls.Lock(doc.URL)
	defer unlock()

	if err := p.store.DeleteByURL(ctx, doc.URL); err != nil {
		return 0, 0, 0, nil, err
	}
	if err := p.store.InsertChunks(ctx, chunks); err != nil {
		return 0, 0, 0, nil, err
	}
	if len(examples) > 0 {
		if err := p.store.InsertCodeExamples(ctx, examples); err != nil {
			return 0, 0, 0, nil, err
		}
	}

	if p.flags.GraphRAG && p.entities != nil {
		if eerr := p.entities(ctx, doc.URL, contents); eerr != nil {
			slog.Warn("entity extraction failed",
				slog.String("url", doc.URL), slog.String("error", eerr.Error()))
		}
	}

	sample := contents
	if len(sample) > sourceSampleChunks {
		sample = sample[:sourceSampleChunks]
	}
	return len(chunks), len(examples), words, sample, nil
}

// codeExamples extracts, summarizes and embeds oversized code blocks.
func (p *Pipeline) codeExamples(ctx context.Context, doc crawl.Document, src string) ([]store.CodeExample, error) {
	blocks := chunk.ExtractCodeBlocks(doc.Markdown, p.cfg.MinCodeBlockLen)
	if len(blocks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(blocks))
	summaries := make([]string, len(blocks))
	for i, b := range blocks {
		summaries[i] = "Code example for demonstration purposes."
		if p.chat != nil {
			summaries[i] = llm.CodeSummary(ctx, p.chat, b.Code, b.Before, b.After)
		}
		texts[i] = b.Code + "\n\nSummary: " + summaries[i]
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	examples := make([]store.CodeExample, len(blocks))
	for i, b := range blocks {
		examples[i] = store.CodeExample{
			URL:         doc.URL,
			ChunkNumber: b.Index,
			Content:     b.Code,
			Summary:     summaries[i],
			Metadata: map[string]any{
				"language":       b.Language,
				"block_index":    b.Index,
				"before_context": b.Before,
				"after_context":  b.After,
				"char_count":     len(b.Code),
				"word_count":     len(strings.Fields(b.Code)),
			},
			SourceID:  src,
			Embedding: vectors[i],
		}
	}
	return examples, nil
}

// SourceID derives the catalog key for a URL: its hostname.
func SourceID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
