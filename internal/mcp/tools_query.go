package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/search"
	"github.com/ragmill/ragmill/internal/store"
	"github.com/ragmill/ragmill/internal/telemetry"
	"github.com/ragmill/ragmill/internal/validation"
)

type GetSourcesInput struct{}

type GetSourcesOutput struct {
	Envelope
	Sources []store.Source `json:"sources"`
	Count   int            `json:"count"`
}

func (s *Server) handleGetSources(ctx context.Context, _ *mcp.CallToolRequest, _ GetSourcesInput) (*mcp.CallToolResult, GetSourcesOutput, error) {
	sources, err := s.deps.Store.ListSources(ctx)
	if err != nil {
		return nil, GetSourcesOutput{Envelope: failEnvelope(err)}, nil
	}
	if sources == nil {
		sources = []store.Source{}
	}
	return nil, GetSourcesOutput{
		Envelope: okEnvelope(),
		Sources:  sources,
		Count:    len(sources),
	}, nil
}

type RAGQueryInput struct {
	Query        string `json:"query" jsonschema:"the search query"`
	SourceFilter string `json:"source_filter,omitempty" jsonschema:"restrict results to one source domain"`
	MatchCount   int    `json:"match_count,omitempty" jsonschema:"number of results, default 10"`
}

type RAGQueryOutput struct {
	Envelope
	Query        string          `json:"query,omitempty"`
	SourceFilter string          `json:"source_filter,omitempty"`
	SearchMode   string          `json:"search_mode,omitempty"`
	Reranked     bool            `json:"reranked,omitempty"`
	Results      []search.Result `json:"results"`
	Count        int             `json:"count"`
}

func (s *Server) handleRAGQuery(ctx context.Context, _ *mcp.CallToolRequest, in RAGQueryInput) (*mcp.CallToolResult, RAGQueryOutput, error) {
	if err := validation.Query(in.Query); err != nil {
		return nil, RAGQueryOutput{Envelope: failEnvelope(err)}, nil
	}

	flags := s.deps.Config.Flags
	opts := search.Options{
		SourceFilter: in.SourceFilter,
		MatchCount:   in.MatchCount,
		Hybrid:       flags.HybridSearch,
		Rerank:       flags.Reranking,
	}
	results, err := s.deps.Retriever.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, RAGQueryOutput{Envelope: failEnvelope(err)}, nil
	}
	if results == nil {
		results = []search.Result{}
	}

	mode := "vector"
	if flags.HybridSearch {
		mode = "hybrid"
	}
	return nil, RAGQueryOutput{
		Envelope:     okEnvelope(),
		Query:        in.Query,
		SourceFilter: in.SourceFilter,
		SearchMode:   mode,
		Reranked:     flags.Reranking,
		Results:      results,
		Count:        len(results),
	}, nil
}

type SearchCodeInput struct {
	Query      string `json:"query" jsonschema:"what the code example should do"`
	SourceID   string `json:"source_id,omitempty" jsonschema:"restrict results to one source domain"`
	MatchCount int    `json:"match_count,omitempty" jsonschema:"number of results, default 10"`
}

type SearchCodeOutput struct {
	Envelope
	Query   string          `json:"query,omitempty"`
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

func (s *Server) handleSearchCode(ctx context.Context, _ *mcp.CallToolRequest, in SearchCodeInput) (*mcp.CallToolResult, SearchCodeOutput, error) {
	if err := validation.Query(in.Query); err != nil {
		return nil, SearchCodeOutput{Envelope: failEnvelope(err)}, nil
	}

	flags := s.deps.Config.Flags
	opts := search.Options{
		SourceFilter: in.SourceID,
		MatchCount:   in.MatchCount,
		Hybrid:       flags.HybridSearch,
		Rerank:       flags.Reranking,
	}
	results, err := s.deps.Retriever.SearchCode(ctx, in.Query, opts)
	if err != nil {
		return nil, SearchCodeOutput{Envelope: failEnvelope(err)}, nil
	}
	if results == nil {
		results = []search.Result{}
	}
	return nil, SearchCodeOutput{
		Envelope: okEnvelope(),
		Query:    in.Query,
		Results:  results,
		Count:    len(results),
	}, nil
}

type GraphRAGQueryInput struct {
	Query              string `json:"query" jsonschema:"the search query"`
	SourceFilter       string `json:"source_filter,omitempty" jsonschema:"restrict results to one source domain"`
	MatchCount         int    `json:"match_count,omitempty" jsonschema:"number of results, default 10"`
	UseGraphEnrichment *bool  `json:"use_graph_enrichment,omitempty" jsonschema:"attach entity-graph context to top results, default true"`
}

type GraphRAGQueryOutput struct {
	Envelope
	Query    string          `json:"query,omitempty"`
	Enriched bool            `json:"graph_enriched"`
	Results  []search.Result `json:"results"`
	Count    int             `json:"count"`
}

func (s *Server) handleGraphRAGQuery(ctx context.Context, _ *mcp.CallToolRequest, in GraphRAGQueryInput) (*mcp.CallToolResult, GraphRAGQueryOutput, error) {
	if err := validation.Query(in.Query); err != nil {
		return nil, GraphRAGQueryOutput{Envelope: failEnvelope(err)}, nil
	}

	flags := s.deps.Config.Flags
	enrich := flags.GraphRAG && s.deps.GraphRAG != nil
	if in.UseGraphEnrichment != nil && !*in.UseGraphEnrichment {
		enrich = false
	}

	opts := search.Options{
		SourceFilter: in.SourceFilter,
		MatchCount:   in.MatchCount,
		Hybrid:       flags.HybridSearch,
		Rerank:       flags.Reranking,
		GraphEnrich:  enrich,
	}
	results, err := s.deps.Retriever.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, GraphRAGQueryOutput{Envelope: failEnvelope(err)}, nil
	}
	if results == nil {
		results = []search.Result{}
	}
	return nil, GraphRAGQueryOutput{
		Envelope: okEnvelope(),
		Query:    in.Query,
		Enriched: enrich,
		Results:  results,
		Count:    len(results),
	}, nil
}

type QueryMetricsInput struct{}

type QueryMetricsOutput struct {
	Envelope
	Metrics telemetry.Snapshot `json:"metrics"`
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.CallToolRequest, _ QueryMetricsInput) (*mcp.CallToolResult, QueryMetricsOutput, error) {
	return nil, QueryMetricsOutput{
		Envelope: okEnvelope(),
		Metrics:  s.deps.Metrics.Snapshot(),
	}, nil
}

type DeleteSourceInput struct {
	SourceID string `json:"source_id" jsonschema:"the source domain to delete"`
}

type DeleteSourceOutput struct {
	Envelope
	SourceID string `json:"source_id,omitempty"`
}

func (s *Server) handleDeleteSource(ctx context.Context, _ *mcp.CallToolRequest, in DeleteSourceInput) (*mcp.CallToolResult, DeleteSourceOutput, error) {
	if strings.TrimSpace(in.SourceID) == "" {
		err := ragerr.ValidationError("source_id is required", nil)
		return nil, DeleteSourceOutput{Envelope: failEnvelope(err)}, nil
	}
	if err := s.deps.Store.DeleteSource(ctx, in.SourceID); err != nil {
		return nil, DeleteSourceOutput{Envelope: failEnvelope(err)}, nil
	}
	return nil, DeleteSourceOutput{Envelope: okEnvelope(), SourceID: in.SourceID}, nil
}
