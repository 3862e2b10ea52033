// Package search retrieves stored chunks for a query: vector similarity,
// optionally fused with full-text matches, reranked, and enriched with
// graph neighborhoods.
package search

import "context"

// DefaultMatchCount is the result budget when the caller does not set one.
const DefaultMatchCount = 10

// enrichTopK and enrichEntities bound the graph-enrichment pass.
const (
	enrichTopK     = 5
	enrichEntities = 3
)

// Options selects how a query is executed.
type Options struct {
	SourceFilter string
	MatchCount   int
	Hybrid       bool
	Rerank       bool
	GraphEnrich  bool
}

func (o Options) withDefaults() Options {
	if o.MatchCount <= 0 {
		o.MatchCount = DefaultMatchCount
	}
	return o
}

// Result is one retrieved chunk or code example.
type Result struct {
	URL          string         `json:"url"`
	ChunkNumber  int            `json:"chunk_number"`
	Content      string         `json:"content"`
	Summary      string         `json:"summary,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SourceID     string         `json:"source_id"`
	Similarity   float64        `json:"similarity"`
	RerankScore  float64        `json:"rerank_score,omitempty"`
	GraphContext string         `json:"graph_context,omitempty"`
}

// GraphEnricher attaches neighborhood context for entities mentioned in a
// chunk. Implementations live next to the property-graph client.
type GraphEnricher interface {
	Enrich(ctx context.Context, content string, maxEntities int) (string, error)
}
