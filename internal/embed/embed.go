// Package embed turns text into vectors via an OpenAI-compatible embeddings
// endpoint.
//
// The degradation contract: Embed always returns one vector per input, in
// input order. A failing batch is retried with backoff, then split into
// per-item requests; an item that still fails gets a zero vector and a log
// line. Partial upstream failure never fails an ingest.
package embed

import (
	"context"

	"github.com/ragmill/ragmill/internal/config"
)

// Embedder is the capability the ingest and query paths consume.
type Embedder interface {
	// Embed returns one vector of Dimensions() floats per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector width D.
	Dimensions() int
}

// NewFromConfig builds the production embedder.
func NewFromConfig(cfg config.EmbeddingConfig) Embedder {
	return NewOpenAI(cfg)
}

// ZeroVector returns the all-zero vector used for failed items. Zero vectors
// have no direction, so they match nothing in cosine space; the row stays
// text-searchable.
func ZeroVector(dims int) []float32 {
	return make([]float32, dims)
}

// IsZero reports whether v is the degradation marker.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
