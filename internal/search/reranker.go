package search

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/ragmill/ragmill/internal/llm"
)

// RerankResult is one scored candidate.
type RerankResult struct {
	Index int     // position in the input slice
	Score float64 // relevance in [0,1]
}

// Reranker reorders candidates by joint (query, document) relevance.
type Reranker interface {
	// Rerank returns results sorted by score descending. topK of 0 keeps all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)
}

const rerankSystemPrompt = "You judge how relevant a passage is to a search query. " +
	"Respond with a single number between 0 and 1 and nothing else."

// LLMReranker scores each pair with a chat call. Slow but dependency-free on
// a dedicated cross-encoder service.
type LLMReranker struct {
	chat llm.Client
}

// NewLLMReranker wraps a chat client as a reranker.
func NewLLMReranker(chat llm.Client) *LLMReranker {
	return &LLMReranker{chat: chat}
}

func (r *LLMReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		prompt := "Query: " + query + "\n\nPassage:\n" + doc + "\n\nRelevance score:"
		reply, err := r.chat.Chat(ctx, rerankSystemPrompt, prompt)
		if err != nil {
			return nil, err
		}
		score, ok := parseScore(reply)
		if !ok {
			score = 0
		}
		results[i] = RerankResult{Index: i, Score: score}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// parseScore pulls the first float out of a model reply and clamps it.
func parseScore(reply string) (float64, bool) {
	for _, f := range strings.Fields(reply) {
		f = strings.Trim(f, ".,:;")
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		return v, true
	}
	return 0, false
}

var _ Reranker = (*LLMReranker)(nil)
