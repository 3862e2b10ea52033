package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/store"
	"github.com/ragmill/ragmill/internal/telemetry"
)

// queryEmbedder returns a fixed vector for every input.
type queryEmbedder struct{ vec []float32 }

func (q queryEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = q.vec
	}
	return out, nil
}

func (q queryEmbedder) Dimensions() int { return len(q.vec) }

func memStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(config.StoreConfig{}, 3)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedHybridFixture stores four single-chunk pages. u1-u3 carry embeddings at
// decreasing similarity to the query vector [1,0,0]; u4 is a degraded row
// reachable only through text search. u3 and u4 both mention "needle".
func seedHybridFixture(t *testing.T, s *store.Store) {
	t.Helper()
	chunks := []store.Chunk{
		{URL: "u1", ChunkNumber: 0, Content: "plain alpha content", SourceID: "src", Embedding: []float32{1, 0, 0}},
		{URL: "u2", ChunkNumber: 0, Content: "plain beta content", SourceID: "src", Embedding: []float32{0.9, 0.4, 0}},
		{URL: "u3", ChunkNumber: 0, Content: "needle in here", SourceID: "src", Embedding: []float32{0.7, 0.7, 0}},
		{URL: "u4", ChunkNumber: 0, Content: "another needle mention", SourceID: "src", Embedding: []float32{0, 0, 0}},
	}
	require.NoError(t, s.InsertChunks(context.Background(), chunks))
}

func resultURLs(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.URL
	}
	return out
}

func TestSearchVectorOrder(t *testing.T) {
	s := memStore(t)
	seedHybridFixture(t, s)
	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, nil, nil, nil)

	results, err := r.Search(context.Background(), "anything", Options{MatchCount: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"u1", "u2", "u3"}, resultURLs(results))
	assert.GreaterOrEqual(t, results[0].Similarity, results[1].Similarity)
	assert.GreaterOrEqual(t, results[1].Similarity, results[2].Similarity)
}

func TestSearchHybridMergeOrder(t *testing.T) {
	s := memStore(t)
	seedHybridFixture(t, s)
	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, nil, nil, nil)

	results, err := r.Search(context.Background(), "needle", Options{MatchCount: 4, Hybrid: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u1", "u2", "u4"}, resultURLs(results))
}

// reverseReranker scores later documents higher.
type reverseReranker struct{ err error }

func (rr reverseReranker) Rerank(_ context.Context, _ string, docs []string, topK int) ([]RerankResult, error) {
	if rr.err != nil {
		return nil, rr.err
	}
	out := make([]RerankResult, len(docs))
	for i := range docs {
		j := len(docs) - 1 - i
		out[i] = RerankResult{Index: j, Score: float64(len(docs)-i) / float64(len(docs))}
	}
	if topK > 0 && topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

func TestSearchRerankReorders(t *testing.T) {
	s := memStore(t)
	seedHybridFixture(t, s)
	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, reverseReranker{}, nil, nil)

	results, err := r.Search(context.Background(), "anything", Options{MatchCount: 3, Rerank: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2", "u1"}, resultURLs(results))
	assert.NotZero(t, results[0].RerankScore)
}

func TestSearchRerankFailureKeepsOrder(t *testing.T) {
	s := memStore(t)
	seedHybridFixture(t, s)
	rr := reverseReranker{err: errors.New("scoring backend down")}
	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, rr, nil, nil)

	results, err := r.Search(context.Background(), "anything", Options{MatchCount: 3, Rerank: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, resultURLs(results))
}

// fakeEnricher attaches a marker, failing on request.
type fakeEnricher struct {
	failFor string
	calls   int
}

func (f *fakeEnricher) Enrich(_ context.Context, content string, _ int) (string, error) {
	f.calls++
	if f.failFor != "" && content == f.failFor {
		return "", errors.New("graph offline")
	}
	return "neighbors of " + content, nil
}

func TestSearchGraphEnrich(t *testing.T) {
	s := memStore(t)
	seedHybridFixture(t, s)
	en := &fakeEnricher{failFor: "plain beta content"}
	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, nil, en, nil)

	results, err := r.Search(context.Background(), "anything", Options{MatchCount: 3, GraphEnrich: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "neighbors of plain alpha content", results[0].GraphContext)
	// Enrichment failure is skipped, not surfaced.
	assert.Empty(t, results[1].GraphContext)
	assert.Equal(t, "neighbors of needle in here", results[2].GraphContext)
}

func TestSearchCode(t *testing.T) {
	s := memStore(t)
	examples := []store.CodeExample{{
		URL:         "u1",
		ChunkNumber: 0,
		Content:     "func Dial() {}",
		Summary:     "Opens a connection.",
		SourceID:    "src",
		Embedding:   []float32{1, 0, 0},
	}}
	require.NoError(t, s.InsertCodeExamples(context.Background(), examples))

	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, nil, nil, nil)
	results, err := r.SearchCode(context.Background(), "dial", Options{MatchCount: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Opens a connection.", results[0].Summary)
}

func TestSearchRecordsTelemetry(t *testing.T) {
	s := memStore(t)
	seedHybridFixture(t, s)
	m := telemetry.NewMetrics()
	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, nil, nil, m)

	_, err := r.Search(context.Background(), "needle", Options{Hybrid: true})
	require.NoError(t, err)

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ByMode[telemetry.ModeHybrid])
}

func TestSearchSourceFilter(t *testing.T) {
	s := memStore(t)
	chunks := []store.Chunk{
		{URL: "a", ChunkNumber: 0, Content: "from a", SourceID: "one", Embedding: []float32{1, 0, 0}},
		{URL: "b", ChunkNumber: 0, Content: "from b", SourceID: "two", Embedding: []float32{0.9, 0.1, 0}},
	}
	require.NoError(t, s.InsertChunks(context.Background(), chunks))

	r := NewRetriever(s, queryEmbedder{vec: []float32{1, 0, 0}}, nil, nil, nil)
	results, err := r.Search(context.Background(), "q", Options{SourceFilter: "two"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].URL)
}
