package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// extractChat replies with a fixed extraction for every chunk.
type extractChat struct {
	reply string
	err   error
}

func (c *extractChat) Chat(context.Context, string, string) (string, error) {
	return c.reply, c.err
}

const extractionReply = `{
	"entities": [
		{"name": "HNSW", "type": "Algorithm"},
		{"name": "SQLite", "type": "Database"}
	],
	"relationships": [
		{"from": "HNSW", "to": "SQLite", "type": "STORED_IN", "confidence": 0.8}
	]
}`

func TestExtractDocumentMergesAcrossChunks(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGraphRAG(runner, &extractChat{reply: extractionReply}, 2)

	stats, err := g.ExtractDocument(context.Background(), "https://x.test/doc",
		[]string{"chunk one", "chunk two"})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.ChunksProcessed)
	// Entities dedupe by (name,type); mentions sum across chunks.
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 4, stats.Mentions)
	assert.Equal(t, 1, stats.Relationships)

	var sawMentions, sawRelates bool
	for _, c := range runner.calls {
		if strings.Contains(c, "MERGE (d)-[m:MENTIONS]->(en)") {
			sawMentions = true
		}
		if strings.Contains(c, "MERGE (a)-[rel:RELATES_TO {type: r.type}]->(b)") {
			sawRelates = true
		}
	}
	assert.True(t, sawMentions)
	assert.True(t, sawRelates)
}

// relationshipRows digs the $rels parameter out of the RELATES_TO write.
func relationshipRows(t *testing.T, runner *fakeRunner) []map[string]any {
	t.Helper()
	for i, c := range runner.calls {
		if !strings.Contains(c, "RELATES_TO") {
			continue
		}
		rows, ok := runner.params[i]["rels"].([]map[string]any)
		require.True(t, ok)
		return rows
	}
	t.Fatal("no RELATES_TO write")
	return nil
}

func TestExtractDocumentRelationshipConfidence(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGraphRAG(runner, &extractChat{reply: extractionReply}, 1)

	_, err := g.ExtractDocument(context.Background(), "u", []string{"a"})
	require.NoError(t, err)

	rows := relationshipRows(t, runner)
	require.Len(t, rows, 1)
	assert.Equal(t, "STORED_IN", rows[0]["type"])
	assert.Equal(t, 0.8, rows[0]["confidence"])
}

func TestExtractDocumentConfidenceDefaults(t *testing.T) {
	reply := `{
		"entities": [{"name": "HNSW", "type": "Algorithm"}, {"name": "SQLite", "type": "Database"}],
		"relationships": [{"from": "HNSW", "to": "SQLite", "type": "STORED_IN"}]
	}`
	runner := &fakeRunner{}
	g := NewGraphRAG(runner, &extractChat{reply: reply}, 1)

	_, err := g.ExtractDocument(context.Background(), "u", []string{"a"})
	require.NoError(t, err)

	rows := relationshipRows(t, runner)
	require.Len(t, rows, 1)
	assert.Equal(t, 1.0, rows[0]["confidence"])
}

func TestExtractDocumentSkipsFailedChunks(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGraphRAG(runner, &extractChat{err: errors.New("model down")}, 1)

	stats, err := g.ExtractDocument(context.Background(), "u", []string{"a", "b"})
	require.NoError(t, err)
	assert.Zero(t, stats.ChunksProcessed)
	assert.Zero(t, stats.Entities)
	assert.Empty(t, runner.calls)
}

func TestExtractDocumentFencedReply(t *testing.T) {
	fenced := "```json\n" + extractionReply + "\n```"
	runner := &fakeRunner{}
	g := NewGraphRAG(runner, &extractChat{reply: fenced}, 1)

	stats, err := g.ExtractDocument(context.Background(), "u", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entities)
}

func TestEnrichFormatsNeighborhood(t *testing.T) {
	runner := &fakeRunner{respond: func(cypher string, params map[string]any) ([]map[string]any, error) {
		if !strings.Contains(cypher, "MATCH (e:Entity {name: name})") {
			return nil, nil
		}
		return []map[string]any{{
			"name": "HNSW",
			"type": "Algorithm",
			"neighbors": []any{
				map[string]any{"name": "SQLite", "type": "Database", "rel": "STORED_IN"},
			},
		}}, nil
	}}
	g := NewGraphRAG(runner, nil, 1)

	out, err := g.Enrich(context.Background(), "Tuning HNSW indexes", 3)
	require.NoError(t, err)
	assert.Contains(t, out, "HNSW (Algorithm)")
	assert.Contains(t, out, "-[STORED_IN]- SQLite (Database)")
}

func TestEnrichNoCandidates(t *testing.T) {
	runner := &fakeRunner{}
	g := NewGraphRAG(runner, nil, 1)

	out, err := g.Enrich(context.Background(), "all lowercase text here", 3)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, runner.calls)
}

func TestJSONBody(t *testing.T) {
	assert.Equal(t, `{"a":1}`, jsonBody("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, jsonBody(" {\"a\":1} "))
}

func TestCandidateNames(t *testing.T) {
	names := candidateNames("The Agent uses HNSW and the agent again with SQLite.")
	assert.Equal(t, []string{"The", "Agent", "HNSW", "SQLite"}, names)
	assert.Empty(t, candidateNames("no capitals at all"))
}
