package graph

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/sync/semaphore"

	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/llm"
)

// DefaultExtractConcurrency bounds parallel LLM extraction calls per document.
const DefaultExtractConcurrency = 3

// Entity is one named thing mentioned in a chunk.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relationship connects two entities by name. Confidence is the model's
// 0..1 score for the claim; absent reads as certain.
type Relationship struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence,omitempty"`
}

// relKey identifies a relationship for merging; confidence is carried
// separately so duplicates keep their best score.
type relKey struct {
	From string
	To   string
	Type string
}

// extraction is the JSON shape the model is asked to return.
type extraction struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// ExtractStats counts one document's GraphRAG write.
type ExtractStats struct {
	ChunksProcessed int `json:"chunks_processed"`
	Entities        int `json:"entities"`
	Relationships   int `json:"relationships"`
	Mentions        int `json:"mentions"`
}

const extractSystemPrompt = "You extract entities and relationships from documentation text. " +
	`Reply with JSON only: {"entities":[{"name":"...","type":"..."}],` +
	`"relationships":[{"from":"...","to":"...","type":"...","confidence":0.9}]}. ` +
	"Use concise canonical names, SCREAMING_SNAKE_CASE relationship types, " +
	"and a confidence between 0 and 1 for each relationship."

// GraphRAG extracts entities per chunk and merges them into the graph.
type GraphRAG struct {
	runner      Runner
	chat        llm.Client
	concurrency int64
}

// NewGraphRAG wires the extractor. concurrency of 0 takes the default.
func NewGraphRAG(runner Runner, chat llm.Client, concurrency int) *GraphRAG {
	if concurrency <= 0 {
		concurrency = DefaultExtractConcurrency
	}
	return &GraphRAG{runner: runner, chat: chat, concurrency: int64(concurrency)}
}

// ExtractDocument runs entity extraction over a document's chunks and writes
// the merged result. Chunks that fail extraction are skipped with a log line.
func (g *GraphRAG) ExtractDocument(ctx context.Context, url string, chunks []string) (*ExtractStats, error) {
	sem := semaphore.NewWeighted(g.concurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		entities = map[Entity]int{}     // mention counts
		rels     = map[relKey]float64{} // best confidence per relationship
		stats    ExtractStats
	)

	for i, text := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			defer sem.Release(1)

			ex, err := g.extractChunk(ctx, text)
			if err != nil {
				slog.Warn("entity extraction skipped chunk",
					slog.String("url", url), slog.Int("chunk", i),
					slog.String("error", err.Error()))
				return
			}
			mu.Lock()
			defer mu.Unlock()
			stats.ChunksProcessed++
			for _, e := range ex.Entities {
				if e.Name == "" {
					continue
				}
				entities[e]++
			}
			for _, r := range ex.Relationships {
				if r.From == "" || r.To == "" {
					continue
				}
				c := r.Confidence
				if c <= 0 || c > 1 {
					c = 1.0
				}
				k := relKey{From: r.From, To: r.To, Type: r.Type}
				if c > rels[k] {
					rels[k] = c
				}
			}
		}(i, text)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return &stats, ragerr.Cancelled("entity extraction interrupted")
	}

	if err := g.writeExtraction(ctx, url, entities, rels, &stats); err != nil {
		return &stats, err
	}
	return &stats, nil
}

func (g *GraphRAG) extractChunk(ctx context.Context, text string) (*extraction, error) {
	reply, err := g.chat.Chat(ctx, extractSystemPrompt, text)
	if err != nil {
		return nil, err
	}
	var ex extraction
	if err := json.Unmarshal([]byte(jsonBody(reply)), &ex); err != nil {
		return nil, ragerr.New(ragerr.ErrCodeLLMFailed, "unparseable extraction reply", err)
	}
	return &ex, nil
}

// writeExtraction merges entities by (name,type), relationships by
// (from,to,type), and sets the MENTIONS count for this ingest.
func (g *GraphRAG) writeExtraction(ctx context.Context, url string, entities map[Entity]int, rels map[relKey]float64, stats *ExtractStats) error {
	if len(entities) == 0 {
		return nil
	}

	var entityRows []map[string]any
	for e, count := range entities {
		entityRows = append(entityRows, map[string]any{
			"name": e.Name, "type": e.Type, "count": count,
		})
		stats.Entities++
		stats.Mentions += count
	}
	if _, err := g.runner.Run(ctx, `
		MERGE (d:Document {url: $url})
		WITH d
		UNWIND $entities AS e
		MERGE (en:Entity {name: e.name, type: e.type})
		MERGE (d)-[m:MENTIONS]->(en)
		SET m.count = e.count`,
		map[string]any{"url": url, "entities": entityRows}); err != nil {
		return err
	}

	if len(rels) == 0 {
		return nil
	}
	var relRows []map[string]any
	for r, confidence := range rels {
		relRows = append(relRows, map[string]any{
			"from": r.From, "to": r.To, "type": r.Type, "confidence": confidence,
		})
		stats.Relationships++
	}
	_, err := g.runner.Run(ctx, `
		UNWIND $rels AS r
		MATCH (a:Entity {name: r.from})
		MATCH (b:Entity {name: r.to})
		MERGE (a)-[rel:RELATES_TO {type: r.type}]->(b)
		SET rel.confidence = r.confidence`,
		map[string]any{"rels": relRows})
	return err
}

// Enrich implements the retriever's graph enrichment: find up to maxEntities
// entities mentioned in the content and return their neighborhoods.
func (g *GraphRAG) Enrich(ctx context.Context, content string, maxEntities int) (string, error) {
	names := candidateNames(content)
	if len(names) == 0 {
		return "", nil
	}

	rows, err := g.runner.Run(ctx, `
		UNWIND $names AS name
		MATCH (e:Entity {name: name})
		OPTIONAL MATCH (e)-[r:RELATES_TO]-(n:Entity)
		RETURN e.name AS name, e.type AS type,
		       collect({name: n.name, type: n.type, rel: r.type})[..5] AS neighbors
		LIMIT $limit`,
		map[string]any{"names": names, "limit": maxEntities})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, row := range rows {
		name, _ := row["name"].(string)
		typ, _ := row["type"].(string)
		if name == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(name)
		if typ != "" {
			b.WriteString(" (" + typ + ")")
		}
		neighbors, _ := row["neighbors"].([]any)
		for _, nb := range neighbors {
			m, ok := nb.(map[string]any)
			if !ok {
				continue
			}
			nname, _ := m["name"].(string)
			ntype, _ := m["type"].(string)
			rel, _ := m["rel"].(string)
			if nname == "" {
				continue
			}
			b.WriteString("\n  -[" + rel + "]- " + nname)
			if ntype != "" {
				b.WriteString(" (" + ntype + ")")
			}
		}
	}
	return b.String(), nil
}

// jsonBody strips a markdown code fence around a JSON reply, if present.
func jsonBody(reply string) string {
	reply = strings.TrimSpace(reply)
	if strings.HasPrefix(reply, "```") {
		reply = strings.TrimPrefix(reply, "```json")
		reply = strings.TrimPrefix(reply, "```")
		reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")
	}
	return strings.TrimSpace(reply)
}

// candidateNames pulls capitalized tokens out of content as entity lookups.
func candidateNames(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := map[string]bool{}
	var names []string
	for _, f := range fields {
		if len(f) < 3 || !unicode.IsUpper([]rune(f)[0]) {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		names = append(names, f)
		if len(names) >= 20 {
			break
		}
	}
	return names
}
