// Package store owns the vector store: chunk and code-example rows in
// SQLite (with FTS5 for text search) and HNSW indexes for approximate
// nearest-neighbor search over their embeddings.
//
// Ingest is idempotent per URL by contract: callers delete a URL's rows
// before inserting the fresh ones, so inserts never race an existing
// (url, chunk_number) pair.
package store

// Chunk is one row of crawled_pages.
type Chunk struct {
	URL         string
	ChunkNumber int
	Content     string
	Metadata    map[string]any
	SourceID    string
	Embedding   []float32
}

// CodeExample is one row of code_examples: an extracted code block plus its
// generated summary.
type CodeExample struct {
	URL         string
	ChunkNumber int
	Content     string
	Summary     string
	Metadata    map[string]any
	SourceID    string
	Embedding   []float32
}

// Source is one row of the source catalog.
type Source struct {
	SourceID   string `json:"source_id"`
	Summary    string `json:"summary"`
	TotalWords int    `json:"total_words"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// SearchResult is one hit from vector or text search.
type SearchResult struct {
	ID          int64          `json:"id"`
	URL         string         `json:"url"`
	ChunkNumber int            `json:"chunk_number"`
	Content     string         `json:"content"`
	Summary     string         `json:"summary,omitempty"` // code examples only
	Metadata    map[string]any `json:"metadata"`
	SourceID    string         `json:"source_id"`
	// Similarity is cosine similarity for vector hits and the negated
	// bm25 rank for text hits; within one result set, higher is better.
	Similarity float64 `json:"similarity"`
}
