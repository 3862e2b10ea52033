package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/ragmill/ragmill/internal/config"
	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Store is the vector store facade: SQLite rows plus HNSW indexes for pages
// and code examples.
type Store struct {
	db    *sql.DB
	pages *vectorIndex
	code  *vectorIndex
	dims  int
	batch int
	path  string

	// writers bounds concurrent write transactions; SQLite serializes them
	// anyway, so queueing past this bound only wastes goroutines.
	writers *semaphore.Weighted
}

// Open opens the store at cfg.Path (empty for in-memory), loading or
// rebuilding the vector indexes.
func Open(cfg config.StoreConfig, dims int) (*Store, error) {
	db, err := openDB(cfg.Path)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}

	batch := cfg.WriteBatch
	if batch <= 0 {
		batch = config.DefaultWriteBatch
	}
	workers := cfg.WriteWorkers
	if workers <= 0 {
		workers = config.DefaultMaxConcurrent
	}

	s := &Store{
		db:      db,
		pages:   newVectorIndex(dims),
		code:    newVectorIndex(dims),
		dims:    dims,
		batch:   batch,
		path:    cfg.Path,
		writers: semaphore.NewWeighted(int64(workers)),
	}

	if err := s.restoreIndex(s.pages, s.pagesIndexPath(), "crawled_pages", pageKey); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.restoreIndex(s.code, s.codeIndexPath(), "code_examples", codeKey); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) pagesIndexPath() string { return s.path + ".pages.hnsw" }
func (s *Store) codeIndexPath() string  { return s.path + ".code.hnsw" }

func pageKey(id int64) string { return fmt.Sprintf("page:%d", id) }
func codeKey(id int64) string { return fmt.Sprintf("code:%d", id) }

// keyRowID parses the row ID back out of a vector key.
func keyRowID(key string) (int64, bool) {
	_, num, ok := strings.Cut(key, ":")
	if !ok {
		return 0, false
	}
	var id int64
	if _, err := fmt.Sscanf(num, "%d", &id); err != nil {
		return 0, false
	}
	return id, true
}

// restoreIndex loads a persisted index, falling back to a rebuild from the
// embedding column when the sidecar files are missing or stale.
func (s *Store) restoreIndex(idx *vectorIndex, path, table string, key func(int64) string) error {
	if s.path != "" {
		loaded, err := idx.load(path)
		if err != nil {
			slog.Warn("vector index load failed, rebuilding",
				slog.String("path", path),
				slog.String("error", err.Error()))
		} else if loaded {
			return nil
		}
	}

	rows, err := s.db.Query(fmt.Sprintf(
		"SELECT id, embedding FROM %s WHERE embedding IS NOT NULL", table))
	if err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
		}
		if v := decodeVector(blob); v != nil {
			ids = append(ids, key(id))
			vecs = append(vecs, v)
		}
	}
	if err := rows.Err(); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	if len(ids) > 0 {
		if err := idx.add(ids, vecs); err != nil {
			return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
		}
		slog.Info("vector index rebuilt",
			slog.String("table", table),
			slog.Int("vectors", len(ids)))
	}
	return nil
}

// UpsertSource creates or refreshes a source catalog entry.
func (s *Store) UpsertSource(ctx context.Context, sourceID, summary string, totalWords int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (source_id, summary, total_word_count)
		VALUES (?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			summary = excluded.summary,
			total_word_count = excluded.total_word_count,
			updated_at = datetime('now')`,
		sourceID, summary, totalWords)
	if err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	return nil
}

// ListSources returns the source catalog ordered by source ID.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, summary, total_word_count, created_at, updated_at
		FROM sources ORDER BY source_id`)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.SourceID, &src.Summary, &src.TotalWords,
			&src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteByURL removes every chunk and code example for a URL, including
// their vectors. The first half of the per-URL re-ingest contract.
func (s *Store) DeleteByURL(ctx context.Context, url string) error {
	if err := s.writers.Acquire(ctx, 1); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	defer s.writers.Release(1)

	if err := s.deleteRows(ctx, "crawled_pages", "url", url, s.pages, pageKey); err != nil {
		return err
	}
	return s.deleteRows(ctx, "code_examples", "url", url, s.code, codeKey)
}

// DeleteSource removes a source and all of its rows.
func (s *Store) DeleteSource(ctx context.Context, sourceID string) error {
	if err := s.deleteRows(ctx, "crawled_pages", "source_id", sourceID, s.pages, pageKey); err != nil {
		return err
	}
	if err := s.deleteRows(ctx, "code_examples", "source_id", sourceID, s.code, codeKey); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM sources WHERE source_id = ?", sourceID); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	return nil
}

func (s *Store) deleteRows(ctx context.Context, table, col, val string, idx *vectorIndex, key func(int64) string) error {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, col), val)
	if err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	var keys []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
		}
		keys = append(keys, key(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	if len(keys) == 0 {
		return nil
	}

	idx.remove(keys)
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, col), val); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	return nil
}

// InsertChunks writes chunks in batches and indexes their vectors.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if err := s.writers.Acquire(ctx, 1); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	defer s.writers.Release(1)

	for start := 0; start < len(chunks); start += s.batch {
		end := start + s.batch
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := s.insertChunkBatch(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertChunkBatch(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	defer tx.Rollback()

	keys := make([]string, 0, len(chunks))
	vecs := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
		}
		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO crawled_pages (url, chunk_number, content, metadata, embedding, source_id)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			c.URL, c.ChunkNumber, c.Content, string(meta),
			encodeVector(c.Embedding), c.SourceID).Scan(&id)
		if err != nil {
			return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
		}
		keys = append(keys, pageKey(id))
		vecs = append(vecs, c.Embedding)
	}
	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	if err := s.pages.add(keys, vecs); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	return nil
}

// InsertCodeExamples writes code examples in batches and indexes their
// vectors.
func (s *Store) InsertCodeExamples(ctx context.Context, examples []CodeExample) error {
	if err := s.writers.Acquire(ctx, 1); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	defer s.writers.Release(1)

	for start := 0; start < len(examples); start += s.batch {
		end := start + s.batch
		if end > len(examples) {
			end = len(examples)
		}
		if err := s.insertCodeBatch(ctx, examples[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertCodeBatch(ctx context.Context, examples []CodeExample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	defer tx.Rollback()

	keys := make([]string, 0, len(examples))
	vecs := make([][]float32, 0, len(examples))
	for _, e := range examples {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
		}
		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO code_examples (url, chunk_number, content, summary, metadata, embedding, source_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			e.URL, e.ChunkNumber, e.Content, e.Summary, string(meta),
			encodeVector(e.Embedding), e.SourceID).Scan(&id)
		if err != nil {
			return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
		}
		keys = append(keys, codeKey(id))
		vecs = append(vecs, e.Embedding)
	}
	if err := tx.Commit(); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	if err := s.code.add(keys, vecs); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	return nil
}

// VectorSearch returns the top-k chunks by cosine similarity, optionally
// filtered to one source.
func (s *Store) VectorSearch(ctx context.Context, query []float32, k int, sourceID string) ([]SearchResult, error) {
	return s.vectorSearch(ctx, s.pages, "crawled_pages", query, k, sourceID)
}

// VectorSearchCode is VectorSearch over code examples.
func (s *Store) VectorSearchCode(ctx context.Context, query []float32, k int, sourceID string) ([]SearchResult, error) {
	return s.vectorSearch(ctx, s.code, "code_examples", query, k, sourceID)
}

func (s *Store) vectorSearch(ctx context.Context, idx *vectorIndex, table string, query []float32, k int, sourceID string) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	fetch := k
	if sourceID != "" {
		// Over-fetch so a source filter can still fill k results.
		fetch = k * 4
	}
	hits, err := idx.search(query, fetch)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]any, 0, len(hits))
	placeholders := make([]string, 0, len(hits))
	for _, h := range hits {
		id, ok := keyRowID(h.id)
		if !ok {
			continue
		}
		ids = append(ids, id)
		placeholders = append(placeholders, "?")
	}

	summaryCol := "''"
	if table == "code_examples" {
		summaryCol = "summary"
	}
	q := fmt.Sprintf(`
		SELECT id, url, chunk_number, content, %s, metadata, source_id
		FROM %s WHERE id IN (%s)`,
		summaryCol, table, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, q, ids...)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	defer rows.Close()

	byID := make(map[int64]SearchResult, len(hits))
	for rows.Next() {
		var r SearchResult
		var meta string
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content,
			&r.Summary, &meta, &r.SourceID); err != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}

	// Reassemble in similarity order, applying the source filter.
	out := make([]SearchResult, 0, k)
	for _, h := range hits {
		id, ok := keyRowID(h.id)
		if !ok {
			continue
		}
		r, found := byID[id]
		if !found {
			continue
		}
		if sourceID != "" && r.SourceID != sourceID {
			continue
		}
		r.Similarity = h.similarity
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// TextSearch returns the top-k chunks by FTS5 bm25 rank, optionally
// filtered to one source.
func (s *Store) TextSearch(ctx context.Context, query string, k int, sourceID string) ([]SearchResult, error) {
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.url, p.chunk_number, p.content, p.metadata, p.source_id,
		       bm25(pages_fts) AS rank
		FROM pages_fts
		JOIN crawled_pages p ON p.id = pages_fts.rowid
		WHERE pages_fts MATCH ? AND (? = '' OR p.source_id = ?)
		ORDER BY rank
		LIMIT ?`,
		match, sourceID, sourceID, k)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	defer rows.Close()
	return scanTextResults(rows)
}

// TextSearchCode is TextSearch over code examples, matching code and
// summary.
func (s *Store) TextSearchCode(ctx context.Context, query string, k int, sourceID string) ([]SearchResult, error) {
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.url, c.chunk_number, c.content, c.summary, c.metadata, c.source_id,
		       bm25(code_fts) AS rank
		FROM code_fts
		JOIN code_examples c ON c.id = code_fts.rowid
		WHERE code_fts MATCH ? AND (? = '' OR c.source_id = ?)
		ORDER BY rank
		LIMIT ?`,
		match, sourceID, sourceID, k)
	if err != nil {
		return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var meta string
		var rank float64
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content,
			&r.Summary, &meta, &r.SourceID, &rank); err != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		// bm25() is negative, lower is better; negate so higher is better.
		r.Similarity = -rank
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTextResults(rows *sql.Rows) ([]SearchResult, error) {
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var meta string
		var rank float64
		if err := rows.Scan(&r.ID, &r.URL, &r.ChunkNumber, &r.Content,
			&meta, &r.SourceID, &rank); err != nil {
			return nil, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		r.Similarity = -rank
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChunkCount returns the number of stored chunks for a URL.
func (s *Store) ChunkCount(ctx context.Context, url string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM crawled_pages WHERE url = ?", url).Scan(&n)
	if err != nil {
		return 0, ragerr.Wrap(ragerr.ErrCodeStoreQuery, err)
	}
	return n, nil
}

// Flush persists the vector indexes and checkpoints the WAL.
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}
	if err := s.pages.save(s.pagesIndexPath()); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	if err := s.code.save(s.codeIndexPath()); err != nil {
		return ragerr.Wrap(ragerr.ErrCodeStoreWrite, err)
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return nil
}

// Close flushes and closes the store.
func (s *Store) Close() error {
	flushErr := s.Flush()
	if err := s.db.Close(); err != nil {
		return err
	}
	return flushErr
}
