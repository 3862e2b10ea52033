package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	source_id        TEXT PRIMARY KEY,
	summary          TEXT NOT NULL DEFAULT '',
	total_word_count INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS crawled_pages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL,
	chunk_number INTEGER NOT NULL,
	content      TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	embedding    BLOB,
	source_id    TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(url, chunk_number)
);
CREATE INDEX IF NOT EXISTS idx_pages_url ON crawled_pages(url);
CREATE INDEX IF NOT EXISTS idx_pages_source ON crawled_pages(source_id);

CREATE TABLE IF NOT EXISTS code_examples (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL,
	chunk_number INTEGER NOT NULL,
	content      TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	embedding    BLOB,
	source_id    TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(url, chunk_number)
);
CREATE INDEX IF NOT EXISTS idx_code_url ON code_examples(url);
CREATE INDEX IF NOT EXISTS idx_code_source ON code_examples(source_id);

CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
	content,
	content='crawled_pages',
	content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS pages_fts_ai AFTER INSERT ON crawled_pages BEGIN
	INSERT INTO pages_fts(rowid, content) VALUES (new.id, new.content);
END;
CREATE TRIGGER IF NOT EXISTS pages_fts_ad AFTER DELETE ON crawled_pages BEGIN
	INSERT INTO pages_fts(pages_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE VIRTUAL TABLE IF NOT EXISTS code_fts USING fts5(
	content,
	summary,
	content='code_examples',
	content_rowid='id'
);
CREATE TRIGGER IF NOT EXISTS code_fts_ai AFTER INSERT ON code_examples BEGIN
	INSERT INTO code_fts(rowid, content, summary) VALUES (new.id, new.content, new.summary);
END;
CREATE TRIGGER IF NOT EXISTS code_fts_ad AFTER DELETE ON code_examples BEGIN
	INSERT INTO code_fts(code_fts, rowid, content, summary) VALUES ('delete', old.id, old.content, old.summary);
END;
`

// openDB opens (or creates) the SQLite database with WAL mode. An empty
// path opens an in-memory database, used by tests.
func openDB(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc.org/sqlite needs a single connection; SQLite serializes
	// writers anyway and pooling breaks in-memory databases.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// ftsQuery converts free text to an FTS5 OR-query with every term quoted,
// so user input can never be parsed as FTS syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f != "" {
			terms = append(terms, `"`+f+`"`)
		}
	}
	return strings.Join(terms, " OR ")
}

// encodeVector packs a vector as little-endian float32 bytes for the
// embedding BLOB column.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
