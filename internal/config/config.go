// Package config loads process-wide configuration from the environment.
//
// An optional .env file in the working directory is loaded first (without
// overriding variables already set in the environment), then every setting
// is read from env vars, with sensible defaults when unset.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	ragerr "github.com/ragmill/ragmill/internal/errors"
)

// Transport selects the tool-call transport.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportSSE   Transport = "sse"
)

// Config represents the complete ragmill configuration.
type Config struct {
	Transport Transport
	SSEAddr   string // host:port for the SSE HTTP listener

	Embedding EmbeddingConfig
	LLM       LLMConfig
	Store     StoreConfig
	Graph     GraphConfig
	Flags     FeatureFlags
	Crawl     CrawlConfig
	LogLevel  string
}

// EmbeddingConfig configures the embedding provider (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int
	MaxRetries int
}

// LLMConfig configures the chat-completion provider used for summaries,
// entity extraction, and reranking.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Path is the SQLite database path. Empty means in-memory (tests).
	Path string
	// WriteBatch is the insert batch size (default 20).
	WriteBatch int
	// WriteWorkers bounds concurrent write transactions.
	WriteWorkers int
}

// GraphConfig configures the Neo4j property graph.
type GraphConfig struct {
	URI      string
	User     string
	Password string
}

// Configured reports whether the knowledge graph connection is set up.
func (g GraphConfig) Configured() bool {
	return g.URI != ""
}

// FeatureFlags are the optional pipeline behaviors.
type FeatureFlags struct {
	ContextualEmbeddings bool // USE_CONTEXTUAL_EMBEDDINGS
	HybridSearch         bool // USE_HYBRID_SEARCH
	AgenticRAG           bool // USE_AGENTIC_RAG (code example extraction)
	Reranking            bool // USE_RERANKING
	KnowledgeGraph       bool // USE_KNOWLEDGE_GRAPH
	GraphRAG             bool // USE_GRAPHRAG
}

// CrawlConfig holds crawl tunables.
type CrawlConfig struct {
	MaxConcurrent     int           // MAX_CONCURRENT_CRAWLS (default 10)
	ChunkSize         int           // DEFAULT_CHUNK_SIZE (default 5000)
	MinCodeBlockLen   int           // MIN_CODE_BLOCK_LEN (default 300)
	MaxRetries        int           // MAX_RETRIES (default 3)
	FetchTimeout      time.Duration // per-fetch timeout (default 30s)
	MaxDepth          int           // recursive crawl depth (default 3)
	MemoryThresholdMB float64       // memory-adaptive threshold (default 512)
}

// Default values for the tunables above.
const (
	DefaultMaxConcurrent   = 10
	DefaultChunkSize       = 5000
	DefaultMinCodeBlockLen = 300
	DefaultMaxRetries      = 3
	DefaultEmbeddingBatch  = 20
	DefaultWriteBatch      = 20
	DefaultMaxDepth        = 3
	DefaultFetchTimeout    = 30 * time.Second
	DefaultMemoryThreshold = 512.0
	DefaultDimensions      = 1536
	DefaultSSEAddr         = "127.0.0.1:8051"
)

// New returns a Config populated with defaults only.
func New() *Config {
	return &Config{
		Transport: TransportStdio,
		SSEAddr:   DefaultSSEAddr,
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: DefaultDimensions,
			BatchSize:  DefaultEmbeddingBatch,
			MaxRetries: DefaultMaxRetries,
		},
		LLM: LLMConfig{
			Model: "gpt-4o-mini",
		},
		Store: StoreConfig{
			WriteBatch:   DefaultWriteBatch,
			WriteWorkers: DefaultMaxConcurrent,
		},
		Crawl: CrawlConfig{
			MaxConcurrent:     DefaultMaxConcurrent,
			ChunkSize:         DefaultChunkSize,
			MinCodeBlockLen:   DefaultMinCodeBlockLen,
			MaxRetries:        DefaultMaxRetries,
			FetchTimeout:      DefaultFetchTimeout,
			MaxDepth:          DefaultMaxDepth,
			MemoryThresholdMB: DefaultMemoryThreshold,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the environment, loading .env first if present.
func Load() (*Config, error) {
	// Missing .env is not an error; env vars win over file values.
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from the given lookup function.
// Extracted for testing without mutating the process environment.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	cfg := New()

	if v, ok := lookup("TRANSPORT"); ok {
		switch Transport(strings.ToLower(v)) {
		case TransportStdio:
			cfg.Transport = TransportStdio
		case TransportSSE:
			cfg.Transport = TransportSSE
		default:
			return nil, ragerr.New(ragerr.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown TRANSPORT %q (expected stdio or sse)", v), nil)
		}
	}
	if v, ok := lookup("SSE_ADDR"); ok {
		cfg.SSEAddr = v
	}

	// Embedding provider
	if v, ok := lookup("EMBEDDING_BASE_URL"); ok {
		cfg.Embedding.BaseURL = v
	}
	if v, ok := lookup("EMBEDDING_API_KEY"); ok {
		cfg.Embedding.APIKey = v
	} else if v, ok := lookup("OPENAI_API_KEY"); ok {
		cfg.Embedding.APIKey = v
	}
	if v, ok := lookup("EMBEDDING_MODEL"); ok {
		cfg.Embedding.Model = v
	}
	var err error
	if cfg.Embedding.Dimensions, err = intVar(lookup, "EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions); err != nil {
		return nil, err
	}
	if cfg.Embedding.BatchSize, err = intVar(lookup, "EMBEDDING_BATCH", cfg.Embedding.BatchSize); err != nil {
		return nil, err
	}

	// LLM provider (defaults to the embedding endpoint)
	cfg.LLM.BaseURL = cfg.Embedding.BaseURL
	cfg.LLM.APIKey = cfg.Embedding.APIKey
	if v, ok := lookup("LLM_BASE_URL"); ok {
		cfg.LLM.BaseURL = v
	}
	if v, ok := lookup("LLM_API_KEY"); ok {
		cfg.LLM.APIKey = v
	}
	if v, ok := lookup("LLM_MODEL"); ok {
		cfg.LLM.Model = v
	}

	// Vector store
	if v, ok := lookup("VECTOR_DB_PATH"); ok {
		cfg.Store.Path = v
	} else {
		cfg.Store.Path = defaultStorePath()
	}

	// Property graph
	if v, ok := lookup("NEO4J_URI"); ok {
		cfg.Graph.URI = v
	}
	if v, ok := lookup("NEO4J_USER"); ok {
		cfg.Graph.User = v
	}
	if v, ok := lookup("NEO4J_PASSWORD"); ok {
		cfg.Graph.Password = v
	}

	// Feature flags
	cfg.Flags.ContextualEmbeddings = boolVar(lookup, "USE_CONTEXTUAL_EMBEDDINGS")
	cfg.Flags.HybridSearch = boolVar(lookup, "USE_HYBRID_SEARCH")
	cfg.Flags.AgenticRAG = boolVar(lookup, "USE_AGENTIC_RAG")
	cfg.Flags.Reranking = boolVar(lookup, "USE_RERANKING")
	cfg.Flags.KnowledgeGraph = boolVar(lookup, "USE_KNOWLEDGE_GRAPH")
	cfg.Flags.GraphRAG = boolVar(lookup, "USE_GRAPHRAG")

	// Crawl tunables
	if cfg.Crawl.MaxConcurrent, err = intVar(lookup, "MAX_CONCURRENT_CRAWLS", cfg.Crawl.MaxConcurrent); err != nil {
		return nil, err
	}
	if cfg.Crawl.ChunkSize, err = intVar(lookup, "DEFAULT_CHUNK_SIZE", cfg.Crawl.ChunkSize); err != nil {
		return nil, err
	}
	if cfg.Crawl.MinCodeBlockLen, err = intVar(lookup, "MIN_CODE_BLOCK_LEN", cfg.Crawl.MinCodeBlockLen); err != nil {
		return nil, err
	}
	if cfg.Crawl.MaxRetries, err = intVar(lookup, "MAX_RETRIES", cfg.Crawl.MaxRetries); err != nil {
		return nil, err
	}
	cfg.Embedding.MaxRetries = cfg.Crawl.MaxRetries
	if v, ok := lookup("FETCH_TIMEOUT"); ok {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return nil, ragerr.New(ragerr.ErrCodeConfigInvalid,
				fmt.Sprintf("invalid FETCH_TIMEOUT %q: %v", v, perr), perr)
		}
		cfg.Crawl.FetchTimeout = d
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return ragerr.New(ragerr.ErrCodeConfigInvalid, "EMBEDDING_DIMENSIONS must be positive", nil)
	}
	if c.Embedding.BatchSize <= 0 {
		return ragerr.New(ragerr.ErrCodeConfigInvalid, "EMBEDDING_BATCH must be positive", nil)
	}
	if c.Crawl.MaxConcurrent <= 0 {
		return ragerr.New(ragerr.ErrCodeConfigInvalid, "MAX_CONCURRENT_CRAWLS must be positive", nil)
	}
	if c.Crawl.ChunkSize <= 0 {
		return ragerr.New(ragerr.ErrCodeConfigInvalid, "DEFAULT_CHUNK_SIZE must be positive", nil)
	}
	if c.Flags.KnowledgeGraph && !c.Graph.Configured() {
		return ragerr.New(ragerr.ErrCodeConfigInvalid,
			"USE_KNOWLEDGE_GRAPH is set but NEO4J_URI is empty", nil)
	}
	return nil
}

// defaultStorePath returns ~/.ragmill/ragmill.db, falling back to the
// working directory when the home dir is unavailable.
func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ragmill.db"
	}
	return home + "/.ragmill/ragmill.db"
}

func intVar(lookup func(string) (string, bool), key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, ragerr.New(ragerr.ErrCodeConfigInvalid,
			fmt.Sprintf("invalid %s %q: not an integer", key, v), err)
	}
	return n, nil
}

func boolVar(lookup func(string) (string, bool), key string) bool {
	v, ok := lookup(key)
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
