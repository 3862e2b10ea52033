// Package preflight checks the environment before the server starts: can the
// vector store be written, are embedding credentials present, is the
// knowledge graph reachable. The doctor command prints the results; the
// server itself never refuses to start over a warning.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ragmill/ragmill/internal/config"
)

// Status is the outcome of one check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
	StatusFail Status = "FAIL"
)

// Result is one completed check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`
	// Required marks checks whose failure means the server cannot work at
	// all, as opposed to a degraded feature.
	Required bool `json:"required"`
}

// Critical reports whether this is a required check that failed.
func (r Result) Critical() bool {
	return r.Required && r.Status == StatusFail
}

// GraphDialer probes the knowledge graph connection. Production passes a
// wrapper around the Neo4j driver; tests substitute fakes.
type GraphDialer func(ctx context.Context, cfg config.GraphConfig) error

// Checker runs the environment checks for one config.
type Checker struct {
	cfg       *config.Config
	dialGraph GraphDialer
}

// New creates a checker. dialGraph may be nil when graph probing is not
// wanted.
func New(cfg *config.Config, dialGraph GraphDialer) *Checker {
	return &Checker{cfg: cfg, dialGraph: dialGraph}
}

// RunAll runs every check and returns the results in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []Result {
	results := []Result{
		c.checkStorePath(),
		c.checkEmbedding(),
		c.checkLLM(),
	}
	results = append(results, c.checkGraph(ctx))
	return results
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.Critical() {
			return true
		}
	}
	return false
}

// Print writes one line per result plus a summary.
func Print(w io.Writer, results []Result) {
	for _, r := range results {
		fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
	}
	if HasCriticalFailures(results) {
		fmt.Fprintln(w, "status: FAILED")
		return
	}
	fmt.Fprintln(w, "status: READY")
}

// checkStorePath verifies the store directory exists and is writable. An
// empty path is the in-memory store, which always works.
func (c *Checker) checkStorePath() Result {
	r := Result{Name: "vector_store", Required: true}
	if c.cfg.Store.Path == "" {
		r.Status = StatusPass
		r.Message = "in-memory store"
		return r
	}

	dir := filepath.Dir(c.cfg.Store.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return r
	}
	probe := filepath.Join(dir, ".ragmill-preflight")
	f, err := os.Create(probe)
	if err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("cannot write %s: %v", dir, err)
		return r
	}
	f.Close()
	os.Remove(probe)

	r.Status = StatusPass
	r.Message = c.cfg.Store.Path
	return r
}

// checkEmbedding verifies embedding credentials. Without them every vector is
// the zero-vector degradation marker and only text search works.
func (c *Checker) checkEmbedding() Result {
	r := Result{Name: "embedding_provider"}
	if c.cfg.Embedding.APIKey == "" && c.cfg.Embedding.BaseURL == "" {
		r.Status = StatusWarn
		r.Message = "no credentials; embeddings degrade to zero vectors (set EMBEDDING_API_KEY or OPENAI_API_KEY)"
		return r
	}
	r.Status = StatusPass
	r.Message = c.cfg.Embedding.Model
	return r
}

// checkLLM verifies chat credentials. Without them summaries, reranking and
// entity extraction fall back to their non-LLM forms.
func (c *Checker) checkLLM() Result {
	r := Result{Name: "llm_provider"}
	if c.cfg.LLM.APIKey == "" && c.cfg.LLM.BaseURL == "" {
		r.Status = StatusWarn
		r.Message = "no credentials; summaries and reranking fall back to defaults"
		return r
	}
	r.Status = StatusPass
	r.Message = c.cfg.LLM.Model
	return r
}

// checkGraph probes the Neo4j connection when configured.
func (c *Checker) checkGraph(ctx context.Context) Result {
	r := Result{Name: "knowledge_graph"}
	if !c.cfg.Graph.Configured() {
		r.Status = StatusWarn
		r.Message = "not configured; graph tools disabled"
		return r
	}
	if c.dialGraph == nil {
		r.Status = StatusPass
		r.Message = c.cfg.Graph.URI + " (not probed)"
		return r
	}
	if err := c.dialGraph(ctx, c.cfg.Graph); err != nil {
		r.Status = StatusFail
		r.Message = fmt.Sprintf("%s unreachable: %v", c.cfg.Graph.URI, err)
		return r
	}
	r.Status = StatusPass
	r.Message = c.cfg.Graph.URI
	return r
}
