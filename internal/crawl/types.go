// Package crawl executes crawl strategies against a fetcher and produces a
// stream of documents for the ingest pipeline. Strategy selection is an
// ordered registry scanned first-match-wins: sitemap, text file, single page,
// adaptive, recursive.
package crawl

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/ragmill/ragmill/internal/fetch"
)

// Document is one crawled page ready for chunking.
type Document struct {
	URL      string
	Markdown string
	// Score is the adaptive relevance score in [0,1]; zero for
	// non-adaptive strategies.
	Score float64
	// Depth is the link distance from the start URL, 1-based.
	Depth int
}

// Discipline names for the adaptive crawl frontier.
const (
	DisciplineBestFirst = "best_first"
	DisciplineBFS       = "bfs"
	DisciplineDFS       = "dfs"
)

// Options controls a crawl run.
type Options struct {
	// Single forces the single-page strategy.
	Single bool
	// Query enables the adaptive strategy and drives its scoring.
	Query string
	// Discipline selects the adaptive frontier order. Default best_first.
	Discipline string

	MaxDepth           int     // default 3
	MaxPages           int     // adaptive page budget; zero crawls nothing
	MaxConcurrent      int     // worker pool size, default 10
	RelevanceThreshold float64 // adaptive keep threshold, default 0.3

	// Fetch is the base fetch configuration; Patterns override it per URL.
	Fetch    fetch.Opts
	Patterns []fetch.URLPattern

	// Monitor, when set, replaces the fixed worker pool with the
	// memory-adaptive admission controller.
	Monitor *Monitor
}

const (
	defaultMaxDepth      = 3
	defaultMaxConcurrent = 10
	defaultThreshold     = 0.3
	defaultMaxPages      = 10
)

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = defaultMaxDepth
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = defaultMaxConcurrent
	}
	if o.RelevanceThreshold == 0 {
		o.RelevanceThreshold = defaultThreshold
	}
	if o.Discipline == "" {
		o.Discipline = DisciplineBestFirst
	}
	return o
}

func (o Options) classifyInput() fetch.ClassifyInput {
	return fetch.ClassifyInput{Single: o.Single, Query: o.Query}
}

// fetchOpts resolves the fetch options for one URL, applying pattern
// overrides.
func (o Options) fetchOpts(rawURL string) fetch.Opts {
	return fetch.SelectOpts(o.Patterns, rawURL, o.Fetch)
}

// admission is the concurrency gate workers pass through. Either a fixed
// semaphore or the memory-adaptive monitor.
type admission interface {
	Acquire(ctx context.Context) error
	Release()
}

type semGate struct{ sem *semaphore.Weighted }

func (g semGate) Acquire(ctx context.Context) error { return g.sem.Acquire(ctx, 1) }
func (g semGate) Release()                          { g.sem.Release(1) }

func (o Options) admission() admission {
	if o.Monitor != nil {
		return o.Monitor
	}
	return semGate{sem: semaphore.NewWeighted(int64(o.MaxConcurrent))}
}

// canonicalURL strips the fragment; frontier and visited-set keys use this
// form.
func canonicalURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	return u.String()
}

// sameSite reports whether two URLs share a registrable domain. A leading
// www label is ignored so https://x.test and https://www.x.test count as
// internal to each other.
func sameSite(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return trimWWW(ua.Hostname()) == trimWWW(ub.Hostname())
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
