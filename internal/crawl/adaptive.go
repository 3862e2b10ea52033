package crawl

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"

	ragerr "github.com/ragmill/ragmill/internal/errors"
	"github.com/ragmill/ragmill/internal/fetch"
)

// adaptiveStrategy is the query-directed crawl. Candidates are scored by
// keyword overlap between the query and the URL path; once a page is fetched
// its content can only raise that score. A page is emitted when its final
// score reaches the relevance threshold. The frontier order depends on the
// discipline: best_first pops the highest-scored candidate, bfs is a queue,
// dfs is a stack.
type adaptiveStrategy struct {
	fetcher fetch.Fetcher
}

func (s *adaptiveStrategy) Name() string { return string(fetch.KindAdaptive) }

func (s *adaptiveStrategy) Detect(rawURL string, opts Options) bool {
	return fetch.Classify(rawURL, opts.classifyInput()) == fetch.KindAdaptive
}

func (s *adaptiveStrategy) Crawl(ctx context.Context, rawURL string, opts Options, emit EmitFunc) error {
	// A zero page budget is a valid request: crawl nothing, succeed.
	if opts.MaxPages <= 0 {
		return nil
	}

	front, err := newFrontier(opts.Discipline)
	if err != nil {
		return err
	}

	keywords := queryKeywords(opts.Query)
	start := canonicalURL(rawURL)
	visited := map[string]struct{}{start: {}}
	front.push(candidate{url: start, score: pathScore(start, keywords), depth: 1})

	kept := 0
	for kept < opts.MaxPages && front.size() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		c := front.pop()
		if c.depth > opts.MaxDepth {
			continue
		}

		res, err := s.fetcher.Fetch(ctx, c.url, opts.fetchOpts(c.url))
		if err != nil {
			slog.Warn("adaptive fetch failed",
				slog.String("url", c.url),
				slog.String("error", err.Error()))
			continue
		}

		score := c.score
		if cs := contentScore(res.Markdown, keywords); cs > score {
			score = cs
		}
		if score >= opts.RelevanceThreshold {
			doc := Document{URL: res.URL, Markdown: res.Markdown, Score: score, Depth: c.depth}
			if err := emit(ctx, doc); err != nil {
				return err
			}
			kept++
		}

		for _, link := range res.Links {
			canon := canonicalURL(link)
			if _, seen := visited[canon]; seen {
				continue
			}
			if !sameSite(rawURL, canon) {
				continue
			}
			visited[canon] = struct{}{}
			front.push(candidate{url: canon, score: pathScore(canon, keywords), depth: c.depth + 1})
		}
	}
	return nil
}

// candidate is one frontier entry.
type candidate struct {
	url   string
	score float64
	depth int
	seq   int // insertion order, breaks score ties deterministically
}

type frontier interface {
	push(candidate)
	pop() candidate
	size() int
}

func newFrontier(discipline string) (frontier, error) {
	switch discipline {
	case DisciplineBestFirst:
		return &bestFirstFrontier{}, nil
	case DisciplineBFS:
		return &fifoFrontier{}, nil
	case DisciplineDFS:
		return &lifoFrontier{}, nil
	default:
		return nil, ragerr.New(ragerr.ErrCodeUnknownStrategy,
			fmt.Sprintf("unknown crawl strategy %q (want best_first, bfs or dfs)", discipline), nil)
	}
}

// bestFirstFrontier is a max-heap on score.
type bestFirstFrontier struct {
	items candidateHeap
	seq   int
}

func (f *bestFirstFrontier) push(c candidate) {
	c.seq = f.seq
	f.seq++
	heap.Push(&f.items, c)
}

func (f *bestFirstFrontier) pop() candidate { return heap.Pop(&f.items).(candidate) }
func (f *bestFirstFrontier) size() int      { return f.items.Len() }

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type fifoFrontier struct{ items []candidate }

func (f *fifoFrontier) push(c candidate) { f.items = append(f.items, c) }
func (f *fifoFrontier) pop() candidate {
	c := f.items[0]
	f.items = f.items[1:]
	return c
}
func (f *fifoFrontier) size() int { return len(f.items) }

type lifoFrontier struct{ items []candidate }

func (f *lifoFrontier) push(c candidate) { f.items = append(f.items, c) }
func (f *lifoFrontier) pop() candidate {
	n := len(f.items) - 1
	c := f.items[n]
	f.items = f.items[:n]
	return c
}
func (f *lifoFrontier) size() int { return len(f.items) }
