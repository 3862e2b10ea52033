// Package telemetry collects local query metrics for the retriever. Nothing
// leaves the process; queries are hashed before they are counted.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Mode classifies how a query was served.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeHybrid Mode = "hybrid"
	ModeCode   Mode = "code"
)

// LatencyBucket is one histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket maps a duration onto its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Event is one recorded query.
type Event struct {
	Query       string
	Mode        Mode
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// ring is a fixed-capacity FIFO buffer; full means the oldest entry goes.
type ring[T any] struct {
	items []T
	head  int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) add(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// all returns the buffered items oldest first.
func (r *ring[T]) all() []T {
	out := make([]T, r.size)
	if r.size < len(r.items) {
		copy(out, r.items[:r.size])
		return out
	}
	copy(out, r.items[r.head:])
	copy(out[len(r.items)-r.head:], r.items[:r.head])
	return out
}

const (
	defaultZeroResultCap = 100
	defaultSeenQueries   = 1024
	minTermLen           = 3
)

// Metrics aggregates query events in memory. Safe for concurrent use.
type Metrics struct {
	mu sync.Mutex

	total       int64
	zeroResults int64
	repeats     int64
	byMode      map[Mode]int64
	byBucket    map[LatencyBucket]int64
	terms       map[string]int64
	zeroQueries *ring[string]
	seen        *lru.Cache[string, int64]
	since       time.Time
}

// NewMetrics builds an empty collector.
func NewMetrics() *Metrics {
	seen, _ := lru.New[string, int64](defaultSeenQueries)
	return &Metrics{
		byMode:      make(map[Mode]int64),
		byBucket:    make(map[LatencyBucket]int64),
		terms:       make(map[string]int64),
		zeroQueries: newRing[string](defaultZeroResultCap),
		seen:        seen,
		since:       time.Now(),
	}
}

// Record folds one event into the counters.
func (m *Metrics) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	h := hashQuery(e.Query)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.byMode[e.Mode]++
	m.byBucket[LatencyToBucket(e.Latency)]++
	for _, t := range Terms(e.Query) {
		m.terms[t]++
	}
	if e.ResultCount == 0 {
		m.zeroResults++
		m.zeroQueries.add(e.Query)
	}
	if n, ok := m.seen.Get(h); ok {
		m.repeats++
		m.seen.Add(h, n+1)
	} else {
		m.seen.Add(h, 1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	RepeatCount       int64                   `json:"repeat_count"`
	ByMode            map[Mode]int64          `json:"by_mode"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TopTerms          map[string]int64        `json:"top_terms"`
	Since             time.Time               `json:"since"`
}

// ZeroResultRate is the fraction of queries that returned nothing.
func (s *Snapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries)
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		TotalQueries:      m.total,
		ZeroResultCount:   m.zeroResults,
		ZeroResultQueries: m.zeroQueries.all(),
		RepeatCount:       m.repeats,
		ByMode:            make(map[Mode]int64, len(m.byMode)),
		Latency:           make(map[LatencyBucket]int64, len(m.byBucket)),
		TopTerms:          make(map[string]int64, len(m.terms)),
		Since:             m.since,
	}
	for k, v := range m.byMode {
		s.ByMode[k] = v
	}
	for k, v := range m.byBucket {
		s.Latency[k] = v
	}
	for k, v := range m.terms {
		s.TopTerms[k] = v
	}
	return s
}

// Terms extracts countable terms from a query: lowercased words of at least
// three letters or digits.
func Terms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if len(f) >= minTermLen {
			out = append(out, f)
		}
	}
	return out
}

func hashQuery(q string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(q))))
	return hex.EncodeToString(sum[:8])
}
