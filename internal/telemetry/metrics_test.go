package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketP10, LatencyToBucket(5*time.Millisecond))
	assert.Equal(t, BucketP50, LatencyToBucket(30*time.Millisecond))
	assert.Equal(t, BucketP100, LatencyToBucket(80*time.Millisecond))
	assert.Equal(t, BucketP500, LatencyToBucket(200*time.Millisecond))
	assert.Equal(t, BucketP1000, LatencyToBucket(2*time.Second))
}

func TestRecordCountsModesAndZeroResults(t *testing.T) {
	m := NewMetrics()
	m.Record(Event{Query: "hnsw index tuning", Mode: ModeVector, ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(Event{Query: "nothing here", Mode: ModeHybrid, ResultCount: 0, Latency: 60 * time.Millisecond})

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.TotalQueries)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"nothing here"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ByMode[ModeVector])
	assert.Equal(t, int64(1), s.ByMode[ModeHybrid])
	assert.Equal(t, int64(1), s.Latency[BucketP10])
	assert.Equal(t, int64(1), s.Latency[BucketP100])
	assert.InDelta(t, 0.5, s.ZeroResultRate(), 1e-9)
}

func TestRecordRepeatDetection(t *testing.T) {
	m := NewMetrics()
	m.Record(Event{Query: "Vector Search", Mode: ModeVector, ResultCount: 1})
	// Same query up to case and whitespace counts as a repeat.
	m.Record(Event{Query: "  vector search ", Mode: ModeVector, ResultCount: 1})
	m.Record(Event{Query: "different", Mode: ModeVector, ResultCount: 1})

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.RepeatCount)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"vector", "search", "sqlite3"}, Terms("Vector search, in sqlite3!"))
	assert.Empty(t, Terms("a of"))
	assert.Empty(t, Terms(""))
}

func TestRingEviction(t *testing.T) {
	r := newRing[string](3)
	for _, s := range []string{"a", "b", "c", "d"} {
		r.add(s)
	}
	assert.Equal(t, []string{"b", "c", "d"}, r.all())
}

func TestMetricsConcurrentRecord(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(Event{Query: "q", Mode: ModeVector, ResultCount: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), m.Snapshot().TotalQueries)
}
