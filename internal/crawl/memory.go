package crawl

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// recoverSamples is how many consecutive below-threshold samples the monitor
// wants before it grows the worker limit again.
const recoverSamples = 3

// MemoryStats summarizes a memory-monitored crawl run. Sizes are MB.
type MemoryStats struct {
	StartMB  float64 `json:"start_mb"`
	EndMB    float64 `json:"end_mb"`
	PeakMB   float64 `json:"peak_mb"`
	AvgMB    float64 `json:"avg_mb"`
	ElapsedS float64 `json:"elapsed_s"`
}

// Monitor is the memory-adaptive admission controller. It admits up to a
// dynamic worker limit: while process RSS stays above the threshold the limit
// shrinks one worker per sample down to a floor of one, and after
// recoverSamples consecutive healthy samples it grows back toward max.
type Monitor struct {
	thresholdMB float64
	max         int
	interval    time.Duration
	sample      func() (float64, error)

	mu      sync.Mutex
	cond    *sync.Cond
	limit   int
	active  int
	healthy int

	started time.Time
	startMB float64
	endMB   float64
	peakMB  float64
	sumMB   float64
	samples int
}

// NewMonitor creates a monitor with the given RSS threshold and maximum
// worker count. Call Run in a goroutine for the duration of the crawl.
func NewMonitor(thresholdMB float64, maxWorkers int) *Monitor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	m := &Monitor{
		thresholdMB: thresholdMB,
		max:         maxWorkers,
		limit:       maxWorkers,
		interval:    time.Second,
		sample:      processRSS,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Run samples RSS until ctx is cancelled, adjusting the worker limit.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.started = time.Now()
	m.mu.Unlock()

	// Unblock any Acquire waiters when the run ends.
	defer m.cond.Broadcast()
	go func() {
		<-ctx.Done()
		m.cond.Broadcast()
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.observe()
		}
	}
}

func (m *Monitor) observe() {
	rss, err := m.sample()
	if err != nil {
		slog.Warn("rss sample failed", slog.String("error", err.Error()))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.samples == 0 {
		m.startMB = rss
	}
	m.endMB = rss
	if rss > m.peakMB {
		m.peakMB = rss
	}
	m.sumMB += rss
	m.samples++

	if rss > m.thresholdMB {
		m.healthy = 0
		if m.limit > 1 {
			m.limit--
			slog.Info("memory pressure, shrinking crawl workers",
				slog.Float64("rss_mb", rss),
				slog.Int("limit", m.limit))
		}
		return
	}

	m.healthy++
	if m.healthy >= recoverSamples && m.limit < m.max {
		m.limit++
		m.healthy = 0
		m.cond.Broadcast()
	}
}

// Acquire blocks until a worker slot is free or ctx is cancelled.
func (m *Monitor) Acquire(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.active >= m.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.active++
	return nil
}

// Release frees a worker slot.
func (m *Monitor) Release() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Stats returns the run summary collected so far.
func (m *Monitor) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MemoryStats{
		StartMB: m.startMB,
		EndMB:   m.endMB,
		PeakMB:  m.peakMB,
	}
	if m.samples > 0 {
		s.AvgMB = m.sumMB / float64(m.samples)
	}
	if !m.started.IsZero() {
		s.ElapsedS = time.Since(m.started).Seconds()
	}
	return s
}

// Limit returns the current worker limit. Exposed for tests and logging.
func (m *Monitor) Limit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

func processRSS() (float64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(mi.RSS) / (1 << 20), nil
}
