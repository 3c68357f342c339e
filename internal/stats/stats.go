// Package stats holds the live counters a running workload feeds and the
// after-the-fact percentile aggregation applied to recorded outcomes.
package stats

import (
	"sync/atomic"
	"time"
)

// Stats holds real-time aggregated metrics for a run in flight. The
// authoritative per-request records live elsewhere; this exists so progress
// can be shown without touching the record buffers.
type Stats struct {
	Requests uint64
	Success  uint64
	Fail     uint64

	// Latency histogram (microseconds), successful requests only.
	Latency *SafeHistogram
}

func NewStats() *Stats {
	return &Stats{Latency: NewSafeHistogram()}
}

func (s *Stats) AddRequest(success bool, latency time.Duration) {
	atomic.AddUint64(&s.Requests, 1)
	if success {
		atomic.AddUint64(&s.Success, 1)
		_ = s.Latency.RecordDuration(latency)
	} else {
		atomic.AddUint64(&s.Fail, 1)
	}
}

func (s *Stats) ErrorRate() float64 {
	reqs := atomic.LoadUint64(&s.Requests)
	if reqs == 0 {
		return 0
	}
	fails := atomic.LoadUint64(&s.Fail)
	return (float64(fails) / float64(reqs)) * 100
}

func (s *Stats) P50Ms() float64 {
	return float64(s.Latency.ValueAtQuantile(50)) / 1000.0
}

func (s *Stats) P95Ms() float64 {
	return float64(s.Latency.ValueAtQuantile(95)) / 1000.0
}

func (s *Stats) P99Ms() float64 {
	return float64(s.Latency.ValueAtQuantile(99)) / 1000.0
}

// Snapshot is a cheap copy of the live stats pushed over the updates
// channel for progress display.
type Snapshot struct {
	Workload    string
	Concurrency int

	Requests uint64
	Success  uint64
	Fail     uint64

	P50Ms float64
	P95Ms float64
	P99Ms float64
	MaxMs int64
}

// UpdateChan carries snapshots from a running workload to an observer.
type UpdateChan chan Snapshot

// Snapshot captures the current counters and percentiles.
func (s *Stats) Snapshot(workload string, concurrency int) Snapshot {
	return Snapshot{
		Workload:    workload,
		Concurrency: concurrency,
		Requests:    atomic.LoadUint64(&s.Requests),
		Success:     atomic.LoadUint64(&s.Success),
		Fail:        atomic.LoadUint64(&s.Fail),
		P50Ms:       s.P50Ms(),
		P95Ms:       s.P95Ms(),
		P99Ms:       s.P99Ms(),
		MaxMs:       s.Latency.Max() / 1000,
	}
}
