package stats

import (
	"math"
	"sort"
)

// Outcome is the minimal view of a recorded request the aggregator needs.
type Outcome struct {
	OK        bool
	LatencyMs float64
	TStartMs  int64
	TEndMs    int64
}

// Summary is the aggregate for one run: throughput over all attempts,
// percentiles over successful ones.
type Summary struct {
	Ops        int
	Successes  int
	Throughput float64 // ops/sec, failures included in the numerator
	P50Ms      float64
	P95Ms      float64
	P99Ms      float64
}

// minSpanSeconds floors the observed wall-clock span to avoid dividing by
// zero when all records land in the same millisecond.
const minSpanSeconds = 1e-6

// Percentile reads the value at fraction f from an ascending-sorted slice
// using index floor(f*n)-1 clamped to [0, n-1]. Published numbers depend
// on this exact rule; it must not change to interpolation.
func Percentile(sorted []float64, f float64) float64 {
	return sorted[percentileIndex(len(sorted), f)]
}

func percentileIndex(n int, f float64) int {
	idx := int(math.Floor(f*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

// Summarize aggregates a run's outcomes. ok is false when there are no
// successful records, in which case the summary carries no meaningful
// latency data.
func Summarize(outcomes []Outcome) (Summary, bool) {
	latencies := make([]float64, 0, len(outcomes))
	successes := 0
	for _, o := range outcomes {
		if o.OK {
			latencies = append(latencies, o.LatencyMs)
			successes++
		}
	}
	if len(latencies) == 0 {
		return Summary{}, false
	}
	sort.Float64s(latencies)

	minStart := outcomes[0].TStartMs
	maxEnd := outcomes[0].TEndMs
	for _, o := range outcomes[1:] {
		if o.TStartMs < minStart {
			minStart = o.TStartMs
		}
		if o.TEndMs > maxEnd {
			maxEnd = o.TEndMs
		}
	}
	spanSec := float64(maxEnd-minStart) / 1000.0
	if spanSec < minSpanSeconds {
		spanSec = minSpanSeconds
	}

	return Summary{
		Ops:        len(outcomes),
		Successes:  successes,
		Throughput: float64(len(outcomes)) / spanSec,
		P50Ms:      Percentile(latencies, 0.50),
		P95Ms:      Percentile(latencies, 0.95),
		P99Ms:      Percentile(latencies, 0.99),
	}, true
}
