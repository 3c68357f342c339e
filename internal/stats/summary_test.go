package stats

import (
	"math"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPercentileFiveValues(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}

	if got := Percentile(sorted, 0.50); got != 20 {
		t.Errorf("p50 = %v, want 20", got)
	}
	if got := Percentile(sorted, 0.95); got != 40 {
		t.Errorf("p95 = %v, want 40", got)
	}
	if got := Percentile(sorted, 0.99); got != 40 {
		t.Errorf("p99 = %v, want 40", got)
	}
}

func TestPercentileSingleValue(t *testing.T) {
	sorted := []float64{7.5}
	for _, f := range []float64{0.50, 0.95, 0.99} {
		if got := Percentile(sorted, f); got != 7.5 {
			t.Errorf("Percentile(%v) = %v, want 7.5", f, got)
		}
	}
}

func TestPercentileIndexClamped(t *testing.T) {
	// floor(0.5*1)-1 = -1 clamps to 0; floor(0.99*2)-1 = 0.
	if got := percentileIndex(1, 0.50); got != 0 {
		t.Errorf("percentileIndex(1, 0.50) = %d, want 0", got)
	}
	if got := percentileIndex(2, 0.99); got != 0 {
		t.Errorf("percentileIndex(2, 0.99) = %d, want 0", got)
	}
	if got := percentileIndex(100, 0.99); got != 98 {
		t.Errorf("percentileIndex(100, 0.99) = %d, want 98", got)
	}
}

func TestSummarizeNoSuccesses(t *testing.T) {
	outcomes := []Outcome{
		{OK: false, LatencyMs: 5, TStartMs: 0, TEndMs: 5},
		{OK: false, LatencyMs: 9, TStartMs: 1, TEndMs: 10},
	}
	if _, ok := Summarize(outcomes); ok {
		t.Fatal("Summarize reported data for a run with zero successes")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if _, ok := Summarize(nil); ok {
		t.Fatal("Summarize reported data for an empty run")
	}
}

func TestSummarizeCountsFailuresInThroughput(t *testing.T) {
	// 4 attempts over a 2s span, half failed: throughput covers all 4.
	outcomes := []Outcome{
		{OK: true, LatencyMs: 10, TStartMs: 0, TEndMs: 10},
		{OK: false, LatencyMs: 0, TStartMs: 100, TEndMs: 200},
		{OK: true, LatencyMs: 30, TStartMs: 500, TEndMs: 530},
		{OK: false, LatencyMs: 0, TStartMs: 1500, TEndMs: 2000},
	}
	s, ok := Summarize(outcomes)
	if !ok {
		t.Fatal("Summarize returned no data")
	}
	if s.Ops != 4 || s.Successes != 2 {
		t.Errorf("ops=%d successes=%d, want 4 and 2", s.Ops, s.Successes)
	}
	want := 4.0 / 2.0
	if math.Abs(s.Throughput-want) > 1e-9 {
		t.Errorf("throughput = %v, want %v", s.Throughput, want)
	}
	// Percentiles come from successful latencies only: [10, 30].
	if s.P50Ms != 10 {
		t.Errorf("p50 = %v, want 10", s.P50Ms)
	}
	if s.P95Ms != 10 || s.P99Ms != 10 {
		t.Errorf("p95/p99 = %v/%v, want 10/10", s.P95Ms, s.P99Ms)
	}
}

func TestSummarizeZeroSpanFloored(t *testing.T) {
	outcomes := []Outcome{{OK: true, LatencyMs: 1, TStartMs: 42, TEndMs: 42}}
	s, ok := Summarize(outcomes)
	if !ok {
		t.Fatal("Summarize returned no data")
	}
	if s.Throughput <= 0 {
		t.Errorf("throughput = %v, want > 0", s.Throughput)
	}
}

func TestProperty_PercentilesOrderedAndBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("p50 <= p95 <= p99 within [min, max]", prop.ForAll(
		func(values []float64) bool {
			if len(values) == 0 {
				return true
			}
			sorted := append([]float64(nil), values...)
			sort.Float64s(sorted)

			p50 := Percentile(sorted, 0.50)
			p95 := Percentile(sorted, 0.95)
			p99 := Percentile(sorted, 0.99)

			min, max := sorted[0], sorted[len(sorted)-1]
			return p50 <= p95 && p95 <= p99 && p50 >= min && p99 <= max
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.TestingRun(t)
}
