// Package report regenerates the aggregate text summary from the latest
// recorded CSV artifacts. Chart rendering happens outside this repo; this
// is the data half of that pipeline.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kvbench/internal/config"
	"kvbench/internal/record"
	"kvbench/internal/stats"
)

// LatestArtifact returns the newest file in dir matching prefix and ext.
// Artifact names embed a sortable timestamp, so newest means greatest name.
func LatestArtifact(dir, prefix, ext string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	best := ""
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		if name > best {
			best = name
		}
	}
	if best == "" {
		return "", false
	}
	return filepath.Join(dir, best), true
}

// Rebuild re-reads the latest CSV per experiment and rewrites the summary
// file. Missing artifacts are skipped, not errors: a partial results dir
// still gets a partial summary.
func Rebuild(cfg config.Config, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Paths.EnsureDirs(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("kvbench summary\n")
	b.WriteString("===============\n\n")

	raw := cfg.Paths.RawLogsDir

	if path, ok := LatestArtifact(raw, "perf-", ".csv"); ok {
		if err := summarizePerf(&b, path); err != nil {
			log.Warn("summarize perf failed", "path", path, "error", err)
		}
	}
	if path, ok := LatestArtifact(raw, "staleness-", ".csv"); ok {
		if err := summarizeStaleness(&b, path); err != nil {
			log.Warn("summarize staleness failed", "path", path, "error", err)
		}
	}
	if path, ok := LatestArtifact(raw, "anti_entropy-", ".csv"); ok {
		if err := summarizeConvergence(&b, path); err != nil {
			log.Warn("summarize anti-entropy failed", "path", path, "error", err)
		}
	}
	if path, ok := LatestArtifact(raw, "sac-", ".csv"); ok {
		if err := summarizeSLO(&b, path); err != nil {
			log.Warn("summarize slo failed", "path", path, "error", err)
		}
	}
	if path, ok := LatestArtifact(raw, "chaos-", ".csv"); ok {
		if err := summarizeChaos(&b, path); err != nil {
			log.Warn("summarize chaos failed", "path", path, "error", err)
		}
	}

	if err := os.WriteFile(cfg.Paths.SummaryPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	log.Info("summary written", "path", cfg.Paths.SummaryPath)
	return nil
}

func summarizePerf(b *strings.Builder, path string) error {
	recs, err := record.ReadRequestCSV(path)
	if err != nil {
		return err
	}

	type groupKey struct {
		workload    string
		concurrency int
	}
	groups := make(map[groupKey][]stats.Outcome)
	var order []groupKey
	for _, r := range recs {
		k := groupKey{r.Workload, r.Concurrency}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], stats.Outcome{OK: r.OK, LatencyMs: r.LatencyMs, TStartMs: r.TStartMs, TEndMs: r.TEndMs})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].workload != order[j].workload {
			return order[i].workload < order[j].workload
		}
		return order[i].concurrency < order[j].concurrency
	})

	fmt.Fprintf(b, "Perf (%s)\n", filepath.Base(path))
	for _, k := range order {
		summary, ok := stats.Summarize(groups[k])
		if !ok {
			fmt.Fprintf(b, "  %s c=%d: no successful requests\n", k.workload, k.concurrency)
			continue
		}
		fmt.Fprintf(b, "  %s c=%d: ops=%d, throughput=%.1f ops/s, p50=%.1f ms, p95=%.1f ms, p99=%.1f ms\n",
			k.workload, k.concurrency, summary.Ops, summary.Throughput, summary.P50Ms, summary.P95Ms, summary.P99Ms)
	}
	b.WriteString("\n")
	return nil
}

func summarizeStaleness(b *strings.Builder, path string) error {
	trials, err := record.ReadStalenessCSV(path)
	if err != nil {
		return err
	}

	staleByDelay := make(map[int]int)
	totalByDelay := make(map[int]int)
	var delays []int
	for _, t := range trials {
		if _, seen := totalByDelay[t.DelayMs]; !seen {
			delays = append(delays, t.DelayMs)
		}
		totalByDelay[t.DelayMs]++
		if t.IsStale {
			staleByDelay[t.DelayMs]++
		}
	}
	sort.Ints(delays)

	fmt.Fprintf(b, "Staleness (%s)\n", filepath.Base(path))
	for _, d := range delays {
		frac := float64(staleByDelay[d]) / float64(totalByDelay[d])
		fmt.Fprintf(b, "  delay=%d ms: stale=%d/%d (%.1f%%)\n", d, staleByDelay[d], totalByDelay[d], frac*100)
	}
	b.WriteString("\n")
	return nil
}

func summarizeConvergence(b *strings.Builder, path string) error {
	samples, err := record.ReadConvergenceCSV(path)
	if err != nil {
		return err
	}

	inSync := 0
	lastFalse := make(map[string]float64)
	pairs := make(map[string]bool)
	for _, s := range samples {
		pair := s.NodeA + "/" + s.NodeB
		pairs[pair] = true
		if s.InSync {
			inSync++
		} else if s.TOffsetS > lastFalse[pair] {
			lastFalse[pair] = s.TOffsetS
		}
	}

	fmt.Fprintf(b, "Anti-entropy (%s)\n", filepath.Base(path))
	fmt.Fprintf(b, "  samples=%d, in_sync=%d (%.1f%%), pairs=%d\n",
		len(samples), inSync, pct(inSync, len(samples)), len(pairs))
	b.WriteString("\n")
	return nil
}

func summarizeSLO(b *strings.Builder, path string) error {
	recs, err := record.ReadSLOCSV(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(b, "SLO classes (%s)\n", filepath.Base(path))
	for _, class := range []string{record.ClassTight, record.ClassRelaxed} {
		var outcomes []stats.Outcome
		for _, r := range recs {
			if r.Class == class {
				outcomes = append(outcomes, stats.Outcome{OK: r.OK, LatencyMs: r.LatencyMs, TStartMs: r.TStartMs, TEndMs: r.TEndMs})
			}
		}
		summary, ok := stats.Summarize(outcomes)
		if !ok {
			fmt.Fprintf(b, "  %s: no successful requests\n", class)
			continue
		}
		fmt.Fprintf(b, "  %s: n=%d, p50=%.1f ms, p95=%.1f ms, p99=%.1f ms\n",
			class, summary.Successes, summary.P50Ms, summary.P95Ms, summary.P99Ms)
	}
	b.WriteString("\n")
	return nil
}

func summarizeChaos(b *strings.Builder, path string) error {
	recs, err := record.ReadChaosCSV(path)
	if err != nil {
		return err
	}

	outcomes := make([]stats.Outcome, len(recs))
	failures := 0
	for i, r := range recs {
		outcomes[i] = stats.Outcome{OK: r.OK, LatencyMs: r.LatencyMs, TStartMs: r.TStartMs, TEndMs: r.TEndMs}
		if !r.OK {
			failures++
		}
	}

	fmt.Fprintf(b, "Chaos (%s)\n", filepath.Base(path))
	fmt.Fprintf(b, "  ops=%d, failures=%d\n", len(recs), failures)
	if summary, ok := stats.Summarize(outcomes); ok {
		fmt.Fprintf(b, "  throughput=%.1f ops/s, p50=%.1f ms, p95=%.1f ms, p99=%.1f ms\n",
			summary.Throughput, summary.P50Ms, summary.P95Ms, summary.P99Ms)
	}
	b.WriteString("\n")
	return nil
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
