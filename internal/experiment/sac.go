package experiment

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"kvbench/internal/record"
	"kvbench/internal/stats"
)

// SLOResult carries the artifacts of one deadline-classification run.
type SLOResult struct {
	TxtPath string
	CSVPath string
	Records []record.SLORecord
}

// RunSLO tags each outgoing read with a tight or relaxed latency budget
// (50/50), carries the budget in a request header, and records observed
// latency per class. The budget is never enforced client-side: the point
// is to compare what the store actually delivers per declared class.
func RunSLO(ctx context.Context, env *Env) (*SLOResult, error) {
	cfg := env.Cfg
	slo := cfg.SLO
	log := env.logger()

	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("sac", ts, ".txt")
	csvPath := env.rawPath("sac", ts, ".csv")

	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "SLO classification experiment @ %s\n", ts)
	fmt.Fprintf(f, "duration=%ds, keys=%d\n", slo.DurationSeconds, slo.NumKeys)
	fmt.Fprintf(f, "deadline_header=%s\n\n", slo.DeadlineHeader)

	primary := env.Cluster.Primary()
	nodes := env.Cluster.Nodes()
	rng := rand.New(rand.NewSource(env.seeds()()))

	keys := keyUniverse("sac", slo.NumKeys)
	preload := slo.PreloadKeys
	if preload > len(keys) {
		preload = len(keys)
	}
	for i := 0; i < preload; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		val := []byte("sac-init-" + keys[i])
		if err := primary.Put(ctx, keys[i], val, primary.Name()); err != nil {
			log.Warn("preload write failed", "key", keys[i], "error", err)
		}
	}

	var recs []record.SLORecord
	deadline := time.Now().Add(secondsToDuration(slo.DurationSeconds))

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}

		key := keys[rng.Intn(len(keys))]
		node := nodes[rng.Intn(len(nodes))]

		class := record.ClassRelaxed
		budget := slo.RelaxedDeadlineMs
		if rng.Float64() < 0.5 {
			class = record.ClassTight
			budget = slo.TightDeadlineMs
		}

		start := time.Now()
		_, err := node.GetWithDeadlineHint(ctx, key, slo.DeadlineHeader, budget)
		end := time.Now()

		recs = append(recs, record.SLORecord{
			Node:       node.Name(),
			Class:      class,
			DeadlineMs: budget,
			LatencyMs:  float64(end.Sub(start).Microseconds()) / 1000.0,
			OK:         err == nil,
			TStartMs:   start.UnixMilli(),
			TEndMs:     end.UnixMilli(),
		})
	}

	for _, class := range []string{record.ClassTight, record.ClassRelaxed} {
		summary, ok := stats.Summarize(sloOutcomes(recs, class))
		if !ok {
			fmt.Fprintf(f, "%s: no successful requests\n", class)
			continue
		}
		fmt.Fprintf(f, "%s: n=%d, p50=%.1f ms, p95=%.1f ms, p99=%.1f ms\n",
			class, summary.Successes, summary.P50Ms, summary.P95Ms, summary.P99Ms)
	}

	if err := record.WriteSLOCSV(csvPath, recs); err != nil {
		return nil, err
	}
	return &SLOResult{TxtPath: txtPath, CSVPath: csvPath, Records: recs}, nil
}

func sloOutcomes(recs []record.SLORecord, class string) []stats.Outcome {
	var out []stats.Outcome
	for _, r := range recs {
		if r.Class != class {
			continue
		}
		out = append(out, stats.Outcome{OK: r.OK, LatencyMs: r.LatencyMs, TStartMs: r.TStartMs, TEndMs: r.TEndMs})
	}
	return out
}
