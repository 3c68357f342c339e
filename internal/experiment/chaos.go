package experiment

import (
	"context"
	"fmt"
	"os"

	"kvbench/internal/record"
	"kvbench/internal/stats"
	"kvbench/internal/workload"
)

// ChaosResult carries the artifacts of one chaos run.
type ChaosResult struct {
	TxtPath string
	CSVPath string
	Records []record.ChaosRecord
}

// RunChaos issues loosely-controlled mixed traffic from a single loop.
// It is meant to run while an operator kills or restarts nodes by hand;
// every failure is logged with its op, node, and key so the error trace
// can be lined up against the injected faults afterwards.
func RunChaos(ctx context.Context, env *Env) (*ChaosResult, error) {
	cfg := env.Cfg
	log := env.logger()

	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("chaos", ts, ".txt")
	csvPath := env.rawPath("chaos", ts, ".csv")

	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Chaos experiment @ %s\n", ts)
	fmt.Fprintf(f, "duration=%ds, keys=%d\n", cfg.Chaos.DurationSeconds, cfg.Chaos.NumKeys)
	fmt.Fprintf(f, "You can kill/restart nodes while this is running.\n\n")

	recs, err := workload.Chaos(ctx, env.Cluster, workload.ChaosSpec{
		ReadProb:  cfg.Chaos.ReadProb,
		Duration:  secondsToDuration(cfg.Chaos.DurationSeconds),
		Keys:      keyUniverse("chaos", cfg.Chaos.NumKeys),
		ValueSize: cfg.Workload.ValueSizeBytes,
	}, env.Seeds, log)
	if err != nil {
		return nil, err
	}

	failures := 0
	for _, r := range recs {
		if !r.OK {
			failures++
		}
	}
	fmt.Fprintf(f, "ops=%d, failures=%d\n", len(recs), failures)
	if summary, ok := stats.Summarize(chaosOutcomes(recs)); ok {
		fmt.Fprintf(f, "throughput=%.1f ops/s, p50=%.1f ms, p95=%.1f ms, p99=%.1f ms\n",
			summary.Throughput, summary.P50Ms, summary.P95Ms, summary.P99Ms)
	}

	if err := record.WriteChaosCSV(csvPath, recs); err != nil {
		return nil, err
	}
	return &ChaosResult{TxtPath: txtPath, CSVPath: csvPath, Records: recs}, nil
}

func chaosOutcomes(recs []record.ChaosRecord) []stats.Outcome {
	out := make([]stats.Outcome, len(recs))
	for i, r := range recs {
		out[i] = stats.Outcome{OK: r.OK, LatencyMs: r.LatencyMs, TStartMs: r.TStartMs, TEndMs: r.TEndMs}
	}
	return out
}
