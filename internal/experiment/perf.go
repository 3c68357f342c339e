package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"kvbench/internal/record"
	"kvbench/internal/stats"
	"kvbench/internal/workload"
)

// PerfResult carries the artifacts of one perf run.
type PerfResult struct {
	TxtPath string
	CSVPath string
	Records []record.RequestRecord
}

// RunPerf runs the workload grid: every configured mix at every configured
// concurrency level, after a single fixed warmup write pass.
func RunPerf(ctx context.Context, env *Env) (*PerfResult, error) {
	cfg := env.Cfg
	wl := cfg.Workload
	log := env.logger()

	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("perf", ts, ".txt")
	csvPath := env.rawPath("perf", ts, ".csv")

	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Perf workloads @ %s\n", ts)
	fmt.Fprintf(f, "Nodes: %v\n", env.Cluster.Names())
	fmt.Fprintf(f, "num_keys=%d, value_size=%d bytes\n", wl.NumKeys, wl.ValueSizeBytes)
	fmt.Fprintf(f, "concurrency_levels=%v\n\n", wl.ConcurrencyLevels)

	keys := keyUniverse("perf", wl.NumKeys)
	primary := env.Cluster.Primary()

	fmt.Fprintf(f, "Warmup phase (writes)...\n")
	warmupRng := rand.New(rand.NewSource(env.seeds()()))
	warmup := wl.WarmupWrites
	if warmup > wl.NumKeys {
		warmup = wl.NumKeys
	}
	for i := 0; i < warmup; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		v := workload.RandValue(warmupRng, wl.ValueSizeBytes)
		if err := primary.Put(ctx, keys[i], v, primary.Name()); err != nil {
			log.Warn("warmup write failed", "key", keys[i], "error", err)
		}
	}
	fmt.Fprintf(f, "Warmup done.\n\n")

	driver := workload.New(env.Cluster, env.Seeds, env.Updates, log)

	var all []record.RequestRecord
	for _, mix := range wl.Mixes {
		fmt.Fprintf(f, "=== Workload %s (read/write=%.2f/%.2f) ===\n", mix.Name, mix.ReadProb, mix.WriteProb)
		for _, conc := range wl.ConcurrencyLevels {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(f, "  - Running with concurrency=%d\n", conc)

			recs, err := driver.Run(ctx, workload.Spec{
				Workload:    mix.Name,
				ReadProb:    mix.ReadProb,
				Concurrency: conc,
				Duration:    secondsToDuration(wl.RunSeconds),
				Keys:        keys,
				ValueSize:   wl.ValueSizeBytes,
			})
			if err != nil {
				// Setup errors are structural; stop the grid but keep
				// whatever was already collected.
				flushRequestCSV(csvPath, all, log)
				return nil, err
			}
			all = append(all, recs...)

			summary, ok := stats.Summarize(requestOutcomes(recs))
			if !ok {
				fmt.Fprintf(f, "    No successful requests.\n")
				continue
			}
			fmt.Fprintf(f, "    ops=%d, throughput=%.1f ops/s, p50=%.1f ms, p95=%.1f ms, p99=%.1f ms\n",
				summary.Ops, summary.Throughput, summary.P50Ms, summary.P95Ms, summary.P99Ms)
		}
		fmt.Fprintf(f, "\n")
	}

	if err := record.WriteRequestCSV(csvPath, all); err != nil {
		return nil, err
	}
	return &PerfResult{TxtPath: txtPath, CSVPath: csvPath, Records: all}, nil
}

func flushRequestCSV(path string, recs []record.RequestRecord, log *slog.Logger) {
	if len(recs) == 0 {
		return
	}
	if err := record.WriteRequestCSV(path, recs); err != nil {
		log.Warn("flush partial records failed", "path", path, "error", err)
	}
}

func requestOutcomes(recs []record.RequestRecord) []stats.Outcome {
	out := make([]stats.Outcome, len(recs))
	for i, r := range recs {
		out[i] = stats.Outcome{OK: r.OK, LatencyMs: r.LatencyMs, TStartMs: r.TStartMs, TEndMs: r.TEndMs}
	}
	return out
}
