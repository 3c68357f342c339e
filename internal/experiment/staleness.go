package experiment

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"kvbench/internal/record"
)

// StalenessResult carries the artifacts and per-delay stale fractions of
// one staleness run.
type StalenessResult struct {
	TxtPath         string
	CSVPath         string
	Trials          []record.StalenessTrial
	FractionByDelay map[int]float64
}

// RunStaleness measures the probability of a stale read as a function of
// the delay between a write and the following read. Trials are strictly
// sequential: each one measures propagation of a single logical write, so
// concurrent trials on the shared key would corrupt the reference point.
func RunStaleness(ctx context.Context, env *Env) (*StalenessResult, error) {
	cfg := env.Cfg
	log := env.logger()

	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("staleness", ts, ".txt")
	csvPath := env.rawPath("staleness", ts, ".csv")

	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	primary := env.Cluster.Primary()
	nodes := env.Cluster.Nodes()
	rng := rand.New(rand.NewSource(env.seeds()()))

	// One fixed key for the whole run; each trial overwrites it with a
	// fresh unique payload.
	key := "stale-" + uuid.NewString()[:8]

	fmt.Fprintf(f, "Staleness experiment @ %s\n", ts)
	fmt.Fprintf(f, "key=%s\n", key)
	fmt.Fprintf(f, "delays_ms=%v, trials_per_delay=%d\n\n", cfg.Staleness.DelaysMs, cfg.Staleness.TrialsPerDelay)

	var trials []record.StalenessTrial
	fractions := make(map[int]float64, len(cfg.Staleness.DelaysMs))

	for _, delay := range cfg.Staleness.DelaysMs {
		staleCount := 0
		total := 0
		for i := 0; i < cfg.Staleness.TrialsPerDelay; i++ {
			if ctx.Err() != nil {
				flushStaleness(csvPath, trials, env)
				return nil, ctx.Err()
			}
			total++

			expected := []byte(fmt.Sprintf("v-%d-%d", delay, time.Now().UnixNano()))
			if err := primary.Put(ctx, key, expected, primary.Name()); err != nil {
				// The reference write failed; the following read cannot
				// match it, so the trial lands as stale either way.
				log.Warn("staleness reference write failed", "key", key, "error", err)
			}

			if delay > 0 {
				sleepCtx(ctx, time.Duration(delay)*time.Millisecond)
			}

			readNode := nodes[rng.Intn(len(nodes))]
			stale := true
			r, err := readNode.Get(ctx, key)
			if err != nil {
				log.Warn("staleness read failed", "node", readNode.Name(), "key", key, "error", err)
			} else if r.Found && bytes.Equal(r.Value, expected) {
				stale = false
			}
			if stale {
				staleCount++
			}

			trials = append(trials, record.StalenessTrial{
				DelayMs:  delay,
				ReadNode: readNode.Name(),
				IsStale:  stale,
			})
		}

		frac := float64(staleCount) / float64(total)
		fractions[delay] = frac
		fmt.Fprintf(f, "delay=%d ms: stale=%d/%d (%.1f%%)\n", delay, staleCount, total, frac*100)
	}

	if err := record.WriteStalenessCSV(csvPath, trials); err != nil {
		return nil, err
	}
	return &StalenessResult{
		TxtPath:         txtPath,
		CSVPath:         csvPath,
		Trials:          trials,
		FractionByDelay: fractions,
	}, nil
}

func flushStaleness(path string, trials []record.StalenessTrial, env *Env) {
	if len(trials) == 0 {
		return
	}
	if err := record.WriteStalenessCSV(path, trials); err != nil {
		env.logger().Warn("flush partial trials failed", "path", path, "error", err)
	}
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
