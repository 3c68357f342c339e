package workload

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"kvbench/internal/cluster"
	"kvbench/internal/record"
)

// ChaosSpec configures the chaos loop. Duration <= 0 runs until the
// context is cancelled, which is the mode used while an operator disrupts
// nodes by hand.
type ChaosSpec struct {
	ReadProb  float64
	Duration  time.Duration
	Keys      []string
	ValueSize int
}

// Chaos is the single-threaded cousin of Driver.Run: same operation
// selection and recording, but every failure is logged with enough context
// (op, node, key, error) for an operator correlating manual fault
// injection with what the client saw.
func Chaos(ctx context.Context, c *cluster.Cluster, spec ChaosSpec, seeds SeedSource, log *slog.Logger) ([]record.ChaosRecord, error) {
	if len(spec.Keys) == 0 {
		return nil, fmt.Errorf("chaos: key universe is empty")
	}
	if spec.ValueSize <= 0 {
		return nil, fmt.Errorf("chaos: value size must be positive")
	}
	if seeds == nil {
		seeds = CryptoSeeds()
	}
	if log == nil {
		log = slog.Default()
	}

	nodes := c.Nodes()
	rng := rand.New(rand.NewSource(seeds()))

	var stopAt time.Time
	if spec.Duration > 0 {
		stopAt = time.Now().Add(spec.Duration)
	}

	log.Info("chaos loop starting", "duration", spec.Duration, "keys", len(spec.Keys), "read_prob", spec.ReadProb)

	var recs []record.ChaosRecord
	for {
		if ctx.Err() != nil {
			break
		}
		if !stopAt.IsZero() && !time.Now().Before(stopAt) {
			break
		}

		op := record.OpWrite
		if rng.Float64() < spec.ReadProb {
			op = record.OpRead
		}
		key := spec.Keys[rng.Intn(len(spec.Keys))]
		node := nodes[rng.Intn(len(nodes))]

		start := time.Now()
		var err error
		if op == record.OpRead {
			_, err = node.Get(ctx, key)
		} else {
			err = node.Put(ctx, key, RandValue(rng, spec.ValueSize), node.Name())
		}
		end := time.Now()

		if err != nil {
			log.Error("chaos request failed", "op", op, "node", node.Name(), "key", key, "error", err)
		}

		recs = append(recs, record.ChaosRecord{
			Node:      node.Name(),
			Op:        op,
			OK:        err == nil,
			LatencyMs: float64(end.Sub(start).Microseconds()) / 1000.0,
			TStartMs:  start.UnixMilli(),
			TEndMs:    end.UnixMilli(),
		})
	}

	log.Info("chaos loop done", "ops", len(recs))
	return recs, nil
}
