package experiment

import (
	"context"
	"fmt"
	"os"
	"time"

	"kvbench/internal/record"
)

// AntiEntropyResult carries the artifacts of one convergence run.
type AntiEntropyResult struct {
	TxtPath  string
	CSVPath  string
	Samples  []record.ConvergenceSample
	FlipBack int // pairs observed going out of sync again after a true streak
}

// RunAntiEntropy perturbs the cluster with a write burst, then samples a
// digest from every node on a fixed interval and records pairwise digest
// equality over time. A pair flipping back to out-of-sync after being in
// sync is flagged in the text log, not treated as an error: concurrent
// external perturbation is a legitimate cause.
func RunAntiEntropy(ctx context.Context, env *Env) (*AntiEntropyResult, error) {
	cfg := env.Cfg
	ae := cfg.AntiEntropy
	log := env.logger()

	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("anti_entropy", ts, ".txt")
	csvPath := env.rawPath("anti_entropy", ts, ".csv")

	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Anti-entropy experiment @ %s\n", ts)
	fmt.Fprintf(f, "write_burst_keys=%d, observation_seconds=%d, sample_interval=%ds\n\n",
		ae.WriteBurstKeys, ae.ObservationSeconds, ae.SampleIntervalSeconds)

	primary := env.Cluster.Primary()
	nodes := env.Cluster.Nodes()

	fmt.Fprintf(f, "Write burst on primary...\n")
	for i := 0; i < ae.WriteBurstKeys; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		key := fmt.Sprintf("ae-%d", i)
		value := []byte(fmt.Sprintf("ae-val-%d-%d", i, time.Now().UnixNano()))
		if err := primary.Put(ctx, key, value, primary.Name()); err != nil {
			log.Warn("burst write failed", "key", key, "error", err)
		}
	}
	fmt.Fprintf(f, "Write burst done.\n\n")

	var samples []record.ConvergenceSample
	flipBacks := 0
	// streak tracks, per node pair, whether the pair has been in sync on
	// every sample since it last diverged.
	streak := make(map[string]bool)

	start := time.Now()
	deadline := start.Add(secondsToDuration(ae.ObservationSeconds))
	interval := secondsToDuration(ae.SampleIntervalSeconds)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		offset := time.Since(start).Seconds()

		roots := make(map[string]string, len(nodes))
		for _, n := range nodes {
			snap, err := n.FetchMerkleSnapshot(ctx, ae.StartToken, ae.EndToken, ae.LeafCount)
			if err != nil {
				// This node is skipped for this iteration; its pairs get
				// no sample rather than a fabricated one.
				log.Warn("digest snapshot failed", "node", n.Name(), "error", err)
				continue
			}
			roots[n.Name()] = snap.RootHash
		}

		for i := 0; i < len(nodes); i++ {
			for j := i + 1; j < len(nodes); j++ {
				a, b := nodes[i].Name(), nodes[j].Name()
				rootA, okA := roots[a]
				rootB, okB := roots[b]
				if !okA || !okB {
					continue
				}
				inSync := rootA == rootB

				pair := a + "/" + b
				if !inSync && streak[pair] {
					flipBacks++
					fmt.Fprintf(f, "WARN: pair %s went out of sync again at t=%.1fs\n", pair, offset)
				}
				streak[pair] = inSync

				samples = append(samples, record.ConvergenceSample{
					TOffsetS: offset,
					NodeA:    a,
					NodeB:    b,
					RootA:    rootA,
					RootB:    rootB,
					InSync:   inSync,
				})
			}
		}

		sleepCtx(ctx, interval)
	}

	writeConvergencePoint(f, samples)

	if err := record.WriteConvergenceCSV(csvPath, samples); err != nil {
		return nil, err
	}
	return &AntiEntropyResult{
		TxtPath:  txtPath,
		CSVPath:  csvPath,
		Samples:  samples,
		FlipBack: flipBacks,
	}, nil
}

// writeConvergencePoint reports, per pair, the first offset after which
// every remaining sample was in sync.
func writeConvergencePoint(f *os.File, samples []record.ConvergenceSample) {
	type pairState struct {
		lastFalse float64
		seenFalse bool
		converged bool
	}
	pairs := make(map[string]*pairState)
	order := make([]string, 0)

	for _, s := range samples {
		key := s.NodeA + "/" + s.NodeB
		st, ok := pairs[key]
		if !ok {
			st = &pairState{}
			pairs[key] = st
			order = append(order, key)
		}
		if s.InSync {
			st.converged = true
		} else {
			st.lastFalse = s.TOffsetS
			st.seenFalse = true
			st.converged = false
		}
	}

	fmt.Fprintf(f, "\nConvergence points:\n")
	for _, key := range order {
		st := pairs[key]
		switch {
		case !st.converged:
			fmt.Fprintf(f, "  %s: never converged within the observation window\n", key)
		case !st.seenFalse:
			fmt.Fprintf(f, "  %s: in sync for the entire window\n", key)
		default:
			fmt.Fprintf(f, "  %s: converged after t=%.1fs\n", key, st.lastFalse)
		}
	}
}
