// Package workload drives synthetic mixed read/write load against the
// store cluster and records one outcome per request attempt.
package workload

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"kvbench/internal/cluster"
	"kvbench/internal/record"
	"kvbench/internal/stats"
)

// SeedSource supplies one seed per worker. Workers must be decorrelated,
// so the default draws from crypto/rand; tests inject a fixed sequence.
type SeedSource func() int64

// CryptoSeeds returns a SeedSource backed by crypto/rand.
func CryptoSeeds() SeedSource {
	return func() int64 {
		var b [8]byte
		if _, err := cryptorand.Read(b[:]); err != nil {
			// crypto/rand failing is not survivable in any useful way;
			// fall back to the clock rather than panic mid-run.
			return time.Now().UnixNano()
		}
		return int64(binary.LittleEndian.Uint64(b[:]))
	}
}

// FixedSeeds returns a deterministic SeedSource for tests: start, start+1, ...
func FixedSeeds(start int64) SeedSource {
	var mu sync.Mutex
	next := start
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		s := next
		next++
		return s
	}
}

// Spec is one (workload, concurrency) combination to run.
type Spec struct {
	Workload    string
	ReadProb    float64
	Concurrency int
	Duration    time.Duration
	Keys        []string
	ValueSize   int
}

// Driver runs mixed-workload specs against a cluster.
type Driver struct {
	cluster *cluster.Cluster
	seeds   SeedSource
	updates stats.UpdateChan
	log     *slog.Logger
}

// New builds a driver. seeds may be nil (crypto seeding), updates may be
// nil (no progress snapshots), log may be nil (default logger).
func New(c *cluster.Cluster, seeds SeedSource, updates stats.UpdateChan, log *slog.Logger) *Driver {
	if seeds == nil {
		seeds = CryptoSeeds()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{cluster: c, seeds: seeds, updates: updates, log: log}
}

// Run launches spec.Concurrency workers that each issue randomly chosen
// read/write requests against random keys and nodes until the shared
// deadline. Workers accumulate records in private buffers that are merged
// only after every worker has joined, so no lock sits on the hot path.
// Individual request failures are recorded, never retried, and never abort
// the run.
func (d *Driver) Run(ctx context.Context, spec Spec) ([]record.RequestRecord, error) {
	if len(spec.Keys) == 0 {
		return nil, fmt.Errorf("workload %s: key universe is empty", spec.Workload)
	}
	if spec.Concurrency <= 0 {
		return nil, fmt.Errorf("workload %s: concurrency must be positive", spec.Workload)
	}
	if spec.ValueSize <= 0 {
		return nil, fmt.Errorf("workload %s: value size must be positive", spec.Workload)
	}
	if spec.ReadProb < 0 || spec.ReadProb > 1 {
		return nil, fmt.Errorf("workload %s: read probability %v out of range", spec.Workload, spec.ReadProb)
	}

	nodes := d.cluster.Nodes()
	live := stats.NewStats()
	stopAt := time.Now().Add(spec.Duration)

	d.log.Info("workload run starting",
		"workload", spec.Workload,
		"concurrency", spec.Concurrency,
		"duration", spec.Duration,
		"keys", len(spec.Keys),
		"read_prob", spec.ReadProb,
	)

	tickDone := d.startTickLoop(live, spec)

	buffers := make([][]record.RequestRecord, spec.Concurrency)
	var wg sync.WaitGroup
	for w := 0; w < spec.Concurrency; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(d.seeds()))
			var local []record.RequestRecord

			for time.Now().Before(stopAt) {
				if ctx.Err() != nil {
					break
				}
				rec := d.oneRequest(ctx, rng, spec, nodes)
				local = append(local, rec)
				live.AddRequest(rec.OK, time.Duration(rec.LatencyMs*float64(time.Millisecond)))
			}
			buffers[id] = local
		}(w)
	}
	wg.Wait()
	close(tickDone)

	collector := record.NewRecorder[record.RequestRecord]()
	for _, buf := range buffers {
		collector.AppendAll(buf)
	}
	recs := collector.Snapshot()

	d.log.Info("workload run done",
		"workload", spec.Workload,
		"concurrency", spec.Concurrency,
		"ops", len(recs),
		"errors", live.Fail,
	)
	return recs, nil
}

func (d *Driver) oneRequest(ctx context.Context, rng *rand.Rand, spec Spec, nodes []*cluster.NodeClient) record.RequestRecord {
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

	return record.RequestRecord{
		Workload:    spec.Workload,
		Concurrency: spec.Concurrency,
		Node:        node.Name(),
		Op:          op,
		OK:          err == nil,
		LatencyMs:   float64(end.Sub(start).Microseconds()) / 1000.0,
		TStartMs:    start.UnixMilli(),
		TEndMs:      end.UnixMilli(),
	}
}

// startTickLoop pushes live snapshots until the returned channel is closed.
// Sends are non-blocking; a slow observer just misses ticks.
func (d *Driver) startTickLoop(live *stats.Stats, spec Spec) chan struct{} {
	done := make(chan struct{})
	if d.updates == nil {
		return done
	}
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case d.updates <- live.Snapshot(spec.Workload, spec.Concurrency):
				default:
				}
			}
		}
	}()
	return done
}

const valueAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandValue generates an opaque payload of size bytes from the worker's
// own rng.
func RandValue(rng *rand.Rand, size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = valueAlphabet[rng.Intn(len(valueAlphabet))]
	}
	return b
}
