// Package experiment wires the probes to configuration, the cluster
// clients, and the output artifacts. One function per experiment selector;
// each writes its own CSV + text log under the configured results dirs and
// returns whatever it collected, flushing partial results even when some
// requests failed along the way.
package experiment

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"kvbench/internal/cluster"
	"kvbench/internal/config"
	"kvbench/internal/stats"
	"kvbench/internal/workload"
)

// Env is everything an experiment entry point needs. Nothing here is
// global: callers construct one Env and hand it to each run.
type Env struct {
	Cfg     config.Config
	Cluster *cluster.Cluster
	Log     *slog.Logger

	// Seeds is optional; nil means crypto seeding.
	Seeds workload.SeedSource
	// Updates is optional; non-nil receives live snapshots from the
	// mixed-workload driver.
	Updates stats.UpdateChan
	// SanityWait overrides the replication grace period of the sanity
	// check; zero means the default 5s.
	SanityWait time.Duration
}

func (e *Env) logger() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Env) seeds() workload.SeedSource {
	if e.Seeds != nil {
		return e.Seeds
	}
	return workload.CryptoSeeds()
}

// timestamp names output artifacts; the format sorts lexicographically.
func timestamp() string {
	return time.Now().Format("20060102-150405")
}

func (e *Env) rawPath(name, ts, ext string) string {
	return filepath.Join(e.Cfg.Paths.RawLogsDir, fmt.Sprintf("%s-%s%s", name, ts, ext))
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// keyUniverse pre-generates the fixed key space for one experiment.
func keyUniverse(prefix string, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return keys
}
