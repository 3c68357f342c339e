package experiment

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const defaultSanityWait = 5 * time.Second

// SanityResult reports the end-to-end smoke check.
type SanityResult struct {
	TxtPath    string
	Consistent bool
	PerNode    map[string]string // node -> FOUND/NOT_FOUND/ERROR
}

// RunSanity writes one fresh key via the primary, waits a replication
// grace period, then reads it back from every node and reports whether
// all found values agree.
func RunSanity(ctx context.Context, env *Env) (*SanityResult, error) {
	cfg := env.Cfg
	log := env.logger()

	if err := cfg.Paths.EnsureDirs(); err != nil {
		return nil, err
	}

	ts := timestamp()
	txtPath := env.rawPath("sanity", ts, ".txt")
	f, err := os.Create(txtPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", txtPath, err)
	}
	defer f.Close()

	suffix := uuid.NewString()[:8]
	key := "exp-sanity-" + suffix
	value := []byte("hello-kv-" + suffix)

	primary := env.Cluster.Primary()
	fmt.Fprintf(f, "Sanity smoke @ %s\n", ts)
	fmt.Fprintf(f, "writing key=%s via primary=%s\n", key, primary.Name())
	if err := primary.Put(ctx, key, value, primary.Name()); err != nil {
		return nil, fmt.Errorf("sanity write: %w", err)
	}

	wait := env.SanityWait
	if wait <= 0 {
		wait = defaultSanityWait
	}
	fmt.Fprintf(f, "waiting %s for replication/gossip...\n", wait)
	sleepCtx(ctx, wait)

	perNode := make(map[string]string)
	values := make(map[string]bool)
	for _, n := range env.Cluster.Nodes() {
		r, err := n.Get(ctx, key)
		switch {
		case err != nil:
			log.Error("sanity read failed", "node", n.Name(), "error", err)
			perNode[n.Name()] = "ERROR"
		case !r.Found:
			perNode[n.Name()] = "NOT_FOUND"
		default:
			perNode[n.Name()] = fmt.Sprintf("FOUND len=%d clock=%v", len(r.Value), r.Clock)
			values[string(r.Value)] = true
		}
	}

	consistent := len(values) <= 1
	status := "CONSISTENT"
	if !consistent {
		status = "INCONSISTENT"
	}
	fmt.Fprintf(f, "status=%s\n", status)
	for _, name := range env.Cluster.Names() {
		fmt.Fprintf(f, "  - %s: %s\n", name, perNode[name])
	}

	return &SanityResult{TxtPath: txtPath, Consistent: consistent, PerNode: perNode}, nil
}
