package workload

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"kvbench/internal/cluster"
	"kvbench/internal/dummy"
	"kvbench/internal/record"
	"kvbench/internal/stats"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCluster(t *testing.T, names ...string) (*cluster.Cluster, map[string]*dummy.Node) {
	t.Helper()
	store := dummy.NewStore()
	nodes := make(map[string]*dummy.Node, len(names))
	clients := make([]*cluster.NodeClient, 0, len(names))
	for _, name := range names {
		n := dummy.NewNode(name, store, 0)
		srv := httptest.NewServer(n.Handler())
		t.Cleanup(srv.Close)
		nodes[name] = n
		clients = append(clients, cluster.NewNodeClient(name, srv.URL, 5*time.Second))
	}
	cl, err := cluster.FromClients(clients...)
	if err != nil {
		t.Fatal(err)
	}
	return cl, nodes
}

func TestDriverMixedRun(t *testing.T) {
	cl, _ := testCluster(t, "node-a")
	d := New(cl, FixedSeeds(1), nil, quietLogger())

	spec := Spec{
		Workload:    "A",
		ReadProb:    0.5,
		Concurrency: 4,
		Duration:    300 * time.Millisecond,
		Keys:        []string{"k-0", "k-1", "k-2"},
		ValueSize:   64,
	}

	before := time.Now()
	recs, err := d.Run(context.Background(), spec)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("run produced no records")
	}

	var reads, writes int
	for _, r := range recs {
		if !r.OK {
			t.Errorf("request failed against a healthy node: %+v", r)
		}
		if r.Workload != "A" || r.Concurrency != 4 || r.Node != "node-a" {
			t.Errorf("record carries wrong run labels: %+v", r)
		}
		if r.TEndMs < r.TStartMs {
			t.Errorf("end before start: %+v", r)
		}
		if r.TStartMs < before.UnixMilli() {
			t.Errorf("record predates the run: %+v", r)
		}
		switch r.Op {
		case record.OpRead:
			reads++
		case record.OpWrite:
			writes++
		default:
			t.Errorf("unexpected op %q", r.Op)
		}
	}
	if reads == 0 || writes == 0 {
		t.Errorf("mix 0.5/0.5 produced reads=%d writes=%d over %d ops", reads, writes, len(recs))
	}

	// The deadline must actually stop the workers, with some slack for the
	// final in-flight requests.
	if elapsed := time.Since(before); elapsed > spec.Duration+2*time.Second {
		t.Errorf("run overshot its deadline: took %v", elapsed)
	}
}

func TestDriverRejectsBadSpecs(t *testing.T) {
	cl, _ := testCluster(t, "node-a")
	d := New(cl, FixedSeeds(1), nil, quietLogger())
	ctx := context.Background()

	base := Spec{Workload: "A", ReadProb: 0.5, Concurrency: 1, Duration: time.Millisecond, Keys: []string{"k"}, ValueSize: 8}

	bad := base
	bad.Keys = nil
	if _, err := d.Run(ctx, bad); err == nil {
		t.Error("accepted empty key universe")
	}

	bad = base
	bad.Concurrency = 0
	if _, err := d.Run(ctx, bad); err == nil {
		t.Error("accepted zero concurrency")
	}

	bad = base
	bad.ValueSize = 0
	if _, err := d.Run(ctx, bad); err == nil {
		t.Error("accepted zero value size")
	}

	bad = base
	bad.ReadProb = 1.5
	if _, err := d.Run(ctx, bad); err == nil {
		t.Error("accepted out-of-range read probability")
	}
}

func TestDriverSendsSnapshots(t *testing.T) {
	cl, _ := testCluster(t, "node-a")
	updates := make(stats.UpdateChan, 100)
	d := New(cl, FixedSeeds(1), updates, quietLogger())

	_, err := d.Run(context.Background(), Spec{
		Workload:    "B",
		ReadProb:    0.95,
		Concurrency: 2,
		Duration:    500 * time.Millisecond,
		Keys:        []string{"k"},
		ValueSize:   8,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	select {
	case snap := <-updates:
		if snap.Workload != "B" || snap.Concurrency != 2 {
			t.Errorf("snapshot labels = %q/%d, want B/2", snap.Workload, snap.Concurrency)
		}
	default:
		t.Error("no snapshot arrived during a 500ms run")
	}
}

func TestChaosRecordsFailuresWithoutAborting(t *testing.T) {
	cl, nodes := testCluster(t, "node-a", "node-b")
	nodes["node-b"].SetFailing(true)

	recs, err := Chaos(context.Background(), cl, ChaosSpec{
		ReadProb:  0.7,
		Duration:  300 * time.Millisecond,
		Keys:      []string{"c-0", "c-1"},
		ValueSize: 16,
	}, FixedSeeds(7), quietLogger())
	if err != nil {
		t.Fatalf("chaos: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("chaos produced no records")
	}

	var okCount, failCount int
	for _, r := range recs {
		if r.OK {
			okCount++
			if r.Node != "node-a" {
				t.Errorf("success recorded against the failing node: %+v", r)
			}
		} else {
			failCount++
			if r.Node != "node-b" {
				t.Errorf("failure recorded against the healthy node: %+v", r)
			}
		}
	}
	if okCount == 0 || failCount == 0 {
		t.Errorf("expected both outcomes across two nodes, got ok=%d fail=%d", okCount, failCount)
	}
}

func TestChaosStopsOnContextCancel(t *testing.T) {
	cl, _ := testCluster(t, "node-a")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Duration 0 means run until cancelled.
		_, _ = Chaos(ctx, cl, ChaosSpec{ReadProb: 0.5, Keys: []string{"k"}, ValueSize: 8}, FixedSeeds(1), quietLogger())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("chaos loop did not stop after cancellation")
	}
}

func TestFixedSeedsAreSequential(t *testing.T) {
	s := FixedSeeds(10)
	for want := int64(10); want < 13; want++ {
		if got := s(); got != want {
			t.Errorf("seed = %d, want %d", got, want)
		}
	}
}

func TestRandValueSizeAndAlphabet(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	v := RandValue(rng, 256)
	if len(v) != 256 {
		t.Fatalf("len = %d, want 256", len(v))
	}
	for _, b := range v {
		if !((b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')) {
			t.Fatalf("unexpected byte %q in value", b)
		}
	}
}
