package cluster

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kvbench/internal/dummy"
)

func newTestNode(t *testing.T, name string, lag time.Duration) (*NodeClient, *dummy.Node) {
	t.Helper()
	node := dummy.NewNode(name, dummy.NewStore(), lag)
	srv := httptest.NewServer(node.Handler())
	t.Cleanup(srv.Close)
	return NewNodeClient(name, srv.URL, 5*time.Second), node
}

func TestPutThenGet(t *testing.T) {
	client, _ := newTestNode(t, "node-a", 0)
	ctx := context.Background()

	value := []byte("hello world")
	if err := client.Put(ctx, "k1", value, "node-a"); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := client.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !res.Found {
		t.Fatal("get reported not found after put")
	}
	if !bytes.Equal(res.Value, value) {
		t.Errorf("value = %q, want %q", res.Value, value)
	}
	if len(res.Clock) == 0 {
		t.Error("expected a non-empty vector clock")
	}
}

func TestGetMissingKeyIsNotAnError(t *testing.T) {
	client, _ := newTestNode(t, "node-a", 0)

	res, err := client.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Found {
		t.Error("get reported found for a missing key")
	}
}

func TestDeleteHidesKey(t *testing.T) {
	client, _ := newTestNode(t, "node-a", 0)
	ctx := context.Background()

	if err := client.Put(ctx, "k1", []byte("v"), "node-a"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := client.Delete(ctx, "k1", "node-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err := client.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Found {
		t.Error("get reported found after delete")
	}
}

func TestDeadlineHintHeader(t *testing.T) {
	client, node := newTestNode(t, "node-a", 0)

	_, err := client.GetWithDeadlineHint(context.Background(), "k1", "X-Deadline-Ms", 20)
	if err != nil {
		t.Fatalf("get with deadline hint: %v", err)
	}
	if got := node.LastDeadlineHint(); got != "20" {
		t.Errorf("deadline hint seen by the node = %q, want \"20\"", got)
	}
}

func TestFetchMerkleSnapshot(t *testing.T) {
	client, _ := newTestNode(t, "node-a", 0)
	ctx := context.Background()

	if err := client.Put(ctx, "k1", []byte("v1"), "node-a"); err != nil {
		t.Fatalf("put: %v", err)
	}

	snap, err := client.FetchMerkleSnapshot(ctx, 0, 1<<20, 8)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snap.RootHash == "" {
		t.Error("empty root hash")
	}
	if len(snap.LeafHashes) == 0 {
		t.Error("empty leaf hashes")
	}

	// A second write must change the root.
	if err := client.Put(ctx, "k2", []byte("v2"), "node-a"); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap2, err := client.FetchMerkleSnapshot(ctx, 0, 1<<20, 8)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snap2.RootHash == snap.RootHash {
		t.Error("root hash unchanged after a write")
	}
}

func TestServerErrorSurfacesFromPut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewNodeClient("node-a", srv.URL, time.Second)
	if err := client.Put(context.Background(), "k", []byte("v"), "node-a"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestFromClients(t *testing.T) {
	a, _ := newTestNode(t, "node-a", 0)
	b, _ := newTestNode(t, "node-b", 0)

	cl, err := FromClients(a, b)
	if err != nil {
		t.Fatalf("FromClients: %v", err)
	}
	if got := len(cl.Nodes()); got != 2 {
		t.Fatalf("Nodes() len = %d, want 2", got)
	}
	if cl.Primary().Name() != "node-a" {
		t.Errorf("primary = %q, want node-a", cl.Primary().Name())
	}
	if n, err := cl.Node("node-b"); err != nil || n.Name() != "node-b" {
		t.Error("lookup by name failed for node-b")
	}
	if _, err := cl.Node("node-z"); err == nil {
		t.Error("lookup reported a node that does not exist")
	}
	if _, err := FromClients(); err == nil {
		t.Error("empty cluster accepted")
	}
}
