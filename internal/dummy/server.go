// Package dummy is an in-process fake of the store protocol, used by tests
// and by the `kvbench dummy` subcommand. All fake nodes share one Store;
// a configurable replication lag controls when a write becomes visible on
// nodes other than its coordinator, which is enough to reproduce stale
// reads and digest divergence without a real cluster.
package dummy

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type version struct {
	value     []byte
	clock     map[string]int64
	writtenAt time.Time
	coord     string
	tombstone bool
}

type entry struct {
	cur  *version
	prev *version
}

// Store is the shared state behind every fake node.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	counter int64
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) put(key string, value []byte, coord string, tombstone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	v := &version{
		value:     value,
		clock:     map[string]int64{coord: s.counter},
		writtenAt: time.Now(),
		coord:     coord,
		tombstone: tombstone,
	}
	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &entry{cur: v}
		return
	}
	e.prev = e.cur
	e.cur = v
}

// visible returns the newest version of key that node can see given lag.
// The coordinator sees its own write immediately; everyone else sees it
// once the lag has elapsed, and serves the previous version (or nothing)
// until then.
func (s *Store) visible(key, node string, lag time.Duration) *version {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.cur.coord == node || time.Since(e.cur.writtenAt) >= lag {
		return e.cur
	}
	return e.prev
}

// visibleKeys returns key->value for every live key node can see.
func (s *Store) visibleState(node string, lag time.Duration) map[string][]byte {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	state := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v := s.visible(k, node, lag); v != nil && !v.tombstone {
			state[k] = v.value
		}
	}
	return state
}

// Node is one fake replica. Its Handler speaks the store's REST protocol.
type Node struct {
	name  string
	store *Store
	lag   time.Duration

	failing atomic.Bool

	// Last deadline hint seen on a read, for assertions in tests.
	lastDeadline atomic.Value // string
}

func NewNode(name string, store *Store, lag time.Duration) *Node {
	return &Node{name: name, store: store, lag: lag}
}

func (n *Node) Name() string { return n.name }

// SetFailing makes every subsequent request return 500 until cleared.
func (n *Node) SetFailing(v bool) { n.failing.Store(v) }

// LastDeadlineHint returns the most recent X-Deadline-style header value
// observed on a read, or "".
func (n *Node) LastDeadlineHint() string {
	v, _ := n.lastDeadline.Load().(string)
	return v
}

type putRequest struct {
	ValueBase64 string `json:"valueBase64"`
	NodeID      string `json:"nodeId"`
}

type getResponse struct {
	Found       bool             `json:"found"`
	ValueBase64 *string          `json:"valueBase64,omitempty"`
	VectorClock map[string]int64 `json:"vectorClock,omitempty"`
}

type snapshotResponse struct {
	RootHashBase64   string   `json:"rootHashBase64"`
	LeafHashesBase64 []string `json:"leafHashesBase64"`
}

// Handler returns the node's HTTP surface.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/kv/", n.handleKV)
	mux.HandleFunc("/admin/anti-entropy/merkle-snapshot", n.handleSnapshot)
	return mux
}

func (n *Node) handleKV(w http.ResponseWriter, r *http.Request) {
	if n.failing.Load() {
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		n.handleGet(w, r, key)
	case http.MethodPut:
		n.handlePut(w, r, key)
	case http.MethodDelete:
		n.handleDelete(w, r, key)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (n *Node) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	for name, vals := range r.Header {
		if strings.HasPrefix(name, "X-Deadline") && len(vals) > 0 {
			n.lastDeadline.Store(vals[0])
		}
	}

	v := n.store.visible(key, n.name, n.lag)
	if v == nil || v.tombstone {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(getResponse{Found: false})
		return
	}

	enc := base64.StdEncoding.EncodeToString(v.value)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(getResponse{
		Found:       true,
		ValueBase64: &enc,
		VectorClock: v.clock,
	})
}

func (n *Node) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	var req putRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	value, err := base64.StdEncoding.DecodeString(req.ValueBase64)
	if err != nil {
		http.Error(w, "bad base64 value", http.StatusBadRequest)
		return
	}
	coord := req.NodeID
	if coord == "" {
		coord = n.name
	}
	n.store.put(key, value, coord, false)
	w.WriteHeader(http.StatusOK)
}

func (n *Node) handleDelete(w http.ResponseWriter, r *http.Request, key string) {
	coord := n.name
	if r.Body != nil {
		var req putRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.NodeID != "" {
			coord = req.NodeID
		}
	}
	n.store.put(key, nil, coord, true)
	w.WriteHeader(http.StatusOK)
}

// maxLeafHashes caps the leaf list in responses; the harness never parses
// leaves, it only needs the root.
const maxLeafHashes = 16

func (n *Node) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if n.failing.Load() {
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return
	}

	leafCount := 8
	if lc := r.URL.Query().Get("leafCount"); lc != "" {
		parsed, err := strconv.Atoi(lc)
		if err != nil || parsed <= 0 {
			http.Error(w, "bad leafCount", http.StatusBadRequest)
			return
		}
		leafCount = parsed
	}
	if leafCount > maxLeafHashes {
		leafCount = maxLeafHashes
	}

	state := n.store.visibleState(n.name, n.lag)
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := sha256.New()
	leaves := make([][]byte, leafCount)
	for _, k := range keys {
		root.Write([]byte(k))
		root.Write(state[k])

		h := fnv.New32a()
		_, _ = h.Write([]byte(k))
		bucket := int(h.Sum32()) % leafCount
		leaves[bucket] = append(leaves[bucket], k...)
		leaves[bucket] = append(leaves[bucket], state[k]...)
	}

	resp := snapshotResponse{
		RootHashBase64: base64.StdEncoding.EncodeToString(root.Sum(nil)),
	}
	for _, leaf := range leaves {
		sum := sha256.Sum256(leaf)
		resp.LeafHashesBase64 = append(resp.LeafHashesBase64, base64.StdEncoding.EncodeToString(sum[:]))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// ServerConfig configures the standalone fake cluster.
type ServerConfig struct {
	NumNodes       int
	BasePort       int
	ReplicationLag time.Duration
}

// Start launches one HTTP server per fake node on consecutive ports,
// sharing a single store. It blocks until one of the servers fails.
func Start(cfg ServerConfig) error {
	if cfg.NumNodes <= 0 {
		cfg.NumNodes = 3
	}
	if cfg.BasePort <= 0 {
		cfg.BasePort = 8080
	}

	store := NewStore()
	errCh := make(chan error, cfg.NumNodes)
	for i := 0; i < cfg.NumNodes; i++ {
		name := fmt.Sprintf("node-%c", 'a'+i)
		node := NewNode(name, store, cfg.ReplicationLag)
		addr := fmt.Sprintf(":%d", cfg.BasePort+i)
		srv := &http.Server{Addr: addr, Handler: node.Handler()}
		fmt.Printf("dummy store %s listening on %s (lag %s)\n", name, addr, cfg.ReplicationLag)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
	}
	return <-errCh
}
