// Package record holds the per-request outcome types every probe emits,
// a concurrency-safe collector for them, and their CSV serialization.
package record

import "sync"

// Operations as they appear in output artifacts.
const (
	OpRead  = "GET"
	OpWrite = "PUT"
)

// SLO classes.
const (
	ClassTight   = "tight"
	ClassRelaxed = "relaxed"
)

// RequestRecord is one request attempt from a mixed-workload run. Records
// are immutable once created.
type RequestRecord struct {
	Workload    string
	Concurrency int
	Node        string
	Op          string
	OK          bool
	LatencyMs   float64
	TStartMs    int64
	TEndMs      int64
}

// ChaosRecord is one request attempt from the chaos workload.
type ChaosRecord struct {
	Node      string
	Op        string
	OK        bool
	LatencyMs float64
	TStartMs  int64
	TEndMs    int64
}

// StalenessTrial is one write/sleep/read trial. IsStale means the read did
// not return exactly the most recently written value (not-found included).
type StalenessTrial struct {
	DelayMs  int
	ReadNode string
	IsStale  bool
}

// ConvergenceSample compares the digests of one node pair at one offset.
// Digests are opaque; InSync is plain string equality.
type ConvergenceSample struct {
	TOffsetS float64
	NodeA    string
	NodeB    string
	RootA    string
	RootB    string
	InSync   bool
}

// SLORecord is one deadline-tagged read.
type SLORecord struct {
	Node       string
	Class      string
	DeadlineMs int
	LatencyMs  float64
	OK         bool
	TStartMs   int64
	TEndMs     int64
}

// Recorder is an append-only collector safe for concurrent writers. The
// mixed-workload driver accumulates per-worker slices and merges them here
// after all workers have joined, so the lock never sits on the hot path.
type Recorder[T any] struct {
	mu   sync.Mutex
	recs []T
}

// NewRecorder returns an empty recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// Append adds a single record.
func (r *Recorder[T]) Append(rec T) {
	r.mu.Lock()
	r.recs = append(r.recs, rec)
	r.mu.Unlock()
}

// AppendAll merges a batch of records in one critical section.
func (r *Recorder[T]) AppendAll(recs []T) {
	r.mu.Lock()
	r.recs = append(r.recs, recs...)
	r.mu.Unlock()
}

// Len returns the current record count.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

// Snapshot returns a copy of the collected records.
func (r *Recorder[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.recs))
	copy(out, r.recs)
	return out
}
