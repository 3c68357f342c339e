package record

import (
	"sync"
	"testing"
)

func TestRecorderConcurrentAppend(t *testing.T) {
	const (
		writers      = 32
		perWriter    = 500
		batchWriters = 8
		recsPerBatch = 100
	)

	rec := NewRecorder[RequestRecord]()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec.Append(RequestRecord{Concurrency: id, TStartMs: int64(i)})
			}
		}(w)
	}
	for w := 0; w < batchWriters; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]RequestRecord, recsPerBatch)
			rec.AppendAll(batch)
		}()
	}
	wg.Wait()

	want := writers*perWriter + batchWriters*recsPerBatch
	if got := rec.Len(); got != want {
		t.Errorf("Len = %d, want %d", got, want)
	}
	if got := len(rec.Snapshot()); got != want {
		t.Errorf("Snapshot len = %d, want %d", got, want)
	}
}

func TestRecorderSnapshotIsCopy(t *testing.T) {
	rec := NewRecorder[StalenessTrial]()
	rec.Append(StalenessTrial{DelayMs: 10, ReadNode: "node-a"})

	snap := rec.Snapshot()
	snap[0].ReadNode = "mutated"

	if rec.Snapshot()[0].ReadNode != "node-a" {
		t.Error("mutating a snapshot leaked into the recorder")
	}
}
