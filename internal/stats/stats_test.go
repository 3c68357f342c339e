package stats

import (
	"sync"
	"testing"
	"time"
)

func TestStatsConcurrentAddRequest(t *testing.T) {
	s := NewStats()

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				s.AddRequest(i%10 != 0, time.Duration(id+1)*time.Millisecond)
			}
		}(w)
	}
	wg.Wait()

	snap := s.Snapshot("A", 16)
	if snap.Requests != 16000 {
		t.Errorf("requests = %d, want 16000", snap.Requests)
	}
	if snap.Success != 14400 || snap.Fail != 1600 {
		t.Errorf("success/fail = %d/%d, want 14400/1600", snap.Success, snap.Fail)
	}
	if snap.Workload != "A" || snap.Concurrency != 16 {
		t.Errorf("snapshot labels = %q/%d", snap.Workload, snap.Concurrency)
	}
	if snap.P50Ms <= 0 || snap.P99Ms < snap.P50Ms {
		t.Errorf("percentiles look wrong: p50=%v p99=%v", snap.P50Ms, snap.P99Ms)
	}
}

func TestErrorRate(t *testing.T) {
	s := NewStats()
	if got := s.ErrorRate(); got != 0 {
		t.Errorf("error rate on empty stats = %v", got)
	}

	s.AddRequest(true, time.Millisecond)
	s.AddRequest(false, 0)
	if got := s.ErrorRate(); got != 50 {
		t.Errorf("error rate = %v, want 50", got)
	}
}
