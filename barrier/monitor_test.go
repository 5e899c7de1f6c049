package barrier_test

import (
	"sync"
	"testing"
	"time"

	"github.com/paramfabric/communicator/barrier"
)

// S6 — barrier timeout: W=3, only 2 workers call IncreaseBarrier within
// kMaxWaitMS; both calls return false, both queues stay empty, and the
// phase is unchanged.
func TestBarrierTimeout(t *testing.T) {
	m := barrier.NewMonitor(3, 7)
	go m.Run()
	defer m.Stop()

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ok, err := m.IncreaseBarrier(idx, barrier.Batch)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[idx] = ok
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if ok {
			t.Errorf("worker %d: expected IncreaseBarrier to return false on timeout", i)
		}
	}
	if m.Phase() != barrier.SendPhase {
		t.Errorf("phase changed despite timeout: %v", m.Phase())
	}
	if m.QueueLen(barrier.Batch) != 0 {
		t.Errorf("send queue not cleared after invalidate: %d", m.QueueLen(barrier.Batch))
	}
}

// S3-adjacent: with W workers all arriving, IncreaseBarrier for all of
// them returns true and the phase swaps exactly once.
func TestBarrierSwap(t *testing.T) {
	const w = 3
	m := barrier.NewMonitor(w, 7)
	go m.Run()
	defer m.Stop()

	var wg sync.WaitGroup
	results := make([]bool, w)
	for i := 0; i < w; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ok, _ := m.IncreaseBarrier(idx, barrier.Batch)
			results[idx] = ok
		}(i)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Errorf("worker %d: expected IncreaseBarrier to succeed", i)
		}
	}
	if m.Phase() != barrier.RecvPhase {
		t.Errorf("expected phase to swap to recv, got %v", m.Phase())
	}
}

// spec §8 invariant 8: a call to IncreaseBarrier returns exactly once.
func TestIncreaseBarrierReturnsOnce(t *testing.T) {
	m := barrier.NewMonitor(1, 0)
	go m.Run()
	defer m.Stop()

	done := make(chan bool, 1)
	go func() {
		ok, _ := m.IncreaseBarrier(0, barrier.Fetch)
		done <- ok
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("IncreaseBarrier never returned")
	}
}
