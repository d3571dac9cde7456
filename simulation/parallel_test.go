package simulation

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolChunks(t *testing.T) {
	tests := []struct {
		n, workers int
		want       int
	}{
		{0, 4, 0},
		{1, 4, 1},
		{3, 4, 3},
		{10, 4, 4}, // 3 + 3 + 3 + 1
		{12, 4, 4},
		{13, 4, 4}, // 4 + 4 + 4 + 1
		{100, 3, 3},
	}
	for _, tt := range tests {
		p := NewPool(tt.workers, func(task) {})
		if got := p.Chunks(tt.n); got != tt.want {
			t.Errorf("Chunks(%d) with %d workers = %d, want %d", tt.n, tt.workers, got, tt.want)
		}
		p.Close()
	}
}

func TestPoolDispatchCoversRange(t *testing.T) {
	const n = 103
	visits := make([]int32, n)
	var chunkSeen [8]int32

	p := NewPool(4, func(tk task) {
		atomic.AddInt32(&chunkSeen[tk.chunk], 1)
		for i := tk.start; i < tk.end; i++ {
			atomic.AddInt32(&visits[i], 1)
		}
	})
	defer p.Close()

	// Several fork-join rounds reuse the same workers.
	for round := 1; round <= 3; round++ {
		chunks := p.Dispatch(n, phaseDensityPressure, 0.1)
		p.Wait()

		if chunks != p.Chunks(n) {
			t.Fatalf("Dispatch queued %d tasks, Chunks says %d", chunks, p.Chunks(n))
		}
		for i, v := range visits {
			if int(v) != round {
				t.Fatalf("round %d: index %d visited %d times", round, i, v)
			}
		}
		for c := 0; c < chunks; c++ {
			if int(chunkSeen[c]) != round {
				t.Errorf("round %d: chunk %d ran %d times", round, c, chunkSeen[c])
			}
		}
	}
}

func TestPoolDispatchEmpty(t *testing.T) {
	p := NewPool(2, func(task) { t.Error("task ran for empty dispatch") })
	defer p.Close()

	if got := p.Dispatch(0, phaseViscosity, 0); got != 0 {
		t.Errorf("Dispatch(0) = %d, want 0", got)
	}
	// Must not block.
	p.Wait()
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := NewPool(3, func(task) {})
	if p.Workers() != 3 {
		t.Errorf("Workers() = %d, want 3", p.Workers())
	}
	p.Close()
	p.Close()
}

func TestPoolCloseWaitsForRunningTask(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	var ran atomic.Int32
	p := NewPool(1, func(task) {
		started <- struct{}{}
		<-release
		ran.Add(1)
	})

	// One worker: the first task runs, the second stays queued.
	p.Dispatch(1, phaseViscosity, 0)
	p.Dispatch(1, phaseDensityPressure, 0)
	<-started

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a task was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed

	if got := ran.Load(); got != 1 {
		t.Errorf("tasks run = %d, want 1 (queued task dropped)", got)
	}
	if p.pending != 0 {
		t.Errorf("pending after Close = %d, want 0", p.pending)
	}
	p.Wait()
}

func TestAccumulatorsMerge(t *testing.T) {
	var a accumulators
	a.reset(3, 2)
	for c := 0; c < 3; c++ {
		for i := range a.bufs[c] {
			a.bufs[c][i] = float32(c + 1)
		}
	}
	got := a.merge(3)
	for i, v := range got {
		if v != 6 {
			t.Errorf("merged[%d] = %v, want 6", i, v)
		}
	}

	// Reset zeroes reused buffers.
	a.reset(2, 2)
	for c := 0; c < 2; c++ {
		for i, v := range a.bufs[c] {
			if v != 0 {
				t.Errorf("bufs[%d][%d] = %v after reset, want 0", c, i, v)
			}
		}
	}
}
