package simulation

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/blas/blas32"
)

// phase selects the range function a task runs.
type phase uint8

const (
	phaseViscosity phase = iota
	phaseNeighborSearch
	phaseDensityPressure
	phaseDeltaPositions
)

// task is one contiguous index range of a parallel phase.
// chunk selects the per-range scratch state.
type task struct {
	phase      phase
	chunk      int
	start, end int
	dt         float32
}

// Pool is a fixed set of worker goroutines fed from a mutex and condition
// variable protected queue. Dispatch enqueues one phase, Wait blocks until
// every task of it finished.
type Pool struct {
	mu      sync.Mutex
	work    *sync.Cond // Signaled when tasks are queued or the pool stops
	done    *sync.Cond // Signaled when pending reaches zero
	queue   []task
	pending int
	stopped bool

	workers int
	wg      sync.WaitGroup
	run     func(task)
}

// NewPool starts workers goroutines running run. workers <= 0 means GOMAXPROCS.
func NewPool(workers int, run func(task)) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		run:     run,
		queue:   make([]task, 0, workers),
	}
	p.work = sync.NewCond(&p.mu)
	p.done = sync.NewCond(&p.mu)

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// worker runs in a goroutine, processing tasks until stopped.
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.work.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(t)

		p.mu.Lock()
		p.pending--
		if p.pending == 0 {
			p.done.Broadcast()
		}
		p.mu.Unlock()
	}
}

// chunkSize splits n items over the workers, rounding up.
func chunkSize(n, workers int) int {
	return max((n+workers-1)/workers, 1)
}

// Chunks returns how many tasks Dispatch queues for n items.
func (p *Pool) Chunks(n int) int {
	if n <= 0 {
		return 0
	}
	size := chunkSize(n, p.workers)
	return (n + size - 1) / size
}

// Dispatch splits [0, n) into contiguous ranges of ceil(n/workers) items and
// queues one task per range. The last range is clipped to n. Returns the
// number of tasks queued.
func (p *Pool) Dispatch(n int, ph phase, dt float32) int {
	if n <= 0 {
		return 0
	}
	size := chunkSize(n, p.workers)

	p.mu.Lock()
	chunks := 0
	for start := 0; start < n; start += size {
		p.queue = append(p.queue, task{
			phase: ph,
			chunk: chunks,
			start: start,
			end:   min(start+size, n),
			dt:    dt,
		})
		chunks++
	}
	p.pending += chunks
	p.mu.Unlock()
	p.work.Broadcast()
	return chunks
}

// Wait blocks until every dispatched task finished.
func (p *Pool) Wait() {
	p.mu.Lock()
	for p.pending > 0 {
		p.done.Wait()
	}
	p.mu.Unlock()
}

// Close stops the workers and waits for them to exit. Queued tasks are
// dropped; tasks already running finish first.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.pending -= len(p.queue)
	p.queue = p.queue[:0]
	for p.pending > 0 {
		p.done.Wait()
	}
	p.stopped = true
	p.mu.Unlock()

	p.work.Broadcast()
	p.done.Broadcast()
	p.wg.Wait()
}

// accumulators holds one x,y buffer per task range. Ranges write their own
// buffer; merge sums them in range order so results do not depend on which
// worker ran which range.
type accumulators struct {
	bufs [][]float32
}

// reset sizes chunks buffers to 2n zeros.
func (a *accumulators) reset(chunks, n int) {
	for len(a.bufs) < chunks {
		a.bufs = append(a.bufs, nil)
	}
	for i := 0; i < chunks; i++ {
		if cap(a.bufs[i]) < 2*n {
			a.bufs[i] = make([]float32, 2*n)
		} else {
			a.bufs[i] = a.bufs[i][:2*n]
			clear(a.bufs[i])
		}
	}
}

// merge adds buffers 1..chunks-1 into buffer 0 and returns it.
func (a *accumulators) merge(chunks int) []float32 {
	dst := a.bufs[0]
	y := blas32.Vector{N: len(dst), Inc: 1, Data: dst}
	for i := 1; i < chunks; i++ {
		x := blas32.Vector{N: len(dst), Inc: 1, Data: a.bufs[i]}
		blas32.Axpy(1, x, y)
	}
	return dst
}
