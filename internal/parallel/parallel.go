// Package parallel runs persistent workers that apply a pass function to
// contiguous cell ranges. Passes are dispatched one at a time; between
// passes the workers idle on the work channel, which acts as the barrier.
package parallel

import (
	"runtime"
	"sync"
)

// serialThreshold is the minimum cell count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const serialThreshold = 4096

// chunk is a contiguous range of linear cell indices for one worker. The
// chunk id doubles as the slot for per-chunk partial reductions, so merged
// results keep a fixed order regardless of worker scheduling.
type chunk struct {
	id         int
	start, end int
}

// Pool dispatches pass bodies to a fixed set of workers.
type Pool struct {
	numWorkers int

	workChan chan chunk
	doneChan chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool

	// fn is the pass body. Written before dispatch, read by workers; the
	// channel send orders the write before any worker touches it.
	fn func(id, start, end int)
}

// New returns an idle pool; workers start on the first large Run. A
// non-positive worker count means GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{numWorkers: workers}
}

func (p *Pool) start() {
	if p.running {
		return
	}

	p.workChan = make(chan chunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers)
	p.stopChan = make(chan struct{})
	p.running = true

	for w := 0; w < p.numWorkers; w++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop terminates the workers. The pool restarts on the next Run.
func (p *Pool) Stop() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case c, ok := <-p.workChan:
			if !ok {
				return
			}
			p.fn(c.id, c.start, c.end)
			p.doneChan <- struct{}{}
		}
	}
}

// Chunks returns the number of chunks a parallel run over n cells uses.
// Per-chunk reduction buffers are sized with it.
func (p *Pool) Chunks() int { return p.numWorkers }

// Run applies fn to [0,n) split into contiguous chunks. Small ranges run
// serially on the calling goroutine as chunk 0.
func (p *Pool) Run(n int, fn func(id, start, end int)) {
	if n <= 0 {
		return
	}
	if n < serialThreshold || p.numWorkers == 1 {
		fn(0, 0, n)
		return
	}

	if !p.running {
		p.start()
	}
	p.fn = fn

	chunkSize := (n + p.numWorkers - 1) / p.numWorkers
	dispatched := 0
	for w := 0; w < p.numWorkers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			continue
		}
		p.workChan <- chunk{id: w, start: start, end: end}
		dispatched++
	}

	for c := 0; c < dispatched; c++ {
		<-p.doneChan
	}
}
