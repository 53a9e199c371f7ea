package worker

import (
	"context"
	"sync"
)

// Job is one unit of pool work
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a Job hands back
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers. Results are drained as they
// arrive, so Submit never deadlocks against an unread result queue.
type Pool struct {
	workers int
	jobs    chan Job
	out     chan Result
	sink    *ResultCollector

	ctx    context.Context
	cancel context.CancelFunc

	running sync.WaitGroup
	drained chan struct{}

	started  sync.Once
	finished sync.Once
}

// NewPool creates a pool of workers bound to ctx. Fewer than one worker means one.
func NewPool(ctx context.Context, workers int) *Pool {
	workers = max(workers, 1)
	poolCtx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		jobs:    make(chan Job, workers),
		out:     make(chan Result, workers),
		sink:    NewResultCollector(),
		ctx:     poolCtx,
		cancel:  cancel,
		drained: make(chan struct{}),
	}
}

// Start launches the workers. Calling it again does nothing.
func (p *Pool) Start() {
	p.started.Do(func() {
		go p.drain()
		p.running.Add(p.workers)
		for range p.workers {
			go p.work()
		}
	})
}

func (p *Pool) drain() {
	defer close(p.drained)
	for r := range p.out {
		p.sink.Add(r)
	}
}

func (p *Pool) work() {
	defer p.running.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			// A cancelled pool drops jobs it already dequeued
			if !ok || p.ctx.Err() != nil {
				return
			}
			p.out <- job.Execute(p.ctx)
		}
	}
}

// Submit queues a job. It returns false once the pool is cancelled.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Wait closes the queue, lets the workers finish and returns the results in
// completion order. Later calls return the same results.
func (p *Pool) Wait() []Result {
	p.finished.Do(func() {
		p.Start()
		close(p.jobs)
		p.running.Wait()
		close(p.out)
		<-p.drained
		p.cancel()
	})
	return p.sink.Results()
}

// Shutdown cancels the pool. Running jobs see a cancelled context and queued
// jobs are dropped. Wait must still be called.
func (p *Pool) Shutdown() {
	p.cancel()
}

// ResultCollector gathers results from concurrent producers
type ResultCollector struct {
	mu      sync.Mutex
	results []Result
}

func NewResultCollector() *ResultCollector {
	return &ResultCollector{}
}

// Add appends a result
func (c *ResultCollector) Add(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

// Results returns a copy of what has been collected so far
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}
