package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

var errPage = errors.New("page failed")

type pageResult struct {
	index int
	err   error
}

func (r *pageResult) GetError() error { return r.err }

// pageJob stands in for a route fetch: it optionally blocks, then succeeds or fails
type pageJob struct {
	index   int
	block   time.Duration
	fail    bool
	running *atomic.Int32
	peak    *atomic.Int32
	ran     *atomic.Int32
}

func (j *pageJob) Execute(ctx context.Context) Result {
	if j.ran != nil {
		j.ran.Add(1)
	}
	if j.running != nil {
		n := j.running.Add(1)
		defer j.running.Add(-1)
		for {
			peak := j.peak.Load()
			if n <= peak || j.peak.CompareAndSwap(peak, n) {
				break
			}
		}
	}

	if j.block > 0 {
		select {
		case <-time.After(j.block):
		case <-ctx.Done():
			return &pageResult{index: j.index, err: ctx.Err()}
		}
	}
	if j.fail {
		return &pageResult{index: j.index, err: fmt.Errorf("route %d: %w", j.index, errPage)}
	}
	return &pageResult{index: j.index}
}

func TestNewPool_WorkerFloor(t *testing.T) {
	for _, n := range []int{0, -3} {
		if p := NewPool(context.Background(), n); p.workers != 1 {
			t.Errorf("NewPool(%d): expected 1 worker, got %d", n, p.workers)
		}
	}
	if p := NewPool(context.Background(), 6); p.workers != 6 {
		t.Errorf("expected 6 workers, got %d", p.workers)
	}
}

func TestPool_SequentialDrainsLongQueue(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	var ran atomic.Int32
	const routes = 200
	for i := 0; i < routes; i++ {
		if !pool.Submit(&pageJob{index: i, ran: &ran}) {
			t.Fatalf("route %d rejected", i)
		}
	}

	done := make(chan []Result)
	go func() { done <- pool.Wait() }()

	select {
	case results := <-done:
		if len(results) != routes || ran.Load() != routes {
			t.Errorf("expected %d results and runs, got %d and %d", routes, len(results), ran.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool deadlocked on a queue longer than its buffers")
	}
}

func TestPool_NeverExceedsWorkers(t *testing.T) {
	const workers = 3
	pool := NewPool(context.Background(), workers)
	pool.Start()

	var running, peak atomic.Int32
	for i := 0; i < 30; i++ {
		pool.Submit(&pageJob{index: i, block: 5 * time.Millisecond, running: &running, peak: &peak})
	}
	results := pool.Wait()

	if len(results) != 30 {
		t.Errorf("expected 30 results, got %d", len(results))
	}
	if got := peak.Load(); got > workers || got < 1 {
		t.Errorf("expected between 1 and %d concurrent jobs, saw %d", workers, got)
	}
}

func TestPool_ReportsJobErrors(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Start()

	for i := 0; i < 6; i++ {
		pool.Submit(&pageJob{index: i, fail: i%3 == 0})
	}

	failed := 0
	for _, r := range pool.Wait() {
		if err := r.GetError(); err != nil {
			if !errors.Is(err, errPage) {
				t.Errorf("unexpected error %v", err)
			}
			failed++
		}
	}
	if failed != 2 {
		t.Errorf("expected 2 failed jobs, got %d", failed)
	}
}

func TestPool_WaitIsIdempotent(t *testing.T) {
	pool := NewPool(context.Background(), 2)
	pool.Submit(&pageJob{index: 0})

	first := pool.Wait()
	second := pool.Wait()
	if len(first) != 1 || len(second) != 1 {
		t.Errorf("expected one result from both waits, got %d and %d", len(first), len(second))
	}
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()
	pool.Shutdown()

	accepted := make(chan bool, 1)
	go func() { accepted <- pool.Submit(&pageJob{}) }()

	select {
	case ok := <-accepted:
		if ok {
			t.Error("expected submit after shutdown to be rejected")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit after shutdown blocked")
	}
	pool.Wait()
}

func TestPool_ShutdownInterruptsRunningJob(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	pool.Submit(&pageJob{block: time.Hour})
	time.Sleep(10 * time.Millisecond)
	pool.Shutdown()

	done := make(chan []Result)
	go func() { done <- pool.Wait() }()

	select {
	case results := <-done:
		if len(results) != 1 || !errors.Is(results[0].GetError(), context.Canceled) {
			t.Errorf("expected one cancelled result, got %v", results)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait after shutdown timed out")
	}
}

func TestPool_CancelledParentDropsQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()

	var ran atomic.Int32
	pool.Submit(&pageJob{index: 0, block: time.Hour, ran: &ran})
	time.Sleep(10 * time.Millisecond)
	pool.Submit(&pageJob{index: 1, ran: &ran})
	cancel()

	pool.Wait()
	if got := ran.Load(); got != 1 {
		t.Errorf("expected only the running job to have run, got %d", got)
	}
}

func TestResultCollector_ReturnsCopy(t *testing.T) {
	c := NewResultCollector()
	c.Add(&pageResult{index: 0})
	c.Add(&pageResult{index: 1, err: errPage})

	res := c.Results()
	res[0] = nil
	if again := c.Results(); len(again) != 2 || again[0] == nil {
		t.Error("Results exposed the collector's internal slice")
	}
}
