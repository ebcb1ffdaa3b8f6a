package fanout

import (
	"sync"
	"sync/atomic"

	"PSyncProject/tools/safe"
)

// Pool is a bounded worker pool for subscriber dispatch. Submission is
// non-blocking: when the queue is full the job is dropped and counted,
// so a burst of slow subscribers can never stall the feed read loop.
type Pool struct {
	jobs    chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	p := &Pool{jobs: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				safe.Run("fanout-job", job)
			}
		}()
	}
	return p
}

// Submit queues a job; reports false when the queue was full or the
// pool is already closed.
func (p *Pool) Submit(job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped returns how many jobs were discarded, either to backpressure
// or to submission after close.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting work and waits for in-flight jobs to finish.
// Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
