// Package worker provides the shared background pool used for ingest jobs
// and browse-cache refreshes.
package worker

import (
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool runs submitted jobs on a fixed set of goroutines. Jobs are executed
// in submission order per worker but not globally ordered.
type Pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool starts a pool with the given number of workers; size <= 0 uses
// one worker per CPU.
func NewPool(size int, logger *logrus.Logger) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if logger == nil {
		logger = logrus.New()
	}

	p := &Pool{
		jobs:   make(chan func(), 256),
		logger: logger,
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

// run executes a single job, containing any panic so a faulty job can never
// take the pool down.
func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Error("Background job panicked")
		}
	}()
	job()
}

// Submit enqueues a job. It returns false if the pool is closed or the queue
// is full; callers that care run the job inline in that case.
func (p *Pool) Submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
