// Package worker provides the execution substrates download tasks are
// submitted to.
package worker

import (
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Executor runs submitted work, possibly on another goroutine.
type Executor interface {
	Submit(fn func())
}

// Inline runs work synchronously on the submitting goroutine.
type Inline struct{}

func (Inline) Submit(fn func()) { fn() }

// Pool is a fixed set of background workers draining a FIFO queue.
// Submitting after Shutdown panics.
type Pool struct {
	queue chan func()
	g     errgroup.Group
	once  sync.Once
}

// NewPool starts workers goroutines with room for backlog queued jobs.
func NewPool(workers, backlog int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if backlog < 0 {
		backlog = 0
	}

	p := &Pool{queue: make(chan func(), backlog)}
	for i := 0; i < workers; i++ {
		p.g.Go(p.loop)
	}

	slog.Info("worker_pool_started", "workers", workers, "backlog", backlog)
	return p
}

func (p *Pool) loop() error {
	for fn := range p.queue {
		fn()
	}
	return nil
}

// Submit queues fn, blocking while the backlog is full.
func (p *Pool) Submit(fn func()) {
	p.queue <- fn
}

// Shutdown stops accepting work and waits for queued work to finish.
func (p *Pool) Shutdown() {
	p.once.Do(func() { close(p.queue) })
	p.g.Wait()
	slog.Info("worker_pool_stopped")
}
