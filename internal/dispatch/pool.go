package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 5

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pool closed")

// Executor runs tasks asynchronously. Pool is the default implementation;
// callers may share one Executor between dispatchers.
type Executor interface {
	Submit(task func()) error
}

// Pool is a fixed-size set of worker goroutines.
type Pool struct {
	size   int
	tasks  chan func()
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewPool starts size workers. A size of zero or less means DefaultWorkers.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	p := &Pool{
		size:   size,
		tasks:  make(chan func(), size*8),
		logger: log.WithComponent("pool"),
		done:   make(chan struct{}),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit queues task for a worker. It blocks while the backlog is full.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

// Close stops accepting tasks. Tasks already queued still run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

// Wait blocks until every worker has exited after Close.
func (p *Pool) Wait(ctx context.Context) bool {
	select {
	case <-p.done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.tasks {
		// Keep the worker alive whatever the task does.
		if err := workqueue.Safely(func() error { task(); return nil }); err != nil {
			p.logger.Error("pool task panicked", "error", err)
		}
	}
}
