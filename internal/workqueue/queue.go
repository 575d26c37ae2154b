package workqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/mattjoyce/jarscout/internal/log"
)

// Queue is a single-worker FIFO dispatcher.
type Queue struct {
	name     string
	observer Observer
	handlers map[Kind]Handler
	logger   *slog.Logger

	// enqueueMu serialises producers so that ids, OnEnqueue calls and queue
	// order agree, and so that nothing can land behind the stop sentinel.
	enqueueMu sync.Mutex
	nextID    uint64
	stopped   bool

	mu       sync.Mutex
	items    []Item
	active   map[uint64]struct{}
	retained map[uint64]struct{}
	gen      uint64
	idle     chan struct{}
	isIdle   bool

	wake chan struct{}
	done chan struct{}
}

// New creates a Queue and starts its worker goroutine. The handler table is
// copied; it cannot change after construction.
func New(name string, observer Observer, handlers map[Kind]Handler) *Queue {
	if observer == nil {
		observer = NopObserver{}
	}
	q := &Queue{
		name:     name,
		observer: observer,
		handlers: maps.Clone(handlers),
		logger:   log.WithComponent("workqueue").With("queue", name),
		active:   make(map[uint64]struct{}),
		retained: make(map[uint64]struct{}),
		idle:     make(chan struct{}),
		isIdle:   true,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	close(q.idle)
	if q.handlers == nil {
		q.handlers = make(map[Kind]Handler)
	}
	go q.run()
	return q
}

// Name returns the queue name used in logs.
func (q *Queue) Name() string { return q.name }

// Enqueue allocates the next id, fires OnEnqueue on the calling goroutine,
// marks the item active and hands it to the worker.
func (q *Queue) Enqueue(kind Kind, payload any) (Item, error) {
	if kind == KindStop {
		return Item{}, fmt.Errorf("enqueue %q: %w", kind, ErrReservedKind)
	}
	return q.push(kind, payload, true)
}

// Stop queues the stop sentinel behind any pending work. Calling it again
// has no effect.
func (q *Queue) Stop() {
	if _, err := q.push(KindStop, nil, false); err != nil && !errors.Is(err, ErrStopped) {
		q.logger.Error("failed to queue stop", "error", err)
	}
}

func (q *Queue) push(kind Kind, payload any, track bool) (Item, error) {
	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	if q.stopped {
		return Item{}, ErrStopped
	}
	item := Item{ID: q.nextID, Kind: kind, Payload: payload}
	q.nextID++
	if kind == KindStop {
		q.stopped = true
	}

	q.observer.OnEnqueue(item)

	q.mu.Lock()
	if track {
		q.active[item.ID] = struct{}{}
		q.markBusyLocked()
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return item, nil
}

// Retain marks key as work in progress outside the worker. The queue does
// not report idle until every retained key has been released.
func (q *Queue) Retain(key uint64) {
	q.mu.Lock()
	q.retained[key] = struct{}{}
	q.markBusyLocked()
	q.mu.Unlock()
}

// Release drops a key added by Retain.
func (q *Queue) Release(key uint64) {
	q.mu.Lock()
	delete(q.retained, key)
	q.maybeIdleLocked()
	q.mu.Unlock()
}

// Retained reports the number of keys currently retained.
func (q *Queue) Retained() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retained)
}

// Quiescent returns a generation counter that changes whenever the queue
// takes on work, and whether the queue is idle right now.
func (q *Queue) Quiescent() (uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.gen, q.isIdle
}

// WaitUntilIdle blocks until the active and retained sets are both empty.
// It returns false if ctx ends first.
func (q *Queue) WaitUntilIdle(ctx context.Context) bool {
	q.mu.Lock()
	ch := q.idle
	q.mu.Unlock()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// WaitUntilStopped blocks until the worker goroutine has exited.
// It returns false if ctx ends first.
func (q *Queue) WaitUntilStopped(ctx context.Context) bool {
	select {
	case <-q.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Done is closed when the worker goroutine exits.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) run() {
	defer close(q.done)
	q.logger.Debug("worker started")

	for {
		item := q.pop()
		if item.Kind == KindStop {
			q.logger.Debug("worker stopped")
			q.observer.OnStopped()
			return
		}

		if err := q.handle(item); err != nil {
			q.logger.Error("handler failed", "item_id", item.ID, "kind", string(item.Kind), "error", err)
			q.observer.OnItemFailed(item, err)
		}
		q.observer.OnFinished(item)

		if q.finish(item.ID) {
			q.observer.OnAllDone()
			q.mu.Lock()
			q.maybeIdleLocked()
			q.mu.Unlock()
		}
	}
}

func (q *Queue) pop() Item {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *Queue) handle(item Item) error {
	h, ok := q.handlers[item.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, item.Kind)
	}
	return Safely(func() error { return h(item) })
}

// finish removes id from the active set and reports whether it is now empty.
func (q *Queue) finish(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, id)
	return len(q.active) == 0
}

func (q *Queue) markBusyLocked() {
	q.gen++
	if q.isIdle {
		q.idle = make(chan struct{})
		q.isIdle = false
	}
}

func (q *Queue) maybeIdleLocked() {
	if q.isIdle || len(q.active) > 0 || len(q.retained) > 0 {
		return
	}
	q.isIdle = true
	close(q.idle)
}
