// Package workqueue implements the single-worker dispatcher every other
// dispatcher in jarscout is built on.
//
// A Queue owns exactly one goroutine that drains an unbounded FIFO of
// Items. Each Item is handled once by the handler registered for its Kind
// when the Queue was constructed, then reported to the Observer:
//
//   - OnEnqueue fires on the producer goroutine, before the item is queued
//   - OnItemFailed fires on the worker when the handler returns an error or panics
//   - OnFinished fires on the worker after the handler returns
//   - OnAllDone fires on the worker when the active set drains
//   - OnStopped fires once, when the stop sentinel is consumed
//
// Stop is not prioritised: the sentinel is appended behind whatever is
// already queued, so pending work drains first. Once Stop has been called
// further enqueues fail with ErrStopped.
//
// Retain and Release let a dispatcher hold the queue busy for work that
// runs outside the worker (pool tasks). WaitUntilIdle only succeeds when
// the active set and the retained set are both empty, observed under one
// lock, so a caller can never see "idle" while retained work is running.
package workqueue
