// Package dispatch lists archives on a bounded worker pool while keeping
// every observer callback on a single goroutine.
//
// A Dispatcher is a workqueue.Queue with three item kinds:
//
//   - submit: handed to the pool immediately, on the queue worker
//   - result: a pool task listed an archive; fires OnExtracted
//   - failure: a pool task failed; fires OnExtractionFailed
//
// Pool tasks never call the observer. They report back only by enqueueing a
// result or failure item, so OnExtracted and OnExtractionFailed are
// serialised with every other event of the dispatcher.
//
// Each submitted archive is retained on the queue from the moment its task
// is handed to the pool until the task has enqueued its outcome.
// WaitUntilIdle therefore waits for running tasks even though the submit
// item itself finishes as soon as the task is started.
//
// Error handling:
//   - Lister error → failure item carrying the error; any partial listing is dropped
//   - Lister panic → failure item carrying a *workqueue.PanicError
//   - Pool rejects the task → failure item carrying the rejection
//
// Stop drains pending items and then shuts the owned pool down. It does not
// cancel tasks that are already running; their outcomes are dropped because
// the queue no longer accepts items.
//
// TODO: cancel the per-list context on Stop so a slow lister cannot hold
// shutdown open for a full Timeout.
package dispatch
