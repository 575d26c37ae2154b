package workqueue

// Observer receives lifecycle events from a Queue.
// OnEnqueue runs on the producer goroutine; everything else runs on the worker.
type Observer interface {
	OnEnqueue(item Item)
	OnFinished(item Item)
	OnItemFailed(item Item, err error)
	OnAllDone()
	OnStopped()
}

// NopObserver implements Observer with no-ops. Embed it to override only
// the events you care about.
type NopObserver struct{}

func (NopObserver) OnEnqueue(Item)           {}
func (NopObserver) OnFinished(Item)          {}
func (NopObserver) OnItemFailed(Item, error) {}
func (NopObserver) OnAllDone()               {}
func (NopObserver) OnStopped()               {}
