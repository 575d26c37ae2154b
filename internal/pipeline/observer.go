package pipeline

import (
	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

// Observer receives Pipeline events. Every method except OnEnqueue runs on
// the pipeline worker goroutine.
type Observer interface {
	workqueue.Observer
	OnScanRequested(root string)
	OnScanFailed(root string, err error)
	OnExtracted(listing archive.Listing)
	OnExtractionFailed(source string, err error)
	OnStandalone(path string)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{ workqueue.NopObserver }

func (NopObserver) OnScanRequested(string)           {}
func (NopObserver) OnScanFailed(string, error)       {}
func (NopObserver) OnExtracted(archive.Listing)      {}
func (NopObserver) OnExtractionFailed(string, error) {}
func (NopObserver) OnStandalone(string)              {}

// Observers fans every event out to each observer in order.
func Observers(observers ...Observer) Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multi []Observer

func (m multi) OnEnqueue(item workqueue.Item) {
	for _, o := range m {
		o.OnEnqueue(item)
	}
}

func (m multi) OnFinished(item workqueue.Item) {
	for _, o := range m {
		o.OnFinished(item)
	}
}

func (m multi) OnItemFailed(item workqueue.Item, err error) {
	for _, o := range m {
		o.OnItemFailed(item, err)
	}
}

func (m multi) OnAllDone() {
	for _, o := range m {
		o.OnAllDone()
	}
}

func (m multi) OnStopped() {
	for _, o := range m {
		o.OnStopped()
	}
}

func (m multi) OnScanRequested(root string) {
	for _, o := range m {
		o.OnScanRequested(root)
	}
}

func (m multi) OnScanFailed(root string, err error) {
	for _, o := range m {
		o.OnScanFailed(root, err)
	}
}

func (m multi) OnExtracted(listing archive.Listing) {
	for _, o := range m {
		o.OnExtracted(listing)
	}
}

func (m multi) OnExtractionFailed(source string, err error) {
	for _, o := range m {
		o.OnExtractionFailed(source, err)
	}
}

func (m multi) OnStandalone(path string) {
	for _, o := range m {
		o.OnStandalone(path)
	}
}
