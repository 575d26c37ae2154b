// Package walk enumerates directory trees on a dedicated worker goroutine.
//
// Each root added to a Walker is one work item. The whole tree is walked
// inline while that item is handled and OnEntryFound fires once per file,
// synchronously and without going through the queue. A large tree blocks
// the Walker until it has been fully walked.
package walk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

const kindRoot workqueue.Kind = "root"

// Observer receives Walker events.
type Observer interface {
	workqueue.Observer
	OnEntryFound(path string)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{ workqueue.NopObserver }

func (NopObserver) OnEntryFound(string) {}

// Walker is the recursive enumeration dispatcher.
type Walker struct {
	queue    *workqueue.Queue
	enum     Enumerator
	observer Observer
	logger   *slog.Logger
}

// New creates a Walker and starts its worker.
func New(name string, enum Enumerator, observer Observer) *Walker {
	if observer == nil {
		observer = NopObserver{}
	}
	w := &Walker{
		enum:     enum,
		observer: observer,
		logger:   log.WithComponent("walk").With("walker", name),
	}
	w.queue = workqueue.New(name, observer, map[workqueue.Kind]workqueue.Handler{
		kindRoot: w.handleRoot,
	})
	return w
}

// Add queues a root directory.
func (w *Walker) Add(root string) (workqueue.Item, error) {
	return w.queue.Enqueue(kindRoot, root)
}

func (w *Walker) Stop()                                     { w.queue.Stop() }
func (w *Walker) WaitUntilIdle(ctx context.Context) bool    { return w.queue.WaitUntilIdle(ctx) }
func (w *Walker) WaitUntilStopped(ctx context.Context) bool { return w.queue.WaitUntilStopped(ctx) }
func (w *Walker) Quiescent() (uint64, bool)                 { return w.queue.Quiescent() }

func (w *Walker) handleRoot(item workqueue.Item) error {
	root, ok := item.Payload.(string)
	if !ok {
		return fmt.Errorf("root payload is %T, want string", item.Payload)
	}

	var (
		errs  []error
		found int
	)
	for path, err := range w.enum.Enumerate(root) {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		found++
		w.observer.OnEntryFound(path)
	}
	w.logger.Debug("walked root", "root", root, "files", found)

	if len(errs) > 0 {
		return fmt.Errorf("walk %s: %w", root, errors.Join(errs...))
	}
	return nil
}
