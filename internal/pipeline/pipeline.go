// Package pipeline composes a walk.Walker and a dispatch.Dispatcher into a
// single scanner.
//
// Both owned dispatchers report through adapters that turn every event into
// an item on the pipeline's own queue. Routing, stand-alone detection and
// every Observer callback therefore run on the pipeline worker, never on a
// walker or pool goroutine.
//
// Flow:
//
//	Scan(root) → scan item → Walker.Add(root)
//	Walker.OnEntryFound(path) → entry item → Classifier.Route(path)
//	  archive    → Dispatcher.Submit(path)
//	  standalone → OnStandalone(path)
//	  drop       → ignored
//	Dispatcher.OnExtracted / OnExtractionFailed → extracted / extraction_failed item
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/dispatch"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/walk"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

const (
	kindScan             workqueue.Kind = "scan"
	kindScanFailed       workqueue.Kind = "scan_failed"
	kindEntry            workqueue.Kind = "entry"
	kindExtracted        workqueue.Kind = "extracted"
	kindExtractionFailed workqueue.Kind = "extraction_failed"
)

// Config tunes a Pipeline.
type Config struct {
	Classifier Classifier
	Dispatch   dispatch.Config
}

// Pipeline owns one walker and one dispatcher.
type Pipeline struct {
	name       string
	queue      *workqueue.Queue
	walker     *walk.Walker
	dispatcher *dispatch.Dispatcher
	classifier Classifier
	observer   Observer
	logger     *slog.Logger
}

type scanFailure struct {
	root string
	err  error
}

// New builds a Pipeline and starts all three workers.
func New(name string, enum walk.Enumerator, lister archive.Lister, observer Observer, cfg Config) *Pipeline {
	if observer == nil {
		observer = NopObserver{}
	}
	if len(cfg.Classifier.ArchiveSuffixes) == 0 && len(cfg.Classifier.StandaloneSuffixes) == 0 {
		cfg.Classifier = DefaultClassifier()
	}
	p := &Pipeline{
		name:       name,
		classifier: cfg.Classifier,
		observer:   observer,
		logger:     log.WithComponent("pipeline").With("pipeline", name),
	}
	p.queue = workqueue.New(name, observer, map[workqueue.Kind]workqueue.Handler{
		kindScan:             p.handleScan,
		kindScanFailed:       p.handleScanFailed,
		kindEntry:            p.handleEntry,
		kindExtracted:        p.handleExtracted,
		kindExtractionFailed: p.handleExtractionFailed,
	})
	p.walker = walk.New(name+".walk", enum, walkAdapter{p: p})
	p.dispatcher = dispatch.New(name+".dispatch", lister, dispatchAdapter{p: p}, cfg.Dispatch)
	return p
}

// Scan queues a root directory for a full walk.
func (p *Pipeline) Scan(root string) (workqueue.Item, error) {
	return p.queue.Enqueue(kindScan, root)
}

// Submit routes a single file as if the walker had found it.
func (p *Pipeline) Submit(path string) (workqueue.Item, error) {
	return p.queue.Enqueue(kindEntry, path)
}

// Stop stops the pipeline queue and both owned dispatchers. Each drains
// what it already holds first.
func (p *Pipeline) Stop() {
	p.queue.Stop()
	p.walker.Stop()
	p.dispatcher.Stop()
}

// WaitUntilIdle blocks until the pipeline, the walker and the dispatcher
// are idle at the same moment.
func (p *Pipeline) WaitUntilIdle(ctx context.Context) bool {
	return workqueue.WaitAllIdle(ctx, p.queue, p.walker, p.dispatcher)
}

// Quiescent implements workqueue.Idler for the pipeline queue alone.
func (p *Pipeline) Quiescent() (uint64, bool) { return p.queue.Quiescent() }

// WaitUntilStopped joins the pipeline worker and both owned dispatchers.
func (p *Pipeline) WaitUntilStopped(ctx context.Context) bool {
	return p.queue.WaitUntilStopped(ctx) &&
		p.walker.WaitUntilStopped(ctx) &&
		p.dispatcher.WaitUntilStopped(ctx)
}

func (p *Pipeline) forward(kind workqueue.Kind, payload any) {
	if _, err := p.queue.Enqueue(kind, payload); err != nil {
		p.logger.Debug("dropping event", "kind", kind, "error", err)
	}
}

func (p *Pipeline) handleScan(item workqueue.Item) error {
	root, ok := item.Payload.(string)
	if !ok {
		return fmt.Errorf("scan payload is %T, want string", item.Payload)
	}
	if _, err := p.walker.Add(root); err != nil {
		if errors.Is(err, workqueue.ErrStopped) {
			p.logger.Debug("walker stopped, dropping scan", "root", root)
			return nil
		}
		return fmt.Errorf("scan %s: %w", root, err)
	}
	// Walker events come back through p.queue, so they are handled after
	// this returns.
	p.observer.OnScanRequested(root)
	return nil
}

func (p *Pipeline) handleScanFailed(item workqueue.Item) error {
	f, ok := item.Payload.(scanFailure)
	if !ok {
		return fmt.Errorf("scan failure payload is %T", item.Payload)
	}
	p.observer.OnScanFailed(f.root, f.err)
	return nil
}

func (p *Pipeline) handleEntry(item workqueue.Item) error {
	path, ok := item.Payload.(string)
	if !ok {
		return fmt.Errorf("entry payload is %T, want string", item.Payload)
	}
	switch route := p.classifier.Route(path); route {
	case RouteArchive:
		if _, err := p.dispatcher.Submit(path); err != nil {
			if errors.Is(err, workqueue.ErrStopped) {
				p.logger.Debug("dispatcher stopped, skipping archive", "path", path)
				return nil
			}
			return fmt.Errorf("submit %s: %w", path, err)
		}
	case RouteStandalone:
		p.observer.OnStandalone(path)
	default:
		p.logger.Debug("ignoring file", "path", path)
	}
	return nil
}

func (p *Pipeline) handleExtracted(item workqueue.Item) error {
	listing, ok := item.Payload.(archive.Listing)
	if !ok {
		return fmt.Errorf("extracted payload is %T, want archive.Listing", item.Payload)
	}
	p.observer.OnExtracted(listing)
	return nil
}

func (p *Pipeline) handleExtractionFailed(item workqueue.Item) error {
	f, ok := item.Payload.(dispatch.Failure)
	if !ok {
		return fmt.Errorf("extraction failure payload is %T, want dispatch.Failure", item.Payload)
	}
	p.observer.OnExtractionFailed(f.Source, f.Err)
	return nil
}

// walkAdapter re-raises walker events as pipeline items.
type walkAdapter struct {
	walk.NopObserver
	p *Pipeline
}

func (a walkAdapter) OnEntryFound(path string) { a.p.forward(kindEntry, path) }

func (a walkAdapter) OnItemFailed(item workqueue.Item, err error) {
	root, _ := item.Payload.(string)
	a.p.forward(kindScanFailed, scanFailure{root: root, err: err})
}

// dispatchAdapter re-raises dispatcher outcomes as pipeline items.
type dispatchAdapter struct {
	dispatch.NopObserver
	p *Pipeline
}

func (a dispatchAdapter) OnExtracted(listing archive.Listing) { a.p.forward(kindExtracted, listing) }

func (a dispatchAdapter) OnExtractionFailed(source string, err error) {
	a.p.forward(kindExtractionFailed, dispatch.Failure{Source: source, Err: err})
}
