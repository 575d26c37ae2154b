package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

const (
	kindSubmit  workqueue.Kind = "submit"
	kindResult  workqueue.Kind = "result"
	kindFailure workqueue.Kind = "failure"
)

// Observer receives dispatcher events. All methods run on the dispatcher's
// worker goroutine except OnEnqueue.
type Observer interface {
	workqueue.Observer
	OnExtracted(listing archive.Listing)
	OnExtractionFailed(source string, err error)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{ workqueue.NopObserver }

func (NopObserver) OnExtracted(archive.Listing)      {}
func (NopObserver) OnExtractionFailed(string, error) {}

// Failure is the payload of a failure item.
type Failure struct {
	Source string
	Err    error
}

// Config tunes a Dispatcher.
type Config struct {
	// Workers sizes the owned pool. Ignored when Executor is set.
	Workers int
	// Executor, when set, runs tasks instead of an owned pool. The
	// dispatcher never closes it.
	Executor Executor
	// Timeout bounds each List call. Zero means no bound.
	Timeout time.Duration
	// RateLimit caps List calls per second across all workers. Zero means unlimited.
	RateLimit float64
	RateBurst int
}

// Dispatcher lists archives on a bounded pool and serialises the outcomes.
type Dispatcher struct {
	queue    *workqueue.Queue
	lister   archive.Lister
	observer Observer
	exec     Executor
	pool     *Pool
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Dispatcher and starts its worker.
func New(name string, lister archive.Lister, observer Observer, cfg Config) *Dispatcher {
	if observer == nil {
		observer = NopObserver{}
	}
	d := &Dispatcher{
		lister:   lister,
		observer: observer,
		exec:     cfg.Executor,
		timeout:  cfg.Timeout,
		logger:   log.WithComponent("dispatch").With("dispatcher", name),
	}
	if d.exec == nil {
		d.pool = NewPool(cfg.Workers)
		d.exec = d.pool
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	d.queue = workqueue.New(name, stopHook{Observer: observer, onStop: d.closePool}, map[workqueue.Kind]workqueue.Handler{
		kindSubmit:  d.handleSubmit,
		kindResult:  d.handleResult,
		kindFailure: d.handleFailure,
	})
	return d
}

// Submit queues an archive for listing.
func (d *Dispatcher) Submit(path string) (workqueue.Item, error) {
	return d.queue.Enqueue(kindSubmit, path)
}

// Stop queues the stop sentinel. See the package doc for what it does not cancel.
func (d *Dispatcher) Stop() { d.queue.Stop() }

// WaitUntilIdle blocks until no item is queued or being handled and no
// pool task is outstanding.
func (d *Dispatcher) WaitUntilIdle(ctx context.Context) bool { return d.queue.WaitUntilIdle(ctx) }

// Quiescent implements workqueue.Idler.
func (d *Dispatcher) Quiescent() (uint64, bool) { return d.queue.Quiescent() }

// WaitUntilStopped blocks until the worker has exited and, for an owned
// pool, every pool worker has exited too.
func (d *Dispatcher) WaitUntilStopped(ctx context.Context) bool {
	if !d.queue.WaitUntilStopped(ctx) {
		return false
	}
	if d.pool == nil {
		return true
	}
	return d.pool.Wait(ctx)
}

// Outstanding returns the number of pool tasks that have not reported back.
func (d *Dispatcher) Outstanding() int { return d.queue.Retained() }

func (d *Dispatcher) handleSubmit(item workqueue.Item) error {
	path, ok := item.Payload.(string)
	if !ok {
		return fmt.Errorf("submit payload is %T, want string", item.Payload)
	}

	d.queue.Retain(item.ID)
	if err := d.exec.Submit(func() { d.extract(item.ID, path) }); err != nil {
		d.queue.Release(item.ID)
		d.logger.Warn("pool rejected archive", "path", path, "error", err)
		if _, qerr := d.queue.Enqueue(kindFailure, Failure{Source: path, Err: fmt.Errorf("submit to pool: %w", err)}); qerr != nil {
			return qerr
		}
	}
	return nil
}

// extract runs on a pool goroutine. It reports only through the queue.
func (d *Dispatcher) extract(key uint64, path string) {
	defer d.queue.Release(key)

	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var listing archive.Listing
	err := workqueue.Safely(func() error {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit: %w", err)
			}
		}
		var err error
		listing, err = d.lister.List(ctx, path)
		return err
	})

	var qerr error
	if err != nil {
		_, qerr = d.queue.Enqueue(kindFailure, Failure{Source: path, Err: err})
	} else {
		if listing.Path == "" {
			listing.Path = path
		}
		_, qerr = d.queue.Enqueue(kindResult, listing)
	}
	if qerr != nil {
		d.logger.Debug("dropping outcome", "path", path, "error", qerr)
	}
}

func (d *Dispatcher) handleResult(item workqueue.Item) error {
	listing, ok := item.Payload.(archive.Listing)
	if !ok {
		return fmt.Errorf("result payload is %T, want archive.Listing", item.Payload)
	}
	d.observer.OnExtracted(listing)
	return nil
}

func (d *Dispatcher) handleFailure(item workqueue.Item) error {
	f, ok := item.Payload.(Failure)
	if !ok {
		return fmt.Errorf("failure payload is %T, want dispatch.Failure", item.Payload)
	}
	d.observer.OnExtractionFailed(f.Source, f.Err)
	return nil
}

func (d *Dispatcher) closePool() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// stopHook lets the dispatcher release its pool when the sentinel is consumed.
type stopHook struct {
	workqueue.Observer
	onStop func()
}

func (h stopHook) OnStopped() {
	h.Observer.OnStopped()
	h.onStop()
}
