package dispatch

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/archive/mocks"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

func TestMain(m *testing.M) {
	log.Setup(log.Options{Level: "ERROR"}) // Suppress logs in tests
	os.Exit(m.Run())
}

type failure struct {
	source string
	err    error
}

// recorder is a dispatch.Observer that keeps an ordered trace.
type recorder struct {
	mu        sync.Mutex
	trace     []string
	extracted []archive.Listing
	failures  []failure
	allDone   chan struct{}
	doneOnce  sync.Once
}

func newRecorder() *recorder { return &recorder{allDone: make(chan struct{})} }

func (r *recorder) note(s string) {
	r.mu.Lock()
	r.trace = append(r.trace, s)
	r.mu.Unlock()
}

func (r *recorder) OnEnqueue(item workqueue.Item)      { r.note("enqueue:" + string(item.Kind)) }
func (r *recorder) OnFinished(item workqueue.Item)     { r.note("finished:" + string(item.Kind)) }
func (r *recorder) OnItemFailed(workqueue.Item, error) { r.note("item_failed") }
func (r *recorder) OnStopped()                         { r.note("stopped") }
func (r *recorder) OnAllDone() {
	r.note("all_done")
	r.doneOnce.Do(func() { close(r.allDone) })
}

func (r *recorder) OnExtracted(l archive.Listing) {
	r.mu.Lock()
	r.extracted = append(r.extracted, l)
	r.trace = append(r.trace, "extracted")
	r.mu.Unlock()
}

func (r *recorder) OnExtractionFailed(source string, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, failure{source, err})
	r.trace = append(r.trace, "extraction_failed")
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]string, []archive.Listing, []failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.trace...),
		append([]archive.Listing(nil), r.extracted...),
		append([]failure(nil), r.failures...)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func stopAndWait(t *testing.T, d *Dispatcher) {
	t.Helper()
	d.Stop()
	require.True(t, d.WaitUntilStopped(waitCtx(t)), "dispatcher did not stop")
}

func TestWaitUntilIdleWaitsForPoolTasks(t *testing.T) {
	const delay = 150 * time.Millisecond
	rec := newRecorder()
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		time.Sleep(delay)
		return archive.Listing{Path: path}, nil
	})
	d := New("idle-race", lister, rec, Config{Workers: 1})
	defer stopAndWait(t, d)

	start := time.Now()
	_, err := d.Submit("slow.jar")
	require.NoError(t, err)

	// The submit item finishes almost immediately.
	select {
	case <-rec.allDone:
		assert.Less(t, time.Since(start), delay)
	case <-time.After(delay):
		t.Fatal("submit item did not finish before the task completed")
	}

	require.True(t, d.WaitUntilIdle(waitCtx(t)))
	assert.GreaterOrEqual(t, time.Since(start), delay)
	assert.Equal(t, 0, d.Outstanding())

	_, extracted, _ := rec.snapshot()
	assert.Len(t, extracted, 1)
}

func TestOutcomesAreAllOrNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)
	lister.EXPECT().List(gomock.Any(), "path1").
		Return(archive.Listing{Path: "path1", Entries: []string{"A.class", "B.class"}}, nil)
	lister.EXPECT().List(gomock.Any(), "path2").
		Return(archive.Listing{Path: "path2"}, nil)
	lister.EXPECT().List(gomock.Any(), "path3").
		Return(archive.Listing{Path: "path3", Entries: []string{"Partial.class"}}, &archive.ListError{Path: "path3", Detail: "corrupt"})

	rec := newRecorder()
	d := New("outcomes", lister, rec, Config{})
	defer stopAndWait(t, d)

	for _, p := range []string{"path1", "path2", "path3"} {
		_, err := d.Submit(p)
		require.NoError(t, err)
	}
	require.True(t, d.WaitUntilIdle(waitCtx(t)))

	_, extracted, failures := rec.snapshot()
	require.Len(t, extracted, 2)
	counts := map[string]int{}
	for _, l := range extracted {
		counts[l.Path] = len(l.Entries)
	}
	assert.Equal(t, map[string]int{"path1": 2, "path2": 0}, counts)

	require.Len(t, failures, 1)
	assert.Equal(t, "path3", failures[0].source)
	assert.Contains(t, failures[0].err.Error(), "corrupt")
}

func TestSubmitEventOrder(t *testing.T) {
	rec := newRecorder()
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		time.Sleep(20 * time.Millisecond)
		return archive.Listing{Path: path}, nil
	})
	d := New("order", lister, rec, Config{Workers: 1})
	defer stopAndWait(t, d)

	_, err := d.Submit("a.jar")
	require.NoError(t, err)
	require.True(t, d.WaitUntilIdle(waitCtx(t)))

	trace, _, _ := rec.snapshot()
	var core []string
	for _, s := range trace {
		if s != "all_done" {
			core = append(core, s)
		}
	}
	assert.Equal(t, []string{
		"enqueue:submit",
		"finished:submit",
		"enqueue:result",
		"extracted",
		"finished:result",
	}, core)
	assert.Equal(t, "all_done", trace[len(trace)-1])
}

func TestListerPanicBecomesFailure(t *testing.T) {
	rec := newRecorder()
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		if path == "bad.jar" {
			panic("lister exploded")
		}
		return archive.Listing{Path: path}, nil
	})
	d := New("panics", lister, rec, Config{Workers: 1})
	defer stopAndWait(t, d)

	for _, p := range []string{"bad.jar", "good.jar"} {
		_, err := d.Submit(p)
		require.NoError(t, err)
	}
	require.True(t, d.WaitUntilIdle(waitCtx(t)))

	_, extracted, failures := rec.snapshot()
	require.Len(t, failures, 1)
	var perr *workqueue.PanicError
	assert.True(t, errors.As(failures[0].err, &perr))
	require.Len(t, extracted, 1)
	assert.Equal(t, "good.jar", extracted[0].Path)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		return archive.Listing{Path: path}, nil
	})
	d := New("bounded", lister, nil, Config{Workers: 2})
	defer stopAndWait(t, d)

	for i := 0; i < 6; i++ {
		_, err := d.Submit("x.jar")
		require.NoError(t, err)
	}
	require.True(t, d.WaitUntilIdle(waitCtx(t)))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(2), peak.Load())
}

func TestSharedExecutorIsNotClosed(t *testing.T) {
	pool := NewPool(2)
	defer func() {
		pool.Close()
		require.True(t, pool.Wait(waitCtx(t)))
	}()

	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		return archive.Listing{Path: path}, nil
	})
	d := New("shared", lister, nil, Config{Executor: pool})
	_, err := d.Submit("a.jar")
	require.NoError(t, err)
	require.True(t, d.WaitUntilIdle(waitCtx(t)))
	stopAndWait(t, d)

	ran := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(ran) }))
	<-ran
}

func TestStopDoesNotCancelRunningTask(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	rec := newRecorder()
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		close(started)
		<-release
		return archive.Listing{Path: path}, nil
	})
	d := New("stop", lister, rec, Config{Workers: 1})

	_, err := d.Submit("a.jar")
	require.NoError(t, err)
	<-started
	d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.False(t, d.WaitUntilStopped(ctx), "pool worker is still running the task")

	close(release)
	require.True(t, d.WaitUntilStopped(waitCtx(t)))
	require.True(t, d.WaitUntilIdle(waitCtx(t)))

	trace, extracted, _ := rec.snapshot()
	assert.Empty(t, extracted, "outcome after stop is dropped")
	assert.Equal(t, "stopped", trace[len(trace)-1])
}

func TestRateLimitSpacesListings(t *testing.T) {
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		return archive.Listing{Path: path}, nil
	})
	d := New("limited", lister, nil, Config{Workers: 3, RateLimit: 20, RateBurst: 1})
	defer stopAndWait(t, d)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := d.Submit("a.jar")
		require.NoError(t, err)
	}
	require.True(t, d.WaitUntilIdle(waitCtx(t)))
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPoolRejectsAfterClose(t *testing.T) {
	p := NewPool(0)
	assert.Equal(t, DefaultWorkers, p.Size())
	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	assert.True(t, p.Wait(waitCtx(t)))
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := NewPool(1)
	require.NoError(t, p.Submit(func() { panic("boom") }))

	ran := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	p.Close()
	assert.True(t, p.Wait(waitCtx(t)))
}
