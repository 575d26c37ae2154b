package pipeline

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/archive/mocks"
	"github.com/mattjoyce/jarscout/internal/dispatch"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/walk"
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

type recorder struct {
	NopObserver
	mu         sync.Mutex
	itemFailed []error
	scans      []string
	scanFailed []string
	extracted  []archive.Listing
	failures   []failure
	standalone []string
	stopped    int
}

func (r *recorder) OnScanRequested(root string) {
	r.mu.Lock()
	r.scans = append(r.scans, root)
	r.mu.Unlock()
}

func (r *recorder) OnScanFailed(root string, err error) {
	r.mu.Lock()
	r.scanFailed = append(r.scanFailed, root)
	r.mu.Unlock()
}

func (r *recorder) OnExtracted(l archive.Listing) {
	r.mu.Lock()
	r.extracted = append(r.extracted, l)
	r.mu.Unlock()
}

func (r *recorder) OnExtractionFailed(source string, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, failure{source, err})
	r.mu.Unlock()
}

func (r *recorder) OnStandalone(path string) {
	r.mu.Lock()
	r.standalone = append(r.standalone, path)
	r.mu.Unlock()
}

func (r *recorder) OnItemFailed(item workqueue.Item, err error) {
	r.mu.Lock()
	r.itemFailed = append(r.itemFailed, err)
	r.mu.Unlock()
}

func (r *recorder) OnStopped() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func stopAndWait(t *testing.T, p *Pipeline) {
	t.Helper()
	p.Stop()
	require.True(t, p.WaitUntilStopped(waitCtx(t)), "pipeline did not stop")
}

func tree(t *testing.T, files ...string) walk.FSEnumerator {
	t.Helper()
	fs := memfs.New()
	for _, f := range files {
		require.NoError(t, util.WriteFile(fs, f, []byte("x"), 0o644))
	}
	return walk.FSEnumerator{FS: fs}
}

func TestPipelineRoutesAndResolvesAllArchives(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := mocks.NewMockLister(ctrl)

	// Completion order is reversed relative to submission.
	lister.EXPECT().List(gomock.Any(), "/scan/path1.jar").DoAndReturn(
		func(ctx context.Context, path string) (archive.Listing, error) {
			time.Sleep(60 * time.Millisecond)
			return archive.Listing{Path: path, Entries: []string{"A.class", "B.class"}}, nil
		})
	lister.EXPECT().List(gomock.Any(), "/scan/path2.jar").DoAndReturn(
		func(ctx context.Context, path string) (archive.Listing, error) {
			time.Sleep(30 * time.Millisecond)
			return archive.Listing{Path: path}, nil
		})
	lister.EXPECT().List(gomock.Any(), "/scan/sub/path3.jar").
		Return(archive.Listing{}, &archive.ListError{Path: "/scan/sub/path3.jar", Detail: "corrupt"})

	rec := &recorder{}
	enum := tree(t, "/scan/path1.jar", "/scan/path2.jar", "/scan/sub/path3.jar", "/scan/sub/Loose.class", "/scan/README.md")
	p := New("test", enum, lister, rec, Config{Dispatch: dispatch.Config{Workers: 3}})
	defer stopAndWait(t, p)

	_, err := p.Scan("/scan")
	require.NoError(t, err)
	require.True(t, p.WaitUntilIdle(waitCtx(t)))

	rec.mu.Lock()
	defer rec.mu.Unlock()

	assert.Equal(t, []string{"/scan"}, rec.scans)
	require.Len(t, rec.extracted, 2)
	counts := map[string]int{}
	for _, l := range rec.extracted {
		counts[l.Path] = len(l.Entries)
	}
	assert.Equal(t, map[string]int{"/scan/path1.jar": 2, "/scan/path2.jar": 0}, counts)

	require.Len(t, rec.failures, 1)
	assert.Equal(t, "/scan/sub/path3.jar", rec.failures[0].source)
	assert.Contains(t, rec.failures[0].err.Error(), "corrupt")

	assert.Equal(t, []string{"/scan/sub/Loose.class"}, rec.standalone)
}

func TestPipelineSubmitRoutesSingleFile(t *testing.T) {
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		return archive.Listing{Path: path, Entries: []string{"X.class"}}, nil
	})
	rec := &recorder{}
	p := New("submit", tree(t), lister, rec, Config{})
	defer stopAndWait(t, p)

	for _, f := range []string{"/a/lib.JAR", "/a/Foo.class", "/a/notes.txt"} {
		_, err := p.Submit(f)
		require.NoError(t, err)
	}
	require.True(t, p.WaitUntilIdle(waitCtx(t)))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.extracted, 1)
	assert.Equal(t, "/a/lib.JAR", rec.extracted[0].Path)
	assert.Equal(t, []string{"/a/Foo.class"}, rec.standalone)
}

func TestPipelineReportsUnreadableRoot(t *testing.T) {
	rec := &recorder{}
	p := New("missing", tree(t), archive.ListerFunc(func(context.Context, string) (archive.Listing, error) {
		return archive.Listing{}, errors.New("unexpected")
	}), rec, Config{})
	defer stopAndWait(t, p)

	_, err := p.Scan("/does/not/exist")
	require.NoError(t, err)
	require.True(t, p.WaitUntilIdle(waitCtx(t)))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"/does/not/exist"}, rec.scanFailed)
}

func TestPipelineStopCascades(t *testing.T) {
	rec := &recorder{}
	p := New("stop", tree(t, "/r/a.jar"), archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		return archive.Listing{Path: path}, nil
	}), rec, Config{})

	_, err := p.Scan("/r")
	require.NoError(t, err)
	require.True(t, p.WaitUntilIdle(waitCtx(t)))

	p.Stop()
	p.Stop()
	require.True(t, p.WaitUntilStopped(waitCtx(t)))

	_, err = p.Scan("/r")
	assert.Error(t, err)
	_, err = p.walker.Add("/r")
	assert.Error(t, err, "walker must be stopped too")
	_, err = p.dispatcher.Submit("/r/a.jar")
	assert.Error(t, err, "dispatcher must be stopped too")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.stopped)
}

func TestPipelineDropsScanQueuedAfterWalkerStopped(t *testing.T) {
	rec := &recorder{}
	p := New("late", tree(t, "/r/a.jar"), archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		return archive.Listing{Path: path}, nil
	}), rec, Config{})
	defer stopAndWait(t, p)

	// Same state a Stop leaves behind when it races a queued scan.
	p.walker.Stop()
	require.True(t, p.walker.WaitUntilStopped(waitCtx(t)))

	_, err := p.Scan("/r")
	require.NoError(t, err)
	require.True(t, p.WaitUntilIdle(waitCtx(t)))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.scans, "no scan may be reported for a root that was never walked")
	assert.Empty(t, rec.itemFailed)
	assert.Empty(t, rec.extracted)
}

func TestPipelineScanThenImmediateStop(t *testing.T) {
	rec := &recorder{}
	p := New("racing", tree(t, "/r/a.jar"), archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		return archive.Listing{Path: path}, nil
	}), rec, Config{})

	_, err := p.Scan("/r")
	require.NoError(t, err)
	stopAndWait(t, p)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.itemFailed)
	assert.LessOrEqual(t, len(rec.scans), 1)
}

func TestPipelineAcceptsSecondScan(t *testing.T) {
	var mu sync.Mutex
	var listed []string
	lister := archive.ListerFunc(func(ctx context.Context, path string) (archive.Listing, error) {
		mu.Lock()
		listed = append(listed, path)
		mu.Unlock()
		return archive.Listing{Path: path}, nil
	})
	p := New("bursts", tree(t, "/one/a.jar", "/two/b.jar"), lister, nil, Config{})
	defer stopAndWait(t, p)

	for _, root := range []string{"/one", "/two"} {
		_, err := p.Scan(root)
		require.NoError(t, err)
		require.True(t, p.WaitUntilIdle(waitCtx(t)))
	}

	mu.Lock()
	defer mu.Unlock()
	sort.Strings(listed)
	assert.Equal(t, []string{"/one/a.jar", "/two/b.jar"}, listed)
}

func TestClassifierRoute(t *testing.T) {
	c := DefaultClassifier()
	tests := []struct {
		path string
		want Route
	}{
		{"/x/lib.jar", RouteArchive},
		{"/x/LIB.JAR", RouteArchive},
		{"/x/Foo.class", RouteStandalone},
		{"/x/notes.txt", RouteDrop},
		{"/x/jar", RouteDrop},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Route(tt.path))
		})
	}

	assert.Equal(t, RouteDrop, Classifier{}.Route("/x/lib.jar"), "empty classifier matches nothing")
	assert.Equal(t, RouteArchive, Classifier{ArchiveSuffixes: []string{".jar", ".war"}}.Route("a.war"))
}

type counting struct {
	NopObserver
	n *int
}

func (c counting) OnStandalone(string) { *c.n++ }

func TestObserversFanOut(t *testing.T) {
	var a, b int
	o := Observers(counting{n: &a}, nil, counting{n: &b})
	o.OnStandalone("x.class")
	o.OnStandalone("y.class")
	o.OnExtracted(archive.Listing{})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}
