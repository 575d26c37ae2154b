package catalog

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/pipeline"
)

const recordTimeout = 10 * time.Second

// Recorder is a pipeline.Observer that writes every outcome to a Store.
//
// Each OnScanRequested begins a new scan. Outcomes are attributed to the
// most specific open scan whose root contains the path; paths outside every
// root (pipeline.Submit) go to the most recent scan, or to an implicit scan
// rooted at the file's directory when none is open.
type Recorder struct {
	pipeline.NopObserver
	store  *Store
	logger *slog.Logger

	mu    sync.Mutex
	open  []Scan
	onNew func(Scan)
}

// NewRecorder returns a Recorder writing to store. onScan, when non-nil, is
// called with every scan the Recorder begins.
func NewRecorder(store *Store, onScan func(Scan)) *Recorder {
	return &Recorder{
		store:  store,
		logger: log.WithComponent("catalog"),
		onNew:  onScan,
	}
}

// Scans returns the scans begun since the last Finish.
func (r *Recorder) Scans() []Scan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Scan(nil), r.open...)
}

// Finish stamps every open scan as finished. Call it once the pipeline is idle.
func (r *Recorder) Finish(ctx context.Context) error {
	r.mu.Lock()
	open := r.open
	r.open = nil
	r.mu.Unlock()

	for _, scan := range open {
		if err := r.store.FinishScan(ctx, scan.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) OnScanRequested(root string) {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	r.begin(root)
}

// OnScanFailed records a root that could not be walked, in full or in part,
// against its own scan.
func (r *Recorder) OnScanFailed(root string, cause error) {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.RecordFailure(ctx, r.scanFor(root), root, cause); err != nil {
		r.logger.Error("failed to record scan failure", "root", root, "error", err)
	}
}

func (r *Recorder) OnExtracted(listing archive.Listing) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.RecordListing(ctx, r.scanFor(listing.Path), listing); err != nil {
		r.logger.Error("failed to record listing", "path", listing.Path, "error", err)
	}
}

func (r *Recorder) OnExtractionFailed(source string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.RecordFailure(ctx, r.scanFor(source), source, cause); err != nil {
		r.logger.Error("failed to record failure", "path", source, "error", err)
	}
}

func (r *Recorder) OnStandalone(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.store.RecordStandalone(ctx, r.scanFor(path), path); err != nil {
		r.logger.Error("failed to record stand-alone class", "path", path, "error", err)
	}
}

func (r *Recorder) begin(root string) string {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	scan, err := r.store.BeginScan(ctx, root)
	if err != nil {
		r.logger.Error("failed to begin scan", "root", root, "error", err)
		return ""
	}
	r.mu.Lock()
	r.open = append(r.open, scan)
	r.mu.Unlock()

	r.logger.Info("scan started", "scan_id", scan.ID, "root", root)
	if r.onNew != nil {
		r.onNew(scan)
	}
	return scan.ID
}

func (r *Recorder) scanFor(path string) string {
	r.mu.Lock()
	var (
		best    string
		bestLen = -1
		latest  string
	)
	for _, scan := range r.open {
		latest = scan.ID
		if within(scan.Root, path) && len(scan.Root) > bestLen {
			best, bestLen = scan.ID, len(scan.Root)
		}
	}
	r.mu.Unlock()

	switch {
	case best != "":
		return best
	case latest != "":
		return latest
	default:
		return r.begin(filepath.Dir(path))
	}
}

func within(root, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}
