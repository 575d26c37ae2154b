package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/catalog"
	"github.com/mattjoyce/jarscout/internal/config"
	"github.com/mattjoyce/jarscout/internal/dispatch"
	"github.com/mattjoyce/jarscout/internal/pipeline"
	"github.com/mattjoyce/jarscout/internal/walk"
)

const pipelineName = "jarscout"

// newLister builds the archive lister the scan section asks for.
func newLister(cfg config.ScanConfig) archive.Lister {
	var l archive.Lister
	switch cfg.Lister {
	case config.ListerCommand:
		l = archive.CommandLister{
			Command:  cfg.Command,
			Suffixes: cfg.EntrySuffixes,
			Timeout:  cfg.ListTimeout,
		}
	default:
		l = archive.ZipLister{Suffixes: cfg.EntrySuffixes}
	}
	if cfg.Digest {
		l = archive.Digesting{Lister: l}
	}
	return l
}

func newPipeline(cfg *config.Config, observer pipeline.Observer) *pipeline.Pipeline {
	return pipeline.New(pipelineName, walk.NewOSEnumerator(), newLister(cfg.Scan), observer, pipeline.Config{
		Classifier: pipeline.Classifier{
			ArchiveSuffixes:    cfg.Scan.ArchiveSuffixes,
			StandaloneSuffixes: cfg.Scan.StandaloneSuffixes,
		},
		Dispatch: dispatch.Config{
			Workers:   cfg.Scan.Workers,
			Timeout:   cfg.Scan.ListTimeout,
			RateLimit: cfg.Scan.RateLimit,
			RateBurst: cfg.Scan.RateBurst,
		},
	})
}

// console prints scan outcomes as they arrive and keeps the totals.
// Stand-alone classes are held back and printed as one group by Summary.
type console struct {
	pipeline.NopObserver

	mu         sync.Mutex
	w          io.Writer
	classes    bool
	roots      int
	archives   int
	entries    int
	failures   int
	standalone []string
}

func newConsole(w io.Writer, classes bool) *console {
	return &console{w: w, classes: classes}
}

func (c *console) OnScanRequested(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots++
}

func (c *console) OnScanFailed(root string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	fmt.Fprintf(c.w, "FAILED %s: %v\n", root, err)
}

func (c *console) OnExtracted(listing archive.Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.archives++
	c.entries += len(listing.Entries)
	fmt.Fprintf(c.w, "%s (%d classes)\n", listing.Path, len(listing.Entries))
	if c.classes {
		for _, class := range listing.Classes() {
			fmt.Fprintf(c.w, "  %s\n", class.File)
		}
	}
}

func (c *console) OnExtractionFailed(source string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	fmt.Fprintf(c.w, "FAILED %s: %v\n", source, err)
}

func (c *console) OnStandalone(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.standalone = append(c.standalone, path)
}

// Summary writes the stand-alone group and the totals to w.
func (c *console) Summary(w io.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.standalone) > 0 {
		fmt.Fprintf(w, "%s (%d classes)\n", catalog.StandaloneContainer, len(c.standalone))
		for _, path := range c.standalone {
			fmt.Fprintf(w, "  %s\n", path)
		}
	}
	fmt.Fprintf(w, "\nScanned %d root(s): %d archive(s), %d archived class(es), %d stand-alone class(es), %d failure(s)\n",
		c.roots, c.archives, c.entries, len(c.standalone), c.failures)
}
