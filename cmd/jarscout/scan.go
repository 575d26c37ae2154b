package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/jarscout/internal/catalog"
	"github.com/mattjoyce/jarscout/internal/events"
	"github.com/mattjoyce/jarscout/internal/lock"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/pipeline"
	"github.com/mattjoyce/jarscout/internal/tui"
)

const stopTimeout = 10 * time.Second

type scanOptions struct {
	classes bool
	monitor bool
}

func newScanCmd(global *globalOptions) *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan <path>...",
		Short: "Scan directories and archives and record their classes",
		Long: `Scan walks every directory argument recursively and lists each archive it
finds. File arguments are classified directly. Results are printed and
recorded in the catalog.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, global, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.classes, "classes", false, "Print every class of each archive")
	cmd.Flags().BoolVar(&opts.monitor, "tui", false, "Show the live monitor while scanning")
	return cmd
}

func runScan(cmd *cobra.Command, global *globalOptions, opts *scanOptions, args []string) error {
	cfg, err := loadConfig(cmd, global, opts.monitor)
	if err != nil {
		return err
	}
	logger := log.WithComponent("main")

	for _, arg := range args {
		if _, err := os.Stat(arg); err != nil {
			return fmt.Errorf("scan %s: %w", arg, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lk, err := lock.Acquire(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer lk.Release()

	store, err := catalog.Open(ctx, cfg.Catalog.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	progress := out
	if opts.monitor {
		progress = io.Discard
	}
	printer := newConsole(progress, opts.classes)
	recorder := catalog.NewRecorder(store, func(s catalog.Scan) {
		logger.Debug("scan recorded", "scan_id", s.ID, "root", s.Root)
	})

	observers := []pipeline.Observer{recorder, printer}
	var hub *events.Hub
	if opts.monitor {
		hub = events.NewHub(0)
		observers = append(observers, events.Publisher{Hub: hub})
	}

	p := newPipeline(cfg, pipeline.Observers(observers...))
	defer func() {
		p.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if !p.WaitUntilStopped(stopCtx) {
			logger.Warn("pipeline did not stop in time")
		}
	}()

	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("scan %s: %w", arg, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("scan %s: %w", arg, err)
		}
		if info.IsDir() {
			_, err = p.Scan(path)
		} else {
			_, err = p.Submit(path)
		}
		if err != nil {
			return fmt.Errorf("queue %s: %w", arg, err)
		}
	}

	var completed bool
	if opts.monitor {
		completed, err = scanWithMonitor(ctx, p, hub)
		if err != nil {
			return err
		}
	} else {
		completed = p.WaitUntilIdle(ctx)
	}

	printer.Summary(out)
	if !completed {
		fmt.Fprintln(out, "Scan interrupted; results so far are in the catalog.")
		return nil
	}
	if err := recorder.Finish(context.Background()); err != nil {
		return fmt.Errorf("finish scan: %w", err)
	}
	logger.Info("scan complete", "catalog", cfg.Catalog.Path, "scans", len(args))
	return nil
}

// scanWithMonitor shows the TUI until the user quits. It reports whether
// the pipeline went idle before that.
func scanWithMonitor(ctx context.Context, p *pipeline.Pipeline, hub *events.Hub) (bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	idle := make(chan bool, 1)
	go func() { idle <- p.WaitUntilIdle(ctx) }()

	err := tui.Run(ctx, tui.HubSource{Hub: hub})
	cancel()
	return <-idle, err
}
