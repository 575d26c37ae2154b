package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/jarscout/internal/api"
	"github.com/mattjoyce/jarscout/internal/catalog"
	"github.com/mattjoyce/jarscout/internal/events"
	"github.com/mattjoyce/jarscout/internal/lock"
	"github.com/mattjoyce/jarscout/internal/log"
	"github.com/mattjoyce/jarscout/internal/metrics"
	"github.com/mattjoyce/jarscout/internal/pipeline"
	"github.com/mattjoyce/jarscout/internal/webhook"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var listen, apiKey string
	cmd := &cobra.Command{
		Use:   "serve [path]...",
		Short: "Run the HTTP API and accept scans over it",
		Long: `Serve exposes the catalog, prometheus metrics and a live event stream over
HTTP. Scans are queued with POST /scans or through signed webhooks; any path
arguments are scanned at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global, false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.API.Listen = listen
			}
			if cmd.Flags().Changed("api-key") {
				cfg.API.APIKey = apiKey
			}
			hooks, err := webhook.FromConfig(cfg.Webhooks)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), serveConfig{
				catalogPath: cfg.Catalog.Path,
				api:         api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey},
				hooks:       hooks,
				build: func(obs pipeline.Observer) *pipeline.Pipeline {
					return newPipeline(cfg, obs)
				},
				roots: args,
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides api.listen)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Bearer token required by POST /scans")
	return cmd
}

// serveConfig is everything runServe needs beyond the context.
type serveConfig struct {
	catalogPath string
	api         api.Config
	hooks       webhook.Config
	build       func(pipeline.Observer) *pipeline.Pipeline
	roots       []string
}

func runServe(ctx context.Context, sc serveConfig) error {
	logger := log.WithComponent("main")
	logger.Info("jarscout starting", "version", version, "catalog", sc.catalogPath)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lk, err := lock.Acquire(sc.catalogPath)
	if err != nil {
		return err
	}
	defer lk.Release()
	logger.Info("acquired catalog lock", "path", lk.Path())

	store, err := catalog.Open(ctx, sc.catalogPath)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	hub := events.NewHub(0)
	recorder := catalog.NewRecorder(store, nil)

	p := sc.build(pipeline.Observers(recorder, events.Publisher{Hub: hub}, m.Observer()))
	defer func() {
		p.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if !p.WaitUntilStopped(stopCtx) {
			logger.Warn("pipeline did not stop in time")
		}
	}()

	scanner := newFinisher(p, recorder)
	go scanner.run(ctx)

	for _, root := range sc.roots {
		if _, err := scanner.Scan(root); err != nil {
			return fmt.Errorf("queue %s: %w", root, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	// Servers must be down before the deferred store close.
	defer wg.Wait()
	defer cancel()

	apiServer := api.New(sc.api, scanner, store, hub, reg, log.WithComponent("api"))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	if len(sc.hooks.Endpoints) > 0 {
		hookServer := webhook.New(sc.hooks, scanner, log.WithComponent("webhook"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hookServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("webhook: %w", err)
			}
		}()
		logger.Info("webhook server enabled", "listen", sc.hooks.Listen, "endpoints", len(sc.hooks.Endpoints))
	}

	logger.Info("jarscout running (press Ctrl+C to stop)")

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return err
	}

	logger.Info("jarscout stopped")
	return nil
}

// finisher queues scans and stamps them finished each time the pipeline
// drains.
type finisher struct {
	p        *pipeline.Pipeline
	recorder *catalog.Recorder
	kick     chan struct{}
}

func newFinisher(p *pipeline.Pipeline, recorder *catalog.Recorder) *finisher {
	return &finisher{p: p, recorder: recorder, kick: make(chan struct{}, 1)}
}

func (f *finisher) Scan(root string) (workqueue.Item, error) {
	item, err := f.p.Scan(root)
	if err != nil {
		return item, err
	}
	f.poke()
	return item, nil
}

func (f *finisher) Submit(path string) (workqueue.Item, error) {
	item, err := f.p.Submit(path)
	if err != nil {
		return item, err
	}
	f.poke()
	return item, nil
}

func (f *finisher) poke() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *finisher) run(ctx context.Context) {
	logger := log.WithComponent("catalog")
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.kick:
		}
		if !f.p.WaitUntilIdle(ctx) {
			return
		}
		if err := f.recorder.Finish(ctx); err != nil {
			logger.Error("failed to finish scans", "error", err)
		}
	}
}
