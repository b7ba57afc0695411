package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	paperhttp "github.com/fyrsmithlabs/paperqa/internal/http"
	"github.com/fyrsmithlabs/paperqa/internal/ingest"
	"github.com/fyrsmithlabs/paperqa/internal/queue"
)

func newServeCmd() *cobra.Command {
	var noWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the ingestion worker",
		Long: `Start the HTTP API. Unless --no-worker is given, PDFs in the pending
directory are also ingested as they arrive.

Examples:
  # API plus worker on the configured address
  paperqa serve

  # API only, with ingestion done by separate "paperqa ingest --watch" workers
  PAPERQA_QUEUE_BACKEND=nats paperqa serve --no-worker`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), !noWorker)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API without ingesting")
	return cmd
}

// runServe blocks until ctx is cancelled or a component fails.
func runServe(ctx context.Context, withWorker bool) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.index(ctx)
	if err != nil {
		return err
	}
	pipe, err := a.pipeline(ctx, idx)
	if err != nil {
		return err
	}
	proc, err := a.processor(idx)
	if err != nil {
		return err
	}

	srv, err := paperhttp.NewServer(paperhttp.Deps{
		Asker: pipe,
		Dirs:  proc.Dirs(),
		Index: idx,
	}, a.logger, &paperhttp.Config{
		Host: a.cfg.Server.Host,
		Port: a.cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	a.logger.Info("starting paperqa",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)),
		zap.Bool("worker", withWorker),
		zap.String("queue", a.cfg.Queue.Backend))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withWorker {
		if err := startWorker(gctx, g, a, proc); err != nil {
			return err
		}
	}

	err = g.Wait()
	a.logger.Info("paperqa stopped")
	return err
}

// startWorker adds the ingestion consumer and, when configured, the
// pending directory watcher to g.
func startWorker(ctx context.Context, g *errgroup.Group, a *app, proc *ingest.Processor) error {
	q, err := queue.New(a.cfg.Queue, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	a.onClose(q.Close)

	pool := ingest.NewPool(proc, a.cfg.Ingest.Workers, a.logger)
	g.Go(func() error {
		return pool.Serve(ctx, q)
	})

	watcher := ingest.NewWatcher(proc.Dirs().Pending, q, ingest.DefaultSettle, a.logger)
	g.Go(func() error {
		if a.cfg.Ingest.Watch {
			return watcher.Run(ctx)
		}
		n, err := watcher.Scan(ctx)
		a.logger.Info("queued pending documents", zap.Int("count", n))
		return err
	})
	return nil
}
