package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/datallboy/gosplice/internal/api"
	"github.com/datallboy/gosplice/internal/engine"
	"github.com/datallboy/gosplice/internal/events"
	"github.com/datallboy/gosplice/internal/metrics"
	"github.com/datallboy/gosplice/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	appCtx, dl, err := buildApp(nil)
	if err != nil {
		return err
	}
	defer closeApp(appCtx)

	st, err := store.NewPersistentStore(appCtx.Config.Store.SQLitePath)
	if err != nil {
		return err
	}
	appCtx.Store = st

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return err
	}

	hub := events.NewHub(64)
	appCtx.Events = events.Multi{appCtx.Events, m, hub}

	// The queue records its own items; direct streams go through the ledger
	queue := engine.NewQueueManager(appCtx, true)
	appCtx.Downloader = engine.NewLedger(dl, st, appCtx.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go queue.Start(ctx)

	srv := &http.Server{
		Addr:    ":" + appCtx.Config.Port,
		Handler: api.NewHandler(appCtx, queue, hub, reg),
	}

	errCh := make(chan error, 1)
	go func() {
		appCtx.Logger.Info("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appCtx.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
