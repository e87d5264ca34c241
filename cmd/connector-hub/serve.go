package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/open-sspm/connector-hub/internal/config"
	httpapp "github.com/open-sspm/connector-hub/internal/http"
	"github.com/open-sspm/connector-hub/internal/http/authn"
	"github.com/open-sspm/connector-hub/internal/http/handlers"
	"github.com/open-sspm/connector-hub/internal/metrics"
	"github.com/open-sspm/connector-hub/internal/refresher"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background credential refresh loop.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SyncConnectors(ctx, a.registry.List()); err != nil {
		return err
	}

	verifier, err := authn.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	srv, err := httpapp.NewEchoServer(cfg, httpapp.Deps{
		Handlers: &handlers.Handlers{
			Broker:      a.broker,
			Connections: a.manager,
			Registry:    a.registry,
			Catalog:     a.store,
		},
		Verifier: verifier,
		Users:    a.store,
	})
	if err != nil {
		return err
	}

	_, metricsErrCh := metrics.StartServer(ctx, cfg.MetricsAddr)

	if cfg.RefreshInterval > 0 {
		scheduler := refresher.Scheduler{Runner: a.refreshRunner(), Interval: cfg.RefreshInterval}
		go scheduler.Run(ctx)
	} else {
		slog.Info("credential refresh loop disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- srv.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-metricsErrCh:
		return err
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
