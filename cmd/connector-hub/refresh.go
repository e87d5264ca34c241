package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-sspm/connector-hub/internal/config"
	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one credential refresh sweep and exit.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		res, err := a.refreshRunner().RunOnce(ctx)
		if res.Skipped {
			slog.Info("another refresh sweep holds the lock; nothing to do")
			return nil
		}
		slog.Info("refresh sweep finished", "attempted", res.Attempted, "failed", res.Failed)
		if err != nil {
			return &exitError{code: 2, err: err}
		}
		return nil
	},
}
