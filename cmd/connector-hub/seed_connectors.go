package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/open-sspm/connector-hub/internal/config"
	"github.com/open-sspm/connector-hub/internal/store/pgstore"
	"github.com/spf13/cobra"
)

var seedConnectorsCmd = &cobra.Command{
	Use:   "seed-connectors",
	Short: "Write the built-in connector catalogue to the database.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		reg, err := buildConnectorRegistry(cfg, http.DefaultClient)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		defs := reg.List()
		if err := pgstore.New(pool, nil).SyncConnectors(ctx, defs); err != nil {
			return err
		}
		slog.Info("connector catalogue seeded", "connectors", len(defs))
		return nil
	},
}
