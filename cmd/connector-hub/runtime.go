package main

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/open-sspm/connector-hub/internal/broker"
	"github.com/open-sspm/connector-hub/internal/config"
	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/credentials"
	"github.com/open-sspm/connector-hub/internal/oauthstate"
	"github.com/open-sspm/connector-hub/internal/refresher"
	"github.com/open-sspm/connector-hub/internal/store/pgstore"
)

// app holds the collaborators shared by the serve and refresh commands.
type app struct {
	cfg      config.Config
	pool     *pgxpool.Pool
	store    *pgstore.Store
	registry *registry.ConnectorRegistry
	manager  *connections.Manager
	broker   *broker.Broker
}

func newSealer(cfg config.Config) (credentials.Sealer, error) {
	return credentials.New(credentials.Options{
		Kind:     cfg.CredentialSealer,
		LocalKey: cfg.CredentialSealKey,
		Vault: credentials.VaultOptions{
			Address:          cfg.Vault.Addr,
			Namespace:        cfg.Vault.Namespace,
			AuthType:         cfg.Vault.AuthType,
			Token:            cfg.Vault.Token,
			AppRoleMountPath: cfg.Vault.AppRoleMountPath,
			AppRoleRoleID:    cfg.Vault.AppRoleRoleID,
			AppRoleSecretID:  cfg.Vault.AppRoleSecretID,
			TLSSkipVerify:    cfg.Vault.TLSSkipVerify,
			TLSCACertPEM:     cfg.Vault.TLSCACertPEM,
			TransitMount:     cfg.Vault.TransitMount,
			TransitKey:       cfg.Vault.TransitKey,
		},
	})
}

// openApp validates cfg, connects to Postgres and wires the broker. The
// caller closes the returned app.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sealer, err := newSealer(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := buildConnectorRegistry(cfg, &http.Client{})
	if err != nil {
		return nil, err
	}
	states, err := oauthstate.NewIssuer([]byte(cfg.StateSigningSecret))
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := pgstore.New(pool, sealer)
	manager := connections.NewManager(store)
	b, err := broker.New(broker.Config{
		FrontendBaseURL: cfg.FrontendBaseURL,
		StateTTL:        cfg.StateTTL,
		ExchangeTimeout: cfg.OAuthExchangeTimeout,
		PluginTimeout:   cfg.PluginTimeout,
	}, reg, manager, states)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		pool:     pool,
		store:    store,
		registry: reg,
		manager:  manager,
		broker:   b,
	}, nil
}

func (a *app) Close() {
	if a != nil && a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) refreshRunner() *refresher.Runner {
	return &refresher.Runner{
		Source:    a.store,
		Refresher: a.broker,
		Locker:    pgstore.NewAdvisoryLocker(a.pool),
		Window:    a.cfg.RefreshWindow,
		Workers:   a.cfg.RefreshWorkers,
	}
}
