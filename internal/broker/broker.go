// Package broker drives the OAuth authorization code flow for connectors:
// authorize, callback, revoke, test and refresh.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/metrics"
	"github.com/open-sspm/connector-hub/internal/oauthstate"
)

const (
	callbackPath = "/oauth/callback"

	defaultExchangeTimeout = 30 * time.Second
	defaultPluginTimeout   = 15 * time.Second

	reasonRevokedByUser = "revoked by user"
	reasonNoCredential  = "connection has no credential"
	reasonTestFailed    = "connection test failed"
	reasonCannotRefresh = "credential expired and cannot be refreshed"
)

// Config holds the broker's runtime settings.
type Config struct {
	// FrontendBaseURL is the origin the provider redirects the user back to.
	FrontendBaseURL string
	StateTTL        time.Duration
	ExchangeTimeout time.Duration
	// PluginTimeout bounds test, refresh and revoke calls.
	PluginTimeout time.Duration
}

// Authorization is the result of starting a flow.
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
	ConnectionID     int64  `json:"connection_id"`
}

// CallbackRequest is what the provider redirect delivers.
type CallbackRequest struct {
	ConnectorKey string
	Code         string
	State        string
	// ConnectionID is the optional out-of-band connection id; it must agree
	// with the one signed into State.
	ConnectionID *int64
}

// TestResult is the outcome of a connection test.
type TestResult struct {
	registry.Health
	Connection connections.Connection
}

// Broker coordinates the registry, the state issuer and the connection manager.
type Broker struct {
	cfg         Config
	registry    *registry.ConnectorRegistry
	manager     *connections.Manager
	states      *oauthstate.Issuer
	redirectURI string
	now         func() time.Time
}

// Option customizes a Broker.
type Option func(*Broker)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		if now != nil {
			b.now = now
		}
	}
}

// New validates cfg and returns a Broker.
func New(cfg Config, reg *registry.ConnectorRegistry, manager *connections.Manager, states *oauthstate.Issuer, opts ...Option) (*Broker, error) {
	if reg == nil || manager == nil || states == nil {
		return nil, errors.New("broker requires a registry, a connection manager and a state issuer")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.FrontendBaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid frontend base url %q", cfg.FrontendBaseURL)
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = oauthstate.DefaultTTL
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = defaultExchangeTimeout
	}
	if cfg.PluginTimeout <= 0 {
		cfg.PluginTimeout = defaultPluginTimeout
	}
	b := &Broker{
		cfg:         cfg,
		registry:    reg,
		manager:     manager,
		states:      states,
		redirectURI: base + callbackPath,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// RedirectURI is the fixed callback URL registered with every provider.
func (b *Broker) RedirectURI() string {
	return b.redirectURI
}

// Initiate creates or reuses the user's connection, moves it to pending_auth
// and returns the provider URL carrying a fresh state token.
func (b *Broker) Initiate(ctx context.Context, userID int64, connectorKey string, existingConnectionID *int64) (auth Authorization, err error) {
	key := registry.NormalizeKey(connectorKey)
	defer func() {
		metrics.OAuthFlowsTotal.WithLabelValues(metricKey(b.registry, key), metrics.StageAuthorize, metrics.Outcome(err)).Inc()
	}()

	def, plugin, err := b.registry.Get(key)
	if err != nil {
		return Authorization{}, classify(key, err)
	}

	var token string
	conn, err := b.manager.BeginAuthorization(ctx, connections.BeginRequest{
		UserID:       userID,
		ConnectorKey: key,
		ConnectionID: existingConnectionID,
	}, func(connectionID int64) (string, error) {
		signed, claims, err := b.states.Mint(key, &connectionID, b.cfg.StateTTL)
		if err != nil {
			return "", err
		}
		token = signed
		return claims.Nonce, nil
	})
	if err != nil {
		return Authorization{}, classify(key, err)
	}

	scopes := append(append([]string(nil), def.Scopes...), def.OptionalScopes...)
	authURL, err := registry.CallAuthorizationURL(key, plugin, scopes, b.redirectURI, token)
	if err != nil {
		slog.Warn("building authorization url failed", "connector", key, "connection_id", conn.ID, "err", err)
		return Authorization{}, classify(key, err)
	}

	return Authorization{AuthorizationURL: authURL, State: token, ConnectionID: conn.ID}, nil
}

// Complete verifies the callback, exchanges the code once and activates the
// connection. Exchange failures move the connection to error.
func (b *Broker) Complete(ctx context.Context, req CallbackRequest) (conn connections.Connection, err error) {
	key := registry.NormalizeKey(req.ConnectorKey)
	defer func() {
		metrics.OAuthFlowsTotal.WithLabelValues(metricKey(b.registry, key), metrics.StageCallback, metrics.Outcome(err)).Inc()
	}()

	_, plugin, err := b.registry.Get(key)
	if err != nil {
		return connections.Connection{}, classify(key, err)
	}
	if strings.TrimSpace(req.State) == "" {
		return connections.Connection{}, newError(KindInvalidState, key, errors.New("missing state"))
	}
	if strings.TrimSpace(req.Code) == "" {
		return connections.Connection{}, &Error{Kind: KindInvalidRequest, Connector: key, Reason: "missing authorization code"}
	}

	claims, err := b.states.Verify(req.State)
	if err != nil {
		return connections.Connection{}, stateError(key, err)
	}
	if claims.ConnectorKey != key {
		return connections.Connection{}, newError(KindConnectorMismatch, key, fmt.Errorf("state issued for %q", claims.ConnectorKey))
	}
	if claims.ConnectionID == nil {
		return connections.Connection{}, newError(KindInvalidState, key, errors.New("state carries no connection"))
	}
	connectionID := *claims.ConnectionID
	if req.ConnectionID != nil && *req.ConnectionID != connectionID {
		return connections.Connection{}, newError(KindInvalidState, key, errors.New("connection id does not match state"))
	}

	claimed, err := b.manager.ClaimCallback(ctx, connectionID, claims.Nonce)
	if err != nil {
		return connections.Connection{}, classify(key, err)
	}
	claim := claimed.StateNonce
	if claimed.ConnectorKey != key {
		return connections.Connection{}, b.fail(ctx, key, connectionID, claim, newError(KindConnectorMismatch, key, nil))
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, b.cfg.ExchangeTimeout)
	start := time.Now()
	cred, err := registry.CallExchangeCode(exchangeCtx, key, plugin, req.Code, b.redirectURI)
	cancel()
	metrics.TokenExchangeDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())
	if err != nil {
		slog.Warn("oauth code exchange failed", "connector", key, "connection_id", connectionID)
		slog.Debug("oauth code exchange error detail", "connector", key, "connection_id", connectionID, "err", err)
		return connections.Connection{}, b.fail(ctx, key, connectionID, claim, newError(KindExchangeError, key, err))
	}

	conn, err = b.manager.Activate(ctx, connectionID, claim, cred)
	if errors.Is(err, connections.ErrSuperseded) {
		slog.Info("callback superseded by a newer authorization", "connector", key, "connection_id", connectionID)
		return connections.Connection{}, classify(key, err)
	}
	if err != nil {
		return connections.Connection{}, b.fail(ctx, key, connectionID, claim, classify(key, err))
	}
	slog.Info("connection activated", "connector", key, "connection_id", conn.ID, "user_id", conn.UserID)
	return conn, nil
}

// fail records cause on the connection held by claim. The cause is returned
// either way; a failed status write is joined to it. A superseded claim
// leaves the newer authorization untouched.
func (b *Broker) fail(ctx context.Context, key string, connectionID int64, claim string, cause error) error {
	reason := defaultReasons[KindConnectorError]
	var be *Error
	if errors.As(cause, &be) && be.Reason != "" {
		reason = be.Reason
	}
	_, err := b.manager.Fail(context.WithoutCancel(ctx), connectionID, claim, reason)
	if errors.Is(err, connections.ErrSuperseded) {
		slog.Info("callback superseded by a newer authorization", "connector", key, "connection_id", connectionID)
		return cause
	}
	if err != nil {
		slog.Error("failed to mark connection failed", "connector", key, "connection_id", connectionID, "err", err)
		return errors.Join(cause, fmt.Errorf("mark connection %d failed: %w", connectionID, err))
	}
	return cause
}

// Revoke clears the credential and marks the connection revoked. A non-empty
// connectorKey must match the connection's connector. Provider-side
// revocation is attempted afterwards and never blocks the local result.
func (b *Broker) Revoke(ctx context.Context, userID, connectionID int64, connectorKey string) (err error) {
	key := registry.NormalizeKey(connectorKey)
	defer func() {
		metrics.OAuthFlowsTotal.WithLabelValues(metricKey(b.registry, key), metrics.StageRevoke, metrics.Outcome(err)).Inc()
	}()

	conn, err := b.manager.Owned(ctx, userID, connectionID)
	if err != nil {
		return classify(key, err)
	}
	if key != "" && conn.ConnectorKey != key {
		return newError(KindConnectorMismatch, key, nil)
	}
	key = conn.ConnectorKey

	cred, credErr := b.manager.Credential(ctx, connectionID)
	if credErr != nil && !errors.Is(credErr, connections.ErrNoCredential) {
		slog.Warn("loading credential before revoke failed", "connector", key, "connection_id", connectionID, "err", credErr)
	}

	if _, err := b.manager.Revoke(ctx, connectionID, reasonRevokedByUser); err != nil {
		return classify(key, err)
	}

	if credErr == nil {
		b.revokeRemote(ctx, key, connectionID, cred)
	}
	return nil
}

func (b *Broker) revokeRemote(ctx context.Context, key string, connectionID int64, cred registry.Credential) {
	_, plugin, err := b.registry.Get(key)
	if err != nil {
		return
	}
	revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.PluginTimeout)
	defer cancel()
	if err := registry.CallRevoke(revokeCtx, key, plugin, cred); err != nil {
		slog.Warn("provider token revocation failed", "connector", key, "connection_id", connectionID, "err", err)
	}
}

// Test runs the connector's connection test and stamps the result. Only the
// test time and a recovery from error are ever written.
func (b *Broker) Test(ctx context.Context, userID, connectionID int64) (TestResult, error) {
	conn, err := b.manager.Owned(ctx, userID, connectionID)
	if err != nil {
		return TestResult{}, classify("", err)
	}
	key := conn.ConnectorKey
	_, plugin, err := b.registry.Get(key)
	if err != nil {
		return TestResult{}, classify(key, err)
	}

	var health registry.Health
	cred, err := b.manager.Credential(ctx, connectionID)
	switch {
	case errors.Is(err, connections.ErrNoCredential):
		health = registry.Health{Reason: reasonNoCredential}
	case err != nil:
		return TestResult{}, classify(key, err)
	default:
		health = b.runTest(ctx, key, plugin, cred, conn)
	}
	metrics.ConnectorTestTotal.WithLabelValues(key, strconv.FormatBool(health.Healthy)).Inc()

	updated, err := b.manager.RecordTest(ctx, connectionID, health)
	if err != nil {
		return TestResult{}, classify(key, err)
	}
	return TestResult{Health: health, Connection: updated}, nil
}

func (b *Broker) runTest(ctx context.Context, key string, plugin registry.Plugin, cred registry.Credential, conn connections.Connection) registry.Health {
	testCtx, cancel := context.WithTimeout(ctx, b.cfg.PluginTimeout)
	defer cancel()
	health, err := registry.CallTestConnection(testCtx, key, plugin, cred, conn.ConfigData)
	if err != nil {
		slog.Warn("connection test errored", "connector", key, "connection_id", conn.ID, "err", err)
		return registry.Health{Reason: reasonTestFailed}
	}
	if !health.Healthy && strings.TrimSpace(health.Reason) == "" {
		health.Reason = reasonTestFailed
	}
	return health
}

// Refresh renews an active connection's credential. When the provider refuses,
// a credential already past expiry moves the connection to expired and any
// other failure moves it to error.
func (b *Broker) Refresh(ctx context.Context, connectionID int64) (err error) {
	conn, err := b.manager.Store().GetConnection(ctx, connectionID)
	if err != nil {
		return classify("", err)
	}
	key := conn.ConnectorKey
	defer func() {
		metrics.CredentialRefreshTotal.WithLabelValues(key, metrics.Outcome(err)).Inc()
	}()

	if conn.Status != connections.StatusActive {
		return &Error{Kind: KindInvalidRequest, Connector: key, Reason: "only active connections can be refreshed"}
	}
	_, plugin, err := b.registry.Get(key)
	if err != nil {
		return classify(key, err)
	}
	cred, err := b.manager.Credential(ctx, connectionID)
	if err != nil {
		return classify(key, err)
	}

	now := b.now()
	if !cred.Refreshable() {
		if !cred.Expired(now) {
			return nil
		}
		return b.expire(ctx, key, connectionID, newError(KindRefreshError, key, errors.New("no refresh token")))
	}

	refreshCtx, cancel := context.WithTimeout(ctx, b.cfg.PluginTimeout)
	out, err := registry.CallRefresh(refreshCtx, key, plugin, cred)
	cancel()
	if err != nil {
		slog.Warn("credential refresh failed", "connector", key, "connection_id", connectionID, "err", err)
		cause := newError(KindRefreshError, key, err)
		if cred.Expired(now) {
			return b.expire(ctx, key, connectionID, cause)
		}
		return b.fail(ctx, key, connectionID, "", cause)
	}

	if _, err := b.manager.ApplyRefresh(ctx, connectionID, out); err != nil {
		return classify(key, err)
	}
	return nil
}

func (b *Broker) expire(ctx context.Context, key string, connectionID int64, cause error) error {
	if _, err := b.manager.Expire(context.WithoutCancel(ctx), connectionID, reasonCannotRefresh); err != nil {
		slog.Error("failed to mark connection expired", "connector", key, "connection_id", connectionID, "err", err)
		return errors.Join(cause, fmt.Errorf("mark connection %d expired: %w", connectionID, err))
	}
	return cause
}

// metricKey keeps label cardinality bounded to registered connectors.
func metricKey(reg *registry.ConnectorRegistry, key string) string {
	if _, ok := reg.Lookup(key); ok {
		return key
	}
	return "unknown"
}
