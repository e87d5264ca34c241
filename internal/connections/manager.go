package connections

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/metrics"
)

// Manager applies lifecycle transitions to connections through a Store.
type Manager struct {
	store Store
	now   func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a Manager backed by store.
func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// BeginRequest identifies the connection an authorization flow targets.
type BeginRequest struct {
	UserID       int64
	ConnectorKey string
	ConnectionID *int64
}

// Owned returns the connection when it belongs to userID, and ErrNotFound otherwise.
func (m *Manager) Owned(ctx context.Context, userID, id int64) (Connection, error) {
	conn, err := m.store.GetConnection(ctx, id)
	if err != nil {
		return Connection{}, err
	}
	if conn.UserID != userID {
		return Connection{}, ErrNotFound
	}
	return conn, nil
}

// List returns the user's connections.
func (m *Manager) List(ctx context.Context, userID int64) ([]Connection, error) {
	return m.store.ListConnections(ctx, userID)
}

// Create adds a connection awaiting authorization.
func (m *Manager) Create(ctx context.Context, userID int64, connectorKey string, configData map[string]any) (Connection, error) {
	if configData == nil {
		configData = map[string]any{}
	}
	conn, err := m.store.CreateConnection(ctx, NewConnection{
		UserID:       userID,
		ConnectorKey: registry.NormalizeKey(connectorKey),
		Status:       StatusPendingAuth,
		ConfigData:   configData,
	})
	if err != nil {
		return Connection{}, err
	}
	observe(conn)
	return conn, nil
}

// UpdateConfig replaces the connection's config data.
func (m *Manager) UpdateConfig(ctx context.Context, userID, id int64, configData map[string]any) (Connection, error) {
	if _, err := m.Owned(ctx, userID, id); err != nil {
		return Connection{}, err
	}
	if configData == nil {
		configData = map[string]any{}
	}
	return m.store.UpdateConfig(ctx, id, configData)
}

// Delete removes the connection; credentials go with it.
func (m *Manager) Delete(ctx context.Context, userID, id int64) error {
	if _, err := m.Owned(ctx, userID, id); err != nil {
		return err
	}
	return m.store.DeleteConnection(ctx, id)
}

// Credential returns the stored credential for a connection.
func (m *Manager) Credential(ctx context.Context, id int64) (registry.Credential, error) {
	return m.store.GetCredential(ctx, id)
}

// BeginAuthorization finds or creates the target connection, lets mint issue
// a state token bound to it, and moves the connection to pending_auth with the
// token's nonce.
func (m *Manager) BeginAuthorization(ctx context.Context, req BeginRequest, mint func(connectionID int64) (string, error)) (Connection, error) {
	key := registry.NormalizeKey(req.ConnectorKey)
	if key == "" {
		return Connection{}, errors.New("connector key is required")
	}

	conn, err := m.target(ctx, req.UserID, key, req.ConnectionID)
	if err != nil {
		return Connection{}, err
	}

	nonce, err := mint(conn.ID)
	if err != nil {
		return Connection{}, err
	}
	if strings.TrimSpace(nonce) == "" {
		return Connection{}, errors.New("state nonce is required")
	}

	return m.apply(ctx, m.store, Transition{
		ConnectionID: conn.ID,
		From:         SourcesFor(StatusPendingAuth),
		To:           StatusPendingAuth,
		SetNonce:     &nonce,
	})
}

func (m *Manager) target(ctx context.Context, userID int64, key string, connectionID *int64) (Connection, error) {
	if connectionID != nil {
		conn, err := m.Owned(ctx, userID, *connectionID)
		if err != nil {
			return Connection{}, err
		}
		if conn.ConnectorKey != key {
			return Connection{}, ErrConnectorMismatch
		}
		return conn, nil
	}

	conn, err := m.store.FindConnection(ctx, userID, key)
	if err == nil {
		return conn, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Connection{}, err
	}
	conn, err = m.Create(ctx, userID, key, nil)
	if errors.Is(err, ErrConflict) {
		return m.store.FindConnection(ctx, userID, key)
	}
	return conn, err
}

// claimPrefix marks a state nonce whose callback is in flight. Signed state
// tokens never carry it, so a claimed nonce cannot be claimed again.
const claimPrefix = "claimed:"

// ClaimCallback atomically consumes the pending state nonce. Exactly one
// caller per nonce succeeds; the rest get ErrReplayedCallback. The returned
// connection's StateNonce is the claim that Activate and Fail must present.
func (m *Manager) ClaimCallback(ctx context.Context, connectionID int64, nonce string) (Connection, error) {
	if strings.TrimSpace(nonce) == "" || strings.HasPrefix(nonce, claimPrefix) {
		return Connection{}, ErrReplayedCallback
	}
	claim := claimPrefix + nonce
	conn, err := m.store.Transition(ctx, Transition{
		ConnectionID: connectionID,
		From:         []Status{StatusPendingAuth},
		To:           StatusPendingAuth,
		ExpectNonce:  nonce,
		SetNonce:     &claim,
		At:           m.now(),
	})
	if errors.Is(err, ErrStaleTransition) {
		return Connection{}, ErrReplayedCallback
	}
	return conn, err
}

// Activate stores the credential and marks a claimed connection active. It
// returns ErrSuperseded when another authorization replaced the claim.
func (m *Manager) Activate(ctx context.Context, connectionID int64, claim string, cred registry.Credential) (Connection, error) {
	if !strings.HasPrefix(claim, claimPrefix) {
		return Connection{}, ErrReplayedCallback
	}
	var out Connection
	err := m.store.WithTx(ctx, func(tx Store) error {
		cleared := ""
		conn, err := m.apply(ctx, tx, Transition{
			ConnectionID: connectionID,
			From:         []Status{StatusPendingAuth},
			To:           StatusActive,
			ExpectNonce:  claim,
			SetNonce:     &cleared,
			Refreshed:    true,
		})
		if err != nil {
			return err
		}
		if err := tx.SaveCredential(ctx, connectionID, cred); err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		out = conn
		return nil
	})
	return out, err
}

// Fail moves the connection to error with a redacted reason. A non-empty
// claim restricts the write to the callback that holds it.
func (m *Manager) Fail(ctx context.Context, connectionID int64, claim, reason string) (Connection, error) {
	cleared := ""
	return m.apply(ctx, m.store, Transition{
		ConnectionID: connectionID,
		From:         SourcesFor(StatusError),
		To:           StatusError,
		Reason:       reason,
		ExpectNonce:  claim,
		SetNonce:     &cleared,
	})
}

// Revoke deletes the credential and marks the connection revoked.
func (m *Manager) Revoke(ctx context.Context, connectionID int64, reason string) (Connection, error) {
	var out Connection
	err := m.store.WithTx(ctx, func(tx Store) error {
		if err := tx.DeleteCredential(ctx, connectionID); err != nil && !errors.Is(err, ErrNoCredential) {
			return fmt.Errorf("delete credential: %w", err)
		}
		cleared := ""
		conn, err := m.apply(ctx, tx, Transition{
			ConnectionID: connectionID,
			From:         SourcesFor(StatusRevoked),
			To:           StatusRevoked,
			Reason:       reason,
			SetNonce:     &cleared,
		})
		if err != nil {
			return err
		}
		out = conn
		return nil
	})
	return out, err
}

// RecordTest stamps the test time. A healthy result brings a connection in
// error back to active; an unhealthy one leaves the status untouched.
func (m *Manager) RecordTest(ctx context.Context, connectionID int64, health registry.Health) (Connection, error) {
	conn, err := m.store.GetConnection(ctx, connectionID)
	if err != nil {
		return Connection{}, err
	}
	if health.Healthy && conn.Status == StatusError {
		return m.apply(ctx, m.store, Transition{
			ConnectionID: connectionID,
			From:         []Status{StatusError},
			To:           StatusActive,
			Tested:       true,
		})
	}

	reason := conn.StatusReason
	if health.Healthy && conn.Status == StatusActive {
		reason = ""
	}
	out, err := m.store.Transition(ctx, Transition{
		ConnectionID: connectionID,
		From:         []Status{conn.Status},
		To:           conn.Status,
		Reason:       reason,
		Tested:       true,
		At:           m.now(),
	})
	if errors.Is(err, ErrStaleTransition) {
		return Connection{}, fmt.Errorf("%w: connection changed during test", ErrInvalidTransition)
	}
	return out, err
}

// ApplyRefresh stores a refreshed credential on an active connection.
func (m *Manager) ApplyRefresh(ctx context.Context, connectionID int64, cred registry.Credential) (Connection, error) {
	var out Connection
	err := m.store.WithTx(ctx, func(tx Store) error {
		conn, err := m.apply(ctx, tx, Transition{
			ConnectionID: connectionID,
			From:         []Status{StatusActive},
			To:           StatusActive,
			Refreshed:    true,
		})
		if err != nil {
			return err
		}
		if err := tx.SaveCredential(ctx, connectionID, cred); err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		out = conn
		return nil
	})
	return out, err
}

// Expire marks an active connection whose credential can no longer be refreshed.
func (m *Manager) Expire(ctx context.Context, connectionID int64, reason string) (Connection, error) {
	return m.apply(ctx, m.store, Transition{
		ConnectionID: connectionID,
		From:         []Status{StatusActive},
		To:           StatusExpired,
		Reason:       reason,
	})
}

func (m *Manager) apply(ctx context.Context, store Store, t Transition) (Connection, error) {
	if t.At.IsZero() {
		t.At = m.now()
	}
	conn, err := store.Transition(ctx, t)
	if errors.Is(err, ErrStaleTransition) {
		current, getErr := store.GetConnection(ctx, t.ConnectionID)
		if getErr != nil {
			return Connection{}, getErr
		}
		if t.ExpectNonce != "" && slices.Contains(t.From, current.Status) && current.StateNonce != t.ExpectNonce {
			return Connection{}, ErrSuperseded
		}
		return Connection{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, t.To)
	}
	if err != nil {
		return Connection{}, err
	}
	observe(conn)
	return conn, nil
}

func observe(conn Connection) {
	metrics.ConnectionTransitionsTotal.WithLabelValues(conn.ConnectorKey, string(conn.Status)).Inc()
}
