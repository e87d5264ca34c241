// Package pgstore implements connections.Store on Postgres through the
// generated queries in internal/db/gen.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/credentials"
	"github.com/open-sspm/connector-hub/internal/db/gen"
)

// Store persists connections and sealed credentials.
type Store struct {
	pool   *pgxpool.Pool
	q      *gen.Queries
	sealer credentials.Sealer
}

// New returns a Store on pool. Credential material is sealed with sealer.
func New(pool *pgxpool.Pool, sealer credentials.Sealer) *Store {
	return &Store{pool: pool, q: gen.New(pool), sealer: sealer}
}

// Queries exposes the generated queries for callers outside the connection
// lifecycle (user and connector upserts).
func (s *Store) Queries() *gen.Queries {
	return s.q
}

func (s *Store) WithTx(ctx context.Context, fn func(connections.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&Store{q: s.q.WithTx(tx), sealer: s.sealer}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetConnection(ctx context.Context, id int64) (connections.Connection, error) {
	row, err := s.q.GetConnectionDetail(ctx, id)
	if err != nil {
		return connections.Connection{}, mapNotFound(err)
	}
	return connectionFromRow(row)
}

func (s *Store) FindConnection(ctx context.Context, userID int64, connectorKey string) (connections.Connection, error) {
	row, err := s.q.FindConnectionDetail(ctx, gen.FindConnectionDetailParams{
		UserID:       userID,
		ConnectorKey: registry.NormalizeKey(connectorKey),
	})
	if err != nil {
		return connections.Connection{}, mapNotFound(err)
	}
	return connectionFromRow(row)
}

func (s *Store) ListConnections(ctx context.Context, userID int64) ([]connections.Connection, error) {
	rows, err := s.q.ListConnectionDetailsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return connectionsFromRows(rows)
}

func (s *Store) CreateConnection(ctx context.Context, in connections.NewConnection) (connections.Connection, error) {
	connectorID, err := s.q.EnsureConnector(ctx, registry.NormalizeKey(in.ConnectorKey))
	if err != nil {
		return connections.Connection{}, fmt.Errorf("ensure connector: %w", err)
	}
	status := in.Status
	if status == "" {
		status = connections.StatusPendingAuth
	}
	config, err := marshalConfig(in.ConfigData)
	if err != nil {
		return connections.Connection{}, err
	}
	id, err := s.q.CreateConnection(ctx, gen.CreateConnectionParams{
		UserID:      in.UserID,
		ConnectorID: connectorID,
		Status:      string(status),
		ConfigData:  config,
		StateNonce:  in.StateNonce,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return connections.Connection{}, connections.ErrConflict
		}
		return connections.Connection{}, err
	}
	return s.GetConnection(ctx, id)
}

func (s *Store) UpdateConfig(ctx context.Context, id int64, configData map[string]any) (connections.Connection, error) {
	config, err := marshalConfig(configData)
	if err != nil {
		return connections.Connection{}, err
	}
	n, err := s.q.UpdateConnectionConfig(ctx, gen.UpdateConnectionConfigParams{ID: id, ConfigData: config})
	if err != nil {
		return connections.Connection{}, err
	}
	if n == 0 {
		return connections.Connection{}, connections.ErrNotFound
	}
	return s.GetConnection(ctx, id)
}

func (s *Store) DeleteConnection(ctx context.Context, id int64) error {
	n, err := s.q.DeleteConnection(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return connections.ErrNotFound
	}
	return nil
}

func (s *Store) Transition(ctx context.Context, t connections.Transition) (connections.Connection, error) {
	from := make([]string, 0, len(t.From))
	for _, status := range t.From {
		from = append(from, string(status))
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	params := gen.TransitionConnectionParams{
		ToStatus:     string(t.To),
		StatusReason: t.Reason,
		Tested:       t.Tested,
		At:           pgTimestamptz(at),
		Refreshed:    t.Refreshed,
		ID:           t.ConnectionID,
		FromStatuses: from,
		ExpectNonce:  t.ExpectNonce,
	}
	if t.SetNonce != nil {
		params.SetNonce = true
		params.NewNonce = *t.SetNonce
	}

	id, err := s.q.TransitionConnection(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.q.GetConnectionDetail(ctx, t.ConnectionID); getErr != nil {
			return connections.Connection{}, mapNotFound(getErr)
		}
		return connections.Connection{}, connections.ErrStaleTransition
	}
	if err != nil {
		return connections.Connection{}, err
	}
	return s.GetConnection(ctx, id)
}

func (s *Store) SaveCredential(ctx context.Context, connectionID int64, cred registry.Credential) error {
	access, err := s.sealer.Seal(ctx, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(ctx, cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	extra := cred.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	err = s.q.UpsertConnectionCredential(ctx, gen.UpsertConnectionCredentialParams{
		ConnectionID: connectionID,
		AccessToken:  access,
		RefreshToken: pgtype.Text{String: refresh, Valid: refresh != ""},
		TokenType:    cred.TokenType,
		Scopes:       scopes,
		ExpiresAt:    pgTimestamptz(cred.ExpiresAt),
		Extra:        registry.MarshalJSON(extra),
	})
	if isForeignKeyViolation(err) {
		return connections.ErrNotFound
	}
	return err
}

func (s *Store) GetCredential(ctx context.Context, connectionID int64) (registry.Credential, error) {
	row, err := s.q.GetConnectionCredential(ctx, connectionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Credential{}, connections.ErrNoCredential
	}
	if err != nil {
		return registry.Credential{}, err
	}

	access, err := s.sealer.Open(ctx, row.AccessToken)
	if err != nil {
		return registry.Credential{}, fmt.Errorf("open access token: %w", err)
	}
	cred := registry.Credential{
		AccessToken: access,
		TokenType:   row.TokenType,
		Scopes:      row.Scopes,
	}
	if row.RefreshToken.Valid {
		if cred.RefreshToken, err = s.sealer.Open(ctx, row.RefreshToken.String); err != nil {
			return registry.Credential{}, fmt.Errorf("open refresh token: %w", err)
		}
	}
	if row.ExpiresAt.Valid {
		cred.ExpiresAt = row.ExpiresAt.Time
	}
	if len(row.Extra) > 0 {
		if err := json.Unmarshal(row.Extra, &cred.Extra); err != nil {
			return registry.Credential{}, fmt.Errorf("decode credential extra: %w", err)
		}
	}
	return cred, nil
}

func (s *Store) DeleteCredential(ctx context.Context, connectionID int64) error {
	n, err := s.q.DeleteConnectionCredential(ctx, connectionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return connections.ErrNoCredential
	}
	return nil
}

func (s *Store) ListExpiring(ctx context.Context, before time.Time, limit int) ([]connections.Connection, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.ListExpiringConnectionDetails(ctx, gen.ListExpiringConnectionDetailsParams{
		Before:   pgTimestamptz(before),
		RowLimit: int32(limit),
	})
	if err != nil {
		return nil, err
	}
	return connectionsFromRows(rows)
}

func connectionsFromRows(rows []gen.ConnectionDetail) ([]connections.Connection, error) {
	out := make([]connections.Connection, 0, len(rows))
	for _, row := range rows {
		conn, err := connectionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, conn)
	}
	return out, nil
}

func connectionFromRow(row gen.ConnectionDetail) (connections.Connection, error) {
	config, err := registry.DecodeConfigData(row.ConfigData)
	if err != nil {
		return connections.Connection{}, fmt.Errorf("decode config_data for connection %d: %w", row.ID, err)
	}
	return connections.Connection{
		ID:              row.ID,
		UserID:          row.UserID,
		ConnectorID:     row.ConnectorID,
		ConnectorKey:    row.ConnectorKey,
		Status:          connections.Status(row.Status),
		StatusReason:    row.StatusReason,
		ConfigData:      config,
		StateNonce:      row.StateNonce,
		CreatedAt:       row.CreatedAt.Time,
		UpdatedAt:       row.UpdatedAt.Time,
		LastTestedAt:    timePtr(row.LastTestedAt),
		LastRefreshedAt: timePtr(row.LastRefreshedAt),
	}, nil
}

func marshalConfig(configData map[string]any) ([]byte, error) {
	if configData == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(configData)
	if err != nil {
		return nil, fmt.Errorf("encode config_data: %w", err)
	}
	return b, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return connections.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func pgTimestamptz(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
