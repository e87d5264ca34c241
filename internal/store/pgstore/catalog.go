package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/db/gen"
)

// UpsertUser returns the id of the user with email, creating the row on first sight.
func (s *Store) UpsertUser(ctx context.Context, email, name string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, errors.New("user email is required")
	}
	user, err := s.q.UpsertUserByEmail(ctx, gen.UpsertUserByEmailParams{
		Email: email,
		Name:  strings.TrimSpace(name),
	})
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// SyncConnectors upserts every registered definition into the connectors table.
func (s *Store) SyncConnectors(ctx context.Context, defs []registry.Definition) error {
	return s.withQueries(ctx, func(q *gen.Queries) error {
		for _, def := range defs {
			if _, err := q.UpsertConnector(ctx, gen.UpsertConnectorParams{
				Key:            def.Key,
				Name:           def.Name,
				AuthUrl:        def.AuthURL,
				TokenUrl:       def.TokenURL,
				Scopes:         nonNil(def.Scopes),
				OptionalScopes: nonNil(def.OptionalScopes),
				ConfigSchema:   registry.NormalizeJSON(def.Schema()),
				Enabled:        def.Usable(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListStoredConnectors returns every catalogue row ordered by key.
func (s *Store) ListStoredConnectors(ctx context.Context) ([]registry.StoredConnector, error) {
	rows, err := s.q.ListConnectors(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]registry.StoredConnector, 0, len(rows))
	for _, row := range rows {
		out = append(out, storedConnectorFromRow(row))
	}
	return out, nil
}

// CreateConnector adds a catalogue row. It returns ErrConnectorExists when
// the key is taken.
func (s *Store) CreateConnector(ctx context.Context, in registry.NewStoredConnector) (registry.StoredConnector, error) {
	schema := in.ConfigSchema
	if len(schema) == 0 {
		schema = registry.Definition{}.Schema()
	}
	row, err := s.q.CreateConnector(ctx, gen.CreateConnectorParams{
		Key:          registry.NormalizeKey(in.Key),
		Name:         strings.TrimSpace(in.Name),
		ConfigSchema: registry.NormalizeJSON(schema),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.StoredConnector{}, registry.ErrConnectorExists
	}
	if err != nil {
		return registry.StoredConnector{}, fmt.Errorf("create connector: %w", err)
	}
	return storedConnectorFromRow(row), nil
}

// UpdateConnector changes the name or config schema of a catalogue row.
func (s *Store) UpdateConnector(ctx context.Context, key string, in registry.ConnectorUpdate) (registry.StoredConnector, error) {
	params := gen.UpdateConnectorParams{Key: registry.NormalizeKey(key)}
	if in.Name != nil {
		params.Name = pgtype.Text{String: strings.TrimSpace(*in.Name), Valid: true}
	}
	if len(in.ConfigSchema) > 0 {
		params.ConfigSchema = registry.NormalizeJSON(in.ConfigSchema)
	}
	row, err := s.q.UpdateConnector(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.StoredConnector{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.StoredConnector{}, fmt.Errorf("update connector: %w", err)
	}
	return storedConnectorFromRow(row), nil
}

// DeleteConnector removes a catalogue row. Its connections and their
// credentials go with it.
func (s *Store) DeleteConnector(ctx context.Context, key string) error {
	n, err := s.q.DeleteConnector(ctx, registry.NormalizeKey(key))
	if err != nil {
		return fmt.Errorf("delete connector: %w", err)
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func storedConnectorFromRow(row gen.Connector) registry.StoredConnector {
	return registry.StoredConnector{
		ID:             row.ID,
		Key:            row.Key,
		Name:           row.Name,
		AuthURL:        row.AuthUrl,
		TokenURL:       row.TokenUrl,
		Scopes:         nonNil(row.Scopes),
		OptionalScopes: nonNil(row.OptionalScopes),
		ConfigSchema:   row.ConfigSchema,
		Enabled:        row.Enabled,
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Store) withQueries(ctx context.Context, fn func(*gen.Queries) error) error {
	if s.pool == nil {
		return fn(s.q)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(s.q.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
