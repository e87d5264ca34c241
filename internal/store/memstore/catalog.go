package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

// ListStoredConnectors returns every catalogue row ordered by key.
func (s *Store) ListStoredConnectors(context.Context) ([]registry.StoredConnector, error) {
	s.lock()
	defer s.unlock()
	out := make([]registry.StoredConnector, 0, len(s.st.connectors))
	for _, row := range s.st.connectors {
		out = append(out, cloneStoredConnector(row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) CreateConnector(_ context.Context, in registry.NewStoredConnector) (registry.StoredConnector, error) {
	s.lock()
	defer s.unlock()
	if err := s.record("CreateConnector"); err != nil {
		return registry.StoredConnector{}, err
	}
	in.Key = registry.NormalizeKey(in.Key)
	if _, ok := s.st.connectors[in.Key]; ok {
		return registry.StoredConnector{}, registry.ErrConnectorExists
	}
	return cloneStoredConnector(s.addConnector(in)), nil
}

func (s *Store) UpdateConnector(_ context.Context, key string, in registry.ConnectorUpdate) (registry.StoredConnector, error) {
	s.lock()
	defer s.unlock()
	if err := s.record("UpdateConnector"); err != nil {
		return registry.StoredConnector{}, err
	}
	row, ok := s.st.connectors[registry.NormalizeKey(key)]
	if !ok {
		return registry.StoredConnector{}, registry.ErrNotFound
	}
	if in.Name != nil {
		row.Name = strings.TrimSpace(*in.Name)
	}
	if len(in.ConfigSchema) > 0 {
		row.ConfigSchema = slices.Clone(in.ConfigSchema)
	}
	row.UpdatedAt = s.now()
	s.st.connectors[row.Key] = row
	return cloneStoredConnector(row), nil
}

// DeleteConnector removes a catalogue row with its connections and their
// credentials.
func (s *Store) DeleteConnector(_ context.Context, key string) error {
	s.lock()
	defer s.unlock()
	if err := s.record("DeleteConnector"); err != nil {
		return err
	}
	row, ok := s.st.connectors[registry.NormalizeKey(key)]
	if !ok {
		return registry.ErrNotFound
	}
	for id, c := range s.st.connections {
		if c.ConnectorID == row.ID {
			delete(s.st.connections, id)
			delete(s.st.credentials, id)
		}
	}
	delete(s.st.connectors, row.Key)
	return nil
}

func (s *Store) addConnector(in registry.NewStoredConnector) registry.StoredConnector {
	schema := in.ConfigSchema
	if len(schema) == 0 {
		schema = registry.Definition{}.Schema()
	}
	s.st.nextConnectorID++
	now := s.now()
	row := registry.StoredConnector{
		ID:             s.st.nextConnectorID,
		Key:            in.Key,
		Name:           strings.TrimSpace(in.Name),
		Scopes:         []string{},
		OptionalScopes: []string{},
		ConfigSchema:   slices.Clone(schema),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.st.connectors[row.Key] = row
	return row
}

func cloneStoredConnector(c registry.StoredConnector) registry.StoredConnector {
	c.Scopes = slices.Clone(c.Scopes)
	c.OptionalScopes = slices.Clone(c.OptionalScopes)
	c.ConfigSchema = slices.Clone(c.ConfigSchema)
	return c
}
