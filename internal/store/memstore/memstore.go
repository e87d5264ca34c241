// Package memstore is an in-process connections.Store. Transactions run under
// one mutex against a copy of the state that replaces it on commit.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

type state struct {
	nextID          int64
	nextConnectorID int64
	connectors      map[string]registry.StoredConnector
	connections     map[int64]connections.Connection
	credentials     map[int64]registry.Credential
}

func (s *state) clone() *state {
	out := &state{
		nextID:          s.nextID,
		nextConnectorID: s.nextConnectorID,
		connectors:      maps.Clone(s.connectors),
		connections: make(map[int64]connections.Connection, len(s.connections)),
		credentials: make(map[int64]registry.Credential, len(s.credentials)),
	}
	for id, c := range s.connections {
		out.connections[id] = cloneConnection(c)
	}
	for id, c := range s.credentials {
		out.credentials[id] = cloneCredential(c)
	}
	return out
}

// Store keeps connections and credentials in memory.
type Store struct {
	mu    *sync.Mutex
	st    *state
	inTx  bool
	now   func() time.Time
	calls map[string]int
	fail  map[string]failure
}

type failure struct {
	after int
	err   error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			connectors:  map[string]registry.StoredConnector{},
			connections: map[int64]connections.Connection{},
			credentials: map[int64]registry.Credential{},
		},
		now:   time.Now,
		calls: map[string]int{},
		fail:  map[string]failure{},
	}
}

// FailOn makes every later call of method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.FailAfter(method, 0, err)
}

// FailAfter lets the next n calls of method succeed and fails the rest with err.
func (s *Store) FailAfter(method string, n int, err error) {
	s.lock()
	defer s.unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = failure{after: s.calls[method] + n, err: err}
}

// SetClock overrides the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.lock()
	defer s.unlock()
	s.now = now
}

// Calls returns how many times a mutating method has been invoked.
func (s *Store) Calls(method string) int {
	s.lock()
	defer s.unlock()
	return s.calls[method]
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

func (s *Store) record(method string) error {
	s.calls[method]++
	if f, ok := s.fail[method]; ok && s.calls[method] > f.after {
		return f.err
	}
	return nil
}

func (s *Store) WithTx(ctx context.Context, fn func(connections.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true, now: s.now, calls: s.calls, fail: s.fail}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// connectorID returns the catalogue id of key, adding a bare row the way
// the Postgres store does for connections to unseeded connectors.
func (s *Store) connectorID(key string) int64 {
	row, ok := s.st.connectors[key]
	if !ok {
		row = s.addConnector(registry.NewStoredConnector{Key: key, Name: key})
	}
	return row.ID
}

func (s *Store) GetConnection(_ context.Context, id int64) (connections.Connection, error) {
	s.lock()
	defer s.unlock()
	c, ok := s.st.connections[id]
	if !ok {
		return connections.Connection{}, connections.ErrNotFound
	}
	return cloneConnection(c), nil
}

func (s *Store) FindConnection(_ context.Context, userID int64, connectorKey string) (connections.Connection, error) {
	s.lock()
	defer s.unlock()
	key := registry.NormalizeKey(connectorKey)
	for _, c := range s.st.connections {
		if c.UserID == userID && c.ConnectorKey == key {
			return cloneConnection(c), nil
		}
	}
	return connections.Connection{}, connections.ErrNotFound
}

func (s *Store) ListConnections(_ context.Context, userID int64) ([]connections.Connection, error) {
	s.lock()
	defer s.unlock()
	out := make([]connections.Connection, 0)
	for _, c := range s.st.connections {
		if c.UserID == userID {
			out = append(out, cloneConnection(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateConnection(_ context.Context, in connections.NewConnection) (connections.Connection, error) {
	s.lock()
	defer s.unlock()
	if err := s.record("CreateConnection"); err != nil {
		return connections.Connection{}, err
	}
	key := registry.NormalizeKey(in.ConnectorKey)
	for _, c := range s.st.connections {
		if c.UserID == in.UserID && c.ConnectorKey == key {
			return connections.Connection{}, connections.ErrConflict
		}
	}
	status := in.Status
	if status == "" {
		status = connections.StatusPendingAuth
	}
	s.st.nextID++
	now := s.now()
	c := connections.Connection{
		ID:           s.st.nextID,
		UserID:       in.UserID,
		ConnectorID:  s.connectorID(key),
		ConnectorKey: key,
		Status:       status,
		ConfigData:   maps.Clone(in.ConfigData),
		StateNonce:   in.StateNonce,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.ConfigData == nil {
		c.ConfigData = map[string]any{}
	}
	s.st.connections[c.ID] = c
	return cloneConnection(c), nil
}

func (s *Store) UpdateConfig(_ context.Context, id int64, configData map[string]any) (connections.Connection, error) {
	s.lock()
	defer s.unlock()
	c, ok := s.st.connections[id]
	if !ok {
		return connections.Connection{}, connections.ErrNotFound
	}
	c.ConfigData = maps.Clone(configData)
	c.UpdatedAt = s.now()
	s.st.connections[id] = c
	return cloneConnection(c), nil
}

func (s *Store) DeleteConnection(_ context.Context, id int64) error {
	s.lock()
	defer s.unlock()
	if _, ok := s.st.connections[id]; !ok {
		return connections.ErrNotFound
	}
	delete(s.st.connections, id)
	delete(s.st.credentials, id)
	return nil
}

func (s *Store) Transition(_ context.Context, t connections.Transition) (connections.Connection, error) {
	s.lock()
	defer s.unlock()
	if err := s.record("Transition"); err != nil {
		return connections.Connection{}, err
	}
	c, ok := s.st.connections[t.ConnectionID]
	if !ok {
		return connections.Connection{}, connections.ErrNotFound
	}
	if !slices.Contains(t.From, c.Status) {
		return connections.Connection{}, connections.ErrStaleTransition
	}
	if t.ExpectNonce != "" && c.StateNonce != t.ExpectNonce {
		return connections.Connection{}, connections.ErrStaleTransition
	}

	at := t.At
	if at.IsZero() {
		at = s.now()
	}
	c.Status = t.To
	c.StatusReason = t.Reason
	if t.SetNonce != nil {
		c.StateNonce = *t.SetNonce
	}
	if t.Tested {
		c.LastTestedAt = &at
	}
	if t.Refreshed {
		c.LastRefreshedAt = &at
	}
	c.UpdatedAt = at
	s.st.connections[c.ID] = c
	return cloneConnection(c), nil
}

func (s *Store) SaveCredential(_ context.Context, connectionID int64, cred registry.Credential) error {
	s.lock()
	defer s.unlock()
	if err := s.record("SaveCredential"); err != nil {
		return err
	}
	if _, ok := s.st.connections[connectionID]; !ok {
		return connections.ErrNotFound
	}
	s.st.credentials[connectionID] = cloneCredential(cred)
	return nil
}

func (s *Store) GetCredential(_ context.Context, connectionID int64) (registry.Credential, error) {
	s.lock()
	defer s.unlock()
	c, ok := s.st.credentials[connectionID]
	if !ok {
		return registry.Credential{}, connections.ErrNoCredential
	}
	return cloneCredential(c), nil
}

func (s *Store) DeleteCredential(_ context.Context, connectionID int64) error {
	s.lock()
	defer s.unlock()
	if err := s.record("DeleteCredential"); err != nil {
		return err
	}
	if _, ok := s.st.credentials[connectionID]; !ok {
		return connections.ErrNoCredential
	}
	delete(s.st.credentials, connectionID)
	return nil
}

func (s *Store) ListExpiring(_ context.Context, before time.Time, limit int) ([]connections.Connection, error) {
	s.lock()
	defer s.unlock()
	out := make([]connections.Connection, 0)
	for id, cred := range s.st.credentials {
		c, ok := s.st.connections[id]
		if !ok || c.Status != connections.StatusActive {
			continue
		}
		if cred.ExpiresAt.IsZero() || !cred.ExpiresAt.Before(before) {
			continue
		}
		out = append(out, cloneConnection(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneConnection(c connections.Connection) connections.Connection {
	c.ConfigData = maps.Clone(c.ConfigData)
	if c.LastTestedAt != nil {
		t := *c.LastTestedAt
		c.LastTestedAt = &t
	}
	if c.LastRefreshedAt != nil {
		t := *c.LastRefreshedAt
		c.LastRefreshedAt = &t
	}
	return c
}

func cloneCredential(c registry.Credential) registry.Credential {
	c.Scopes = slices.Clone(c.Scopes)
	c.Extra = maps.Clone(c.Extra)
	return c
}
