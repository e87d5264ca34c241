package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	conn, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: "jira"})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx connections.Store) error {
		if err := tx.SaveCredential(ctx, conn.ID, registry.Credential{AccessToken: "a"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want %v", err, boom)
	}
	if _, err := s.GetCredential(ctx, conn.ID); !errors.Is(err, connections.ErrNoCredential) {
		t.Fatalf("GetCredential() error = %v, want ErrNoCredential", err)
	}

	if err := s.WithTx(ctx, func(tx connections.Store) error {
		return tx.SaveCredential(ctx, conn.ID, registry.Credential{AccessToken: "b"})
	}); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	cred, err := s.GetCredential(ctx, conn.ID)
	if err != nil || cred.AccessToken != "b" {
		t.Fatalf("GetCredential() = %+v, %v", cred, err)
	}
}

func TestTransitionGuards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	conn, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: "slack", StateNonce: "n1"})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	if conn.Status != connections.StatusPendingAuth {
		t.Fatalf("default status = %s", conn.Status)
	}

	tests := []struct {
		name string
		tr   connections.Transition
		want error
	}{
		{
			name: "wrong source",
			tr:   connections.Transition{ConnectionID: conn.ID, From: []connections.Status{connections.StatusActive}, To: connections.StatusExpired},
			want: connections.ErrStaleTransition,
		},
		{
			name: "wrong nonce",
			tr:   connections.Transition{ConnectionID: conn.ID, From: []connections.Status{connections.StatusPendingAuth}, To: connections.StatusActive, ExpectNonce: "other"},
			want: connections.ErrStaleTransition,
		},
		{
			name: "missing connection",
			tr:   connections.Transition{ConnectionID: 404, From: []connections.Status{connections.StatusPendingAuth}, To: connections.StatusActive},
			want: connections.ErrNotFound,
		},
	}
	for _, tt := range tests {
		if _, err := s.Transition(ctx, tt.tr); !errors.Is(err, tt.want) {
			t.Fatalf("%s: Transition() error = %v, want %v", tt.name, err, tt.want)
		}
	}

	cleared := ""
	got, err := s.Transition(ctx, connections.Transition{
		ConnectionID: conn.ID,
		From:         []connections.Status{connections.StatusPendingAuth},
		To:           connections.StatusActive,
		ExpectNonce:  "n1",
		SetNonce:     &cleared,
		Refreshed:    true,
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if got.Status != connections.StatusActive || got.StateNonce != "" || got.LastRefreshedAt == nil || got.LastTestedAt != nil {
		t.Fatalf("Transition() = %+v", got)
	}
}

func TestReturnedConnectionsAreCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	conn, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: "notion", ConfigData: map[string]any{"workspace_name": "acme"}})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	conn.ConfigData["workspace_name"] = "mutated"

	got, err := s.GetConnection(ctx, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection() error = %v", err)
	}
	if got.ConfigData["workspace_name"] != "acme" {
		t.Fatalf("ConfigData leaked mutation: %v", got.ConfigData)
	}
}

func TestListExpiring(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mk := func(key string, status connections.Status, expires time.Time) int64 {
		conn, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: key, Status: status})
		if err != nil {
			t.Fatalf("CreateConnection(%s) error = %v", key, err)
		}
		if err := s.SaveCredential(ctx, conn.ID, registry.Credential{AccessToken: "a", ExpiresAt: expires}); err != nil {
			t.Fatalf("SaveCredential(%s) error = %v", key, err)
		}
		return conn.ID
	}
	soon := mk("jira", connections.StatusActive, now.Add(2*time.Minute))
	mk("slack", connections.StatusActive, time.Time{})
	mk("figma", connections.StatusActive, now.Add(2*time.Hour))
	mk("notion", connections.StatusError, now.Add(time.Minute))

	got, err := s.ListExpiring(ctx, now.Add(10*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListExpiring() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != soon {
		t.Fatalf("ListExpiring() = %+v, want only %d", got, soon)
	}
}

func TestFailOnAndCalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	boom := errors.New("boom")
	s.FailOn("CreateConnection", boom)
	if _, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: "jira"}); !errors.Is(err, boom) {
		t.Fatalf("CreateConnection() error = %v, want %v", err, boom)
	}
	s.FailOn("CreateConnection", nil)
	if _, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: "jira"}); err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	if got := s.Calls("CreateConnection"); got != 2 {
		t.Fatalf("Calls() = %d, want 2", got)
	}
}

func TestFailAfter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	conn, err := s.CreateConnection(ctx, connections.NewConnection{UserID: 1, ConnectorKey: "jira"})
	if err != nil {
		t.Fatalf("CreateConnection() error = %v", err)
	}
	boom := errors.New("boom")
	s.FailAfter("SaveCredential", 1, boom)
	if err := s.SaveCredential(ctx, conn.ID, registry.Credential{AccessToken: "a"}); err != nil {
		t.Fatalf("first SaveCredential() error = %v", err)
	}
	if err := s.SaveCredential(ctx, conn.ID, registry.Credential{AccessToken: "b"}); !errors.Is(err, boom) {
		t.Fatalf("second SaveCredential() error = %v, want %v", err, boom)
	}
}
