package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

var (
	ErrNotFound          = errors.New("connection not found")
	ErrConflict          = errors.New("connection already exists")
	ErrNoCredential      = errors.New("connection has no credential")
	ErrStaleTransition   = errors.New("connection changed concurrently")
	ErrInvalidTransition = errors.New("connection status transition not allowed")
	ErrReplayedCallback  = errors.New("authorization callback already processed")
	ErrConnectorMismatch = errors.New("connection belongs to a different connector")
	// ErrSuperseded means a newer authorization replaced the claimed one
	// before the callback finished.
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer authorization", ErrReplayedCallback)
)

// Store persists connections and their credentials.
type Store interface {
	// WithTx runs fn against a store bound to one transaction.
	WithTx(ctx context.Context, fn func(Store) error) error

	GetConnection(ctx context.Context, id int64) (Connection, error)
	FindConnection(ctx context.Context, userID int64, connectorKey string) (Connection, error)
	ListConnections(ctx context.Context, userID int64) ([]Connection, error)
	CreateConnection(ctx context.Context, in NewConnection) (Connection, error)
	UpdateConfig(ctx context.Context, id int64, configData map[string]any) (Connection, error)
	DeleteConnection(ctx context.Context, id int64) error

	// Transition returns ErrStaleTransition when the guard does not match.
	Transition(ctx context.Context, t Transition) (Connection, error)

	SaveCredential(ctx context.Context, connectionID int64, cred registry.Credential) error
	GetCredential(ctx context.Context, connectionID int64) (registry.Credential, error)
	DeleteCredential(ctx context.Context, connectionID int64) error

	// ListExpiring returns active connections whose credential expires before the cutoff.
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]Connection, error)
}
