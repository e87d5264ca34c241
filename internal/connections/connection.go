// Package connections owns the lifecycle of a user's connection to a connector.
package connections

import (
	"slices"
	"time"
)

// Status is the lifecycle state of a connection.
type Status string

const (
	StatusPendingAuth Status = "pending_auth"
	StatusActive      Status = "active"
	StatusRevoked     Status = "revoked"
	StatusError       Status = "error"
	StatusExpired     Status = "expired"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// transitions lists, for every status, the statuses it may move to.
var transitions = map[Status][]Status{
	StatusPendingAuth: {StatusPendingAuth, StatusActive, StatusRevoked, StatusError},
	StatusActive:      {StatusPendingAuth, StatusActive, StatusRevoked, StatusError, StatusExpired},
	StatusError:       {StatusPendingAuth, StatusActive, StatusRevoked, StatusError},
	StatusExpired:     {StatusPendingAuth, StatusRevoked},
	StatusRevoked:     {StatusPendingAuth, StatusRevoked},
}

// CanTransition reports whether a connection in from may move to to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// SourcesFor returns every status that may move to to, in a stable order.
func SourcesFor(to Status) []Status {
	out := make([]Status, 0, len(transitions))
	for _, from := range []Status{StatusPendingAuth, StatusActive, StatusError, StatusExpired, StatusRevoked} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Connection is a user's instance of a connector.
type Connection struct {
	ID              int64          `json:"id"`
	UserID          int64          `json:"user_id"`
	ConnectorID     int64          `json:"connector_id"`
	ConnectorKey    string         `json:"connector"`
	Status          Status         `json:"status"`
	StatusReason    string         `json:"status_reason,omitempty"`
	ConfigData      map[string]any `json:"config_data"`
	StateNonce      string         `json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	LastTestedAt    *time.Time     `json:"last_tested_at,omitempty"`
	LastRefreshedAt *time.Time     `json:"last_refreshed_at,omitempty"`
}

// NewConnection is the input for creating a connection.
type NewConnection struct {
	UserID       int64
	ConnectorKey string
	Status       Status
	ConfigData   map[string]any
	StateNonce   string
}

// Transition is a guarded status update. The store applies it only when the
// connection's current status is in From and, if ExpectNonce is set, its
// state nonce equals ExpectNonce.
type Transition struct {
	ConnectionID int64
	From         []Status
	To           Status
	Reason       string
	ExpectNonce  string
	// SetNonce replaces the state nonce when non-nil; an empty string clears it.
	SetNonce  *string
	Tested    bool
	Refreshed bool
	At        time.Time
}
