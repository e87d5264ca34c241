package registry

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrConnectorExists = errors.New("connector already exists")

// StoredConnector is one row of the persisted connector catalogue. Built-in
// connectors are written there at startup; administrators may add others.
type StoredConnector struct {
	ID             int64           `json:"id"`
	Key            string          `json:"key"`
	Name           string          `json:"name"`
	AuthURL        string          `json:"auth_url,omitempty"`
	TokenURL       string          `json:"token_url,omitempty"`
	Scopes         []string        `json:"scopes"`
	OptionalScopes []string        `json:"optional_scopes"`
	ConfigSchema   json.RawMessage `json:"config_schema"`
	Enabled        bool            `json:"enabled"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewStoredConnector is the input for adding a catalogue row.
type NewStoredConnector struct {
	Key          string
	Name         string
	ConfigSchema json.RawMessage
}

// ConnectorUpdate changes a catalogue row. Unset fields are left alone.
type ConnectorUpdate struct {
	Name         *string
	ConfigSchema json.RawMessage
}
