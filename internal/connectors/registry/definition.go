package registry

import (
	"encoding/json"
	"slices"
	"strings"
)

// Definition is the static description of a connector.
type Definition struct {
	Key            string
	Name           string
	AuthURL        string
	TokenURL       string
	Scopes         []string
	OptionalScopes []string

	// ConfigSchema is a JSON Schema document for the connection's config_data.
	ConfigSchema json.RawMessage

	// Requirements lists the environment variables the connector needs to be usable.
	Requirements []string

	// Configured is true when client credentials are present.
	Configured bool
	// Enabled is true when the connector is allowed to serve OAuth flows.
	Enabled bool
}

// SupportsOAuth reports whether the definition carries both OAuth endpoints.
func (d Definition) SupportsOAuth() bool {
	return strings.TrimSpace(d.AuthURL) != "" && strings.TrimSpace(d.TokenURL) != ""
}

// Usable reports whether the connector may serve authorization flows.
func (d Definition) Usable() bool {
	return d.Configured && d.Enabled && d.SupportsOAuth()
}

// Schema returns the config schema, defaulting to an empty object schema.
func (d Definition) Schema() json.RawMessage {
	if len(d.ConfigSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return d.ConfigSchema
}

func (d Definition) clone() Definition {
	d.Scopes = slices.Clone(d.Scopes)
	d.OptionalScopes = slices.Clone(d.OptionalScopes)
	d.Requirements = slices.Clone(d.Requirements)
	d.ConfigSchema = slices.Clone(d.ConfigSchema)
	return d
}
