package registry

import "encoding/json"

// Availability is the catalogue view of a connector.
type Availability struct {
	Key           string          `json:"key"`
	Name          string          `json:"name"`
	Scopes        []string        `json:"scopes"`
	SupportsOAuth bool            `json:"supports_oauth"`
	Configured    bool            `json:"configured"`
	Enabled       bool            `json:"enabled"`
	Requirements  []string        `json:"requirements"`
	ConfigSchema  json.RawMessage `json:"config_schema"`
}

func newAvailability(def Definition) Availability {
	def = def.clone()
	scopes := def.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	reqs := def.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	return Availability{
		Key:           def.Key,
		Name:          def.Name,
		Scopes:        scopes,
		SupportsOAuth: def.SupportsOAuth(),
		Configured:    def.Configured,
		Enabled:       def.Enabled,
		Requirements:  reqs,
		ConfigSchema:  def.Schema(),
	}
}

// Usable reports whether the connector can serve OAuth flows.
func (a Availability) Usable() bool {
	return a.SupportsOAuth && a.Configured && a.Enabled
}

// StatusLabel returns the human-readable status label.
func (a Availability) StatusLabel() string {
	if !a.SupportsOAuth {
		return "Unsupported"
	}
	if !a.Configured {
		return "Not configured"
	}
	if !a.Enabled {
		return "Disabled"
	}
	return "Enabled"
}
