package atlassian

import (
	"encoding/json"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

const (
	KeyJira       = "jira"
	KeyConfluence = "confluence"

	authURL  = "https://auth.atlassian.com/authorize"
	tokenURL = "https://auth.atlassian.com/oauth/token"
	// accessibleResourcesURL lists the cloud sites a token can reach.
	accessibleResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
)

// Product selects the Atlassian product a plugin instance serves.
type Product struct {
	Key    string
	Name   string
	Scopes []string
	schema string
}

var (
	Jira = Product{
		Key:    KeyJira,
		Name:   "Atlassian Jira",
		Scopes: []string{"read:jira-work", "read:jira-user"},
		schema: instanceSchema("Jira Instance URL", "Your Jira instance URL (e.g., https://company.atlassian.net)", "Your Jira account email"),
	}
	Confluence = Product{
		Key:    KeyConfluence,
		Name:   "Atlassian Confluence",
		Scopes: []string{"read:confluence-content.all", "read:confluence-space.summary"},
		schema: instanceSchema("Confluence Instance URL", "Your Confluence instance URL (e.g., https://company.atlassian.net/wiki)", "Your Confluence account email"),
	}
)

// Definition returns the static connector definition for the product.
func (p Product) Definition() registry.Definition {
	return registry.Definition{
		Key:            p.Key,
		Name:           p.Name,
		AuthURL:        authURL,
		TokenURL:       tokenURL,
		Scopes:         append([]string(nil), p.Scopes...),
		OptionalScopes: []string{"offline_access"},
		ConfigSchema:   json.RawMessage(p.schema),
	}
}

func instanceSchema(urlTitle, urlDescription, emailDescription string) string {
	return string(registry.MarshalJSON(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"instance_url": map[string]any{
				"type":        "string",
				"title":       urlTitle,
				"description": urlDescription,
				"format":      "uri",
			},
			"email": map[string]any{
				"type":        "string",
				"title":       "Email",
				"description": emailDescription,
				"format":      "email",
			},
		},
		"required": []string{"instance_url", "email"},
	}))
}
