package datadog

import (
	"encoding/json"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

const Key = "datadog"

var scopes = []string{"metrics_read", "logs_read", "dashboards_read"}

const configSchema = `{
  "type": "object",
  "properties": {
    "site": {
      "type": "string",
      "title": "Datadog Site",
      "description": "Your Datadog site (e.g., datadoghq.com, datadoghq.eu)",
      "default": "datadoghq.com"
    },
    "api_key": {
      "type": "string",
      "title": "API Key",
      "description": "Your Datadog API key"
    },
    "app_key": {
      "type": "string",
      "title": "Application Key",
      "description": "Your Datadog application key"
    }
  },
  "required": ["site", "api_key", "app_key"]
}`

// Definition returns the Datadog connector definition for an OAuth site.
func Definition(site string) registry.Definition {
	return registry.Definition{
		Key:          Key,
		Name:         "Datadog",
		AuthURL:      AppBaseURL(site) + "/oauth2/v1/authorize",
		TokenURL:     APIBaseURL(site) + "/oauth2/v1/token",
		Scopes:       append([]string(nil), scopes...),
		ConfigSchema: json.RawMessage(configSchema),
	}
}
