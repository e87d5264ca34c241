// Package figma implements the Figma connector.
package figma

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/open-sspm/connector-hub/internal/connectors/oauthapp"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"golang.org/x/oauth2"
)

const (
	Key = "figma"

	authURL    = "https://www.figma.com/oauth"
	defaultAPI = "https://api.figma.com/v1"
)

var scopes = []string{"file_read"}

const configSchema = `{
  "type": "object",
  "properties": {
    "team_id": {
      "type": "string",
      "title": "Team ID",
      "description": "Your Figma team ID (optional)"
    }
  },
  "required": []
}`

// Definition returns the static Figma connector definition.
func Definition() registry.Definition {
	return registry.Definition{
		Key:          Key,
		Name:         "Figma",
		AuthURL:      authURL,
		TokenURL:     defaultAPI + "/oauth/token",
		Scopes:       append([]string(nil), scopes...),
		ConfigSchema: json.RawMessage(configSchema),
	}
}

// Plugin is the Figma connector.
type Plugin struct {
	app     *oauthapp.App
	apiBase string
}

// New builds the Figma plugin.
func New(clientID, clientSecret string, httpClient *http.Client) (*Plugin, error) {
	return newPlugin(clientID, clientSecret, httpClient, defaultAPI)
}

func newPlugin(clientID, clientSecret string, httpClient *http.Client, apiBase string) (*Plugin, error) {
	apiBase = strings.TrimRight(apiBase, "/")
	app, err := oauthapp.New(oauthapp.Options{
		Key:            Key,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		AuthURL:        authURL,
		TokenURL:       apiBase + "/oauth/token",
		RefreshURL:     apiBase + "/oauth/refresh",
		ScopeSeparator: ",",
		AuthStyle:      oauth2.AuthStyleInParams,
		ExtraFields:    []string{"user_id"},
		HTTPClient:     httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &Plugin{app: app, apiBase: apiBase}, nil
}

func (p *Plugin) AuthorizationURL(scopes []string, redirectURI, state string) (string, error) {
	return p.app.AuthorizationURL(scopes, redirectURI, state)
}

func (p *Plugin) ExchangeCode(ctx context.Context, code, redirectURI string) (registry.Credential, error) {
	return p.app.Exchange(ctx, code, redirectURI)
}

func (p *Plugin) Refresh(ctx context.Context, cred registry.Credential) (registry.Credential, error) {
	return p.app.Refresh(ctx, cred)
}

type me struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// TestConnection reads the authorized user; team_id is not verifiable with file_read.
func (p *Plugin) TestConnection(ctx context.Context, cred registry.Credential, _ map[string]any) (registry.Health, error) {
	var user me
	if err := oauthapp.GetJSON(ctx, p.app.HTTP, p.apiBase+"/me", oauthapp.BearerHeader(cred), &user); err != nil {
		return oauthapp.HealthFromError(err)
	}
	if strings.TrimSpace(user.ID) == "" {
		return registry.Health{Healthy: false, Reason: "provider returned no user"}, nil
	}
	return registry.Health{Healthy: true, Details: map[string]any{"user_id": user.ID, "handle": user.Handle}}, nil
}
