// Package notion implements the Notion public-integration connector.
package notion

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
	Key = "notion"

	defaultAPI = "https://api.notion.com/v1"
	// apiVersion pins the Notion-Version header on API calls.
	apiVersion = "2022-06-28"
)

var scopes = []string{"read", "write"}

const configSchema = `{
  "type": "object",
  "properties": {
    "workspace_name": {
      "type": "string",
      "title": "Workspace Name",
      "description": "Your Notion workspace name"
    }
  },
  "required": ["workspace_name"]
}`

// Definition returns the static Notion connector definition.
func Definition() registry.Definition {
	return registry.Definition{
		Key:          Key,
		Name:         "Notion",
		AuthURL:      defaultAPI + "/oauth/authorize",
		TokenURL:     defaultAPI + "/oauth/token",
		Scopes:       append([]string(nil), scopes...),
		ConfigSchema: json.RawMessage(configSchema),
	}
}

// Plugin is the Notion connector.
type Plugin struct {
	app     *oauthapp.App
	apiBase string
}

// New builds the Notion plugin.
func New(clientID, clientSecret string, httpClient *http.Client) (*Plugin, error) {
	return newPlugin(clientID, clientSecret, httpClient, defaultAPI)
}

func newPlugin(clientID, clientSecret string, httpClient *http.Client, apiBase string) (*Plugin, error) {
	apiBase = strings.TrimRight(apiBase, "/")
	app, err := oauthapp.New(oauthapp.Options{
		Key:          Key,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      apiBase + "/oauth/authorize",
		TokenURL:     apiBase + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
		AuthParams:   map[string]string{"owner": "user"},
		ExtraFields:  []string{"workspace_id", "workspace_name", "bot_id"},
		HTTPClient:   httpClient,
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

// Refresh fails with oauthapp.ErrNotRefreshable for integrations issued without refresh tokens.
func (p *Plugin) Refresh(ctx context.Context, cred registry.Credential) (registry.Credential, error) {
	return p.app.Refresh(ctx, cred)
}

type botUser struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	Bot  struct {
		WorkspaceName string `json:"workspace_name"`
	} `json:"bot"`
}

// TestConnection reads the integration's bot user.
func (p *Plugin) TestConnection(ctx context.Context, cred registry.Credential, configData map[string]any) (registry.Health, error) {
	header := oauthapp.BearerHeader(cred)
	header.Set("Notion-Version", apiVersion)

	var me botUser
	if err := oauthapp.GetJSON(ctx, p.app.HTTP, p.apiBase+"/users/me", header, &me); err != nil {
		return oauthapp.HealthFromError(err)
	}

	workspace := strings.TrimSpace(me.Bot.WorkspaceName)
	if workspace == "" {
		workspace = cred.Extra["workspace_name"]
	}
	details := map[string]any{"bot_id": me.ID, "workspace": workspace}
	if want := registry.ConfigString(configData, "workspace_name"); want != "" && workspace != "" && !strings.EqualFold(want, workspace) {
		return registry.Health{Healthy: false, Reason: "token belongs to a different workspace", Details: details}, nil
	}
	return registry.Health{Healthy: true, Details: details}, nil
}
