// Package slack implements the Slack connector on the OAuth v2 (bot token) flow.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/open-sspm/connector-hub/internal/connectors/oauthapp"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"golang.org/x/oauth2"
)

const (
	Key = "slack"

	authURL    = "https://slack.com/oauth/v2/authorize"
	defaultAPI = "https://slack.com/api"
)

var scopes = []string{"channels:read", "users:read", "chat:write"}

const configSchema = `{
  "type": "object",
  "properties": {
    "workspace_name": {
      "type": "string",
      "title": "Workspace Name",
      "description": "Your Slack workspace name (e.g., company-workspace)"
    }
  },
  "required": ["workspace_name"]
}`

// Definition returns the static Slack connector definition.
func Definition() registry.Definition {
	return registry.Definition{
		Key:          Key,
		Name:         "Slack",
		AuthURL:      authURL,
		TokenURL:     defaultAPI + "/oauth.v2.access",
		Scopes:       append([]string(nil), scopes...),
		ConfigSchema: json.RawMessage(configSchema),
	}
}

// Plugin is the Slack connector.
type Plugin struct {
	app     *oauthapp.App
	apiBase string
}

// New builds the Slack plugin.
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
		TokenURL:       apiBase + "/oauth.v2.access",
		ScopeSeparator: ",",
		AuthStyle:      oauth2.AuthStyleInParams,
		ExtraFields:    []string{"team.id", "team.name", "bot_user_id", "app_id"},
		CheckToken:     checkOK,
		HTTPClient:     httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &Plugin{app: app, apiBase: apiBase}, nil
}

// checkOK rejects responses where Slack reports ok=false alongside a token.
func checkOK(tok *oauth2.Token) error {
	raw := tok.Extra("ok")
	if raw == nil {
		return nil
	}
	if ok, _ := raw.(bool); ok {
		return nil
	}
	code, _ := tok.Extra("error").(string)
	if code == "" {
		code = "unknown_error"
	}
	return &apiError{Code: code}
}

type apiError struct {
	Code string
}

func (e *apiError) Error() string {
	return "slack api error: " + e.Code
}

func (p *Plugin) AuthorizationURL(scopes []string, redirectURI, state string) (string, error) {
	return p.app.AuthorizationURL(scopes, redirectURI, state)
}

func (p *Plugin) ExchangeCode(ctx context.Context, code, redirectURI string) (registry.Credential, error) {
	return p.app.Exchange(ctx, code, redirectURI)
}

// Refresh only succeeds for workspaces with token rotation enabled.
func (p *Plugin) Refresh(ctx context.Context, cred registry.Credential) (registry.Credential, error) {
	return p.app.Refresh(ctx, cred)
}

type envelope struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Team   string `json:"team"`
	TeamID string `json:"team_id"`
	User   string `json:"user"`
	URL    string `json:"url"`
}

// call posts to a Web API method; Slack reports failures in the body with HTTP 200.
func (p *Plugin) call(ctx context.Context, method string, cred registry.Credential, form url.Values) (envelope, error) {
	body, err := oauthapp.Do(ctx, p.app.HTTP, oauthapp.Request{
		Method: http.MethodPost,
		URL:    p.apiBase + "/" + method,
		Header: oauthapp.BearerHeader(cred),
		Form:   form,
	})
	if err != nil {
		return envelope{}, err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode slack %s response: %w", method, err)
	}
	if !env.OK {
		code := env.Error
		if code == "" {
			code = "unknown_error"
		}
		return env, &apiError{Code: code}
	}
	return env, nil
}

var authFailures = map[string]struct{}{
	"invalid_auth":     {},
	"not_authed":       {},
	"token_revoked":    {},
	"token_expired":    {},
	"account_inactive": {},
}

// TestConnection calls auth.test and compares the workspace with workspace_name when set.
func (p *Plugin) TestConnection(ctx context.Context, cred registry.Credential, configData map[string]any) (registry.Health, error) {
	env, err := p.call(ctx, "auth.test", cred, url.Values{})
	if err != nil {
		var ae *apiError
		if errors.As(err, &ae) {
			if _, ok := authFailures[ae.Code]; ok {
				return registry.Health{Healthy: false, Reason: "credentials rejected by provider"}, nil
			}
		}
		return oauthapp.HealthFromError(err)
	}

	details := map[string]any{"team": env.Team, "team_id": env.TeamID}
	if want := registry.ConfigString(configData, "workspace_name"); want != "" && !workspaceMatches(want, env) {
		return registry.Health{Healthy: false, Reason: "token belongs to a different workspace", Details: details}, nil
	}
	return registry.Health{Healthy: true, Details: details}, nil
}

func workspaceMatches(want string, env envelope) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if strings.EqualFold(env.Team, want) {
		return true
	}
	u, err := url.Parse(env.URL)
	if err != nil {
		return false
	}
	sub, _, _ := strings.Cut(strings.ToLower(u.Hostname()), ".")
	return sub == want
}

// Revoke calls auth.revoke; an already-invalid token counts as revoked.
func (p *Plugin) Revoke(ctx context.Context, cred registry.Credential) error {
	_, err := p.call(ctx, "auth.revoke", cred, url.Values{})
	var ae *apiError
	if errors.As(err, &ae) {
		if _, ok := authFailures[ae.Code]; ok {
			return nil
		}
	}
	return err
}
