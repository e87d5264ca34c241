// Package datadog implements the Datadog connector: OAuth for the user grant,
// plus API/application key checks for the connection's configured keys.
package datadog

import (
	"context"
	"net/http"

	"github.com/open-sspm/connector-hub/internal/connectors/oauthapp"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"golang.org/x/oauth2"
)

// Plugin is the Datadog connector.
type Plugin struct {
	app     *oauthapp.App
	site    string
	apiBase func(site string) string
}

// NewPlugin builds the Datadog plugin for the OAuth application's site.
func NewPlugin(clientID, clientSecret, site string, httpClient *http.Client) (*Plugin, error) {
	def := Definition(site)
	app, err := oauthapp.New(oauthapp.Options{
		Key:          Key,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      def.AuthURL,
		TokenURL:     def.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
		HTTPClient:   httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &Plugin{app: app, site: normalizeSite(site), apiBase: APIBaseURL}, nil
}

func (p *Plugin) AuthorizationURL(scopes []string, redirectURI, state string) (string, error) {
	return p.app.AuthorizationURL(scopes, redirectURI, state)
}

func (p *Plugin) ExchangeCode(ctx context.Context, code, redirectURI string) (registry.Credential, error) {
	cred, err := p.app.Exchange(ctx, code, redirectURI)
	if err != nil {
		return registry.Credential{}, err
	}
	if cred.Extra == nil {
		cred.Extra = make(map[string]string)
	}
	cred.Extra["site"] = p.oauthSite()
	return cred, nil
}

func (p *Plugin) Refresh(ctx context.Context, cred registry.Credential) (registry.Credential, error) {
	return p.app.Refresh(ctx, cred)
}

func (p *Plugin) oauthSite() string {
	if p.site == "" {
		return defaultSite
	}
	return p.site
}

// TestConnection validates the configured key pair when present and the OAuth token otherwise.
func (p *Plugin) TestConnection(ctx context.Context, cred registry.Credential, configData map[string]any) (registry.Health, error) {
	cfg := ConfigFromData(configData)
	if cfg.HasKeys() {
		if !KnownSite(cfg.Site) {
			return registry.Health{Healthy: false, Reason: "unsupported Datadog site"}, nil
		}
		client, err := New(p.apiBase(cfg.Site), cfg.APIKey, cfg.AppKey)
		if err != nil {
			return registry.Health{}, err
		}
		client.HTTP = p.app.HTTP
		valid, err := client.ValidateKeys(ctx)
		if err != nil {
			return oauthapp.HealthFromError(err)
		}
		if !valid {
			return registry.Health{Healthy: false, Reason: "Datadog API key is not valid"}, nil
		}
		users, err := client.CountUsers(ctx)
		if err != nil {
			return oauthapp.HealthFromError(err)
		}
		return registry.Health{Healthy: true, Details: map[string]any{"site": cfg.Site, "users": users}}, nil
	}

	var payload struct {
		Valid bool `json:"valid"`
	}
	if err := oauthapp.GetJSON(ctx, p.app.HTTP, p.apiBase(p.oauthSite())+"/api/v1/validate", oauthapp.BearerHeader(cred), &payload); err != nil {
		return oauthapp.HealthFromError(err)
	}
	if !payload.Valid {
		return registry.Health{Healthy: false, Reason: "credentials rejected by provider"}, nil
	}
	return registry.Health{Healthy: true, Details: map[string]any{"site": p.oauthSite()}}, nil
}

// Revoke revokes the grant through Datadog's OAuth revocation endpoint.
func (p *Plugin) Revoke(ctx context.Context, cred registry.Credential) error {
	return p.app.RevokeToken(ctx, p.apiBase(p.oauthSite())+"/oauth2/v1/revoke", cred)
}
