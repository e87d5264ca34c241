// Package atlassian implements the Jira and Confluence connectors on
// Atlassian's OAuth 2.0 (3LO) authorization-code flow.
package atlassian

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/open-sspm/connector-hub/internal/connectors/oauthapp"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"golang.org/x/oauth2"
)

// Plugin serves one Atlassian product.
type Plugin struct {
	product      Product
	app          *oauthapp.App
	resourcesURL string
}

// New builds the plugin for product with the given OAuth client.
func New(product Product, clientID, clientSecret string, httpClient *http.Client) (*Plugin, error) {
	app, err := oauthapp.New(oauthapp.Options{
		Key:          product.Key,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      authURL,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
		AuthParams: map[string]string{
			"audience": "api.atlassian.com",
			"prompt":   "consent",
		},
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, err
	}
	return &Plugin{product: product, app: app, resourcesURL: accessibleResourcesURL}, nil
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

type accessibleResource struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

// TestConnection checks that the token reaches at least one cloud site and,
// when instance_url is configured, that site is among them.
func (p *Plugin) TestConnection(ctx context.Context, cred registry.Credential, configData map[string]any) (registry.Health, error) {
	var resources []accessibleResource
	if err := oauthapp.GetJSON(ctx, p.app.HTTP, p.resourcesURL, oauthapp.BearerHeader(cred), &resources); err != nil {
		return oauthapp.HealthFromError(err)
	}
	if len(resources) == 0 {
		return registry.Health{Healthy: false, Reason: "token has no accessible Atlassian sites"}, nil
	}

	want := siteHost(registry.ConfigString(configData, "instance_url"))
	if want == "" {
		return registry.Health{
			Healthy: true,
			Details: map[string]any{"cloud_id": resources[0].ID, "site": resources[0].URL},
		}, nil
	}
	for _, r := range resources {
		if siteHost(r.URL) == want {
			return registry.Health{
				Healthy: true,
				Details: map[string]any{"cloud_id": r.ID, "site": r.URL},
			}, nil
		}
	}
	return registry.Health{Healthy: false, Reason: "configured instance_url is not accessible with this token"}, nil
}

func siteHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
