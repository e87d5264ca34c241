package datadog

import (
	"errors"
	"net/url"
	"strings"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

const defaultSite = "datadoghq.com"

// Config is the connection-level Datadog configuration stored in config_data.
type Config struct {
	APIKey string `json:"api_key"`
	AppKey string `json:"app_key"`
	Site   string `json:"site"`
}

// ConfigFromData reads a Config out of a connection's config_data.
func ConfigFromData(data map[string]any) Config {
	return Config{
		APIKey: registry.ConfigString(data, "api_key"),
		AppKey: registry.ConfigString(data, "app_key"),
		Site:   registry.ConfigString(data, "site"),
	}.Normalized()
}

// Normalized returns a copy of the config with trimmed whitespace and defaults applied.
func (c Config) Normalized() Config {
	out := c
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.AppKey = strings.TrimSpace(out.AppKey)
	out.Site = normalizeSite(out.Site)
	if out.Site == "" {
		out.Site = defaultSite
	}
	return out
}

// HasKeys reports whether both API and application keys are present.
func (c Config) HasKeys() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.AppKey) != ""
}

// APIBaseURL returns the Datadog API base URL for the configured site.
func (c Config) APIBaseURL() string {
	return APIBaseURL(c.Site)
}

// Validate returns an error if the config is invalid.
func (c Config) Validate() error {
	c = c.Normalized()
	if c.APIKey == "" {
		return errors.New("Datadog API key is required")
	}
	if c.AppKey == "" {
		return errors.New("Datadog app key is required")
	}
	return nil
}

var knownSites = map[string]struct{}{
	"datadoghq.com":     {},
	"us3.datadoghq.com": {},
	"us5.datadoghq.com": {},
	"datadoghq.eu":      {},
	"ap1.datadoghq.com": {},
	"ap2.datadoghq.com": {},
	"ddog-gov.com":      {},
}

// KnownSite reports whether site is a Datadog region. Connection tests only
// contact known sites so config_data cannot point requests at arbitrary hosts.
func KnownSite(site string) bool {
	_, ok := knownSites[normalizeSite(site)]
	return ok
}

// APIBaseURL returns the API host for a site.
func APIBaseURL(site string) string {
	site = normalizeSite(site)
	if site == "" {
		site = defaultSite
	}
	return "https://api." + site
}

// AppBaseURL returns the web application host for a site.
func AppBaseURL(site string) string {
	site = normalizeSite(site)
	if site == "" {
		site = defaultSite
	}
	return "https://app." + site
}

func normalizeSite(raw string) string {
	site := strings.ToLower(strings.TrimSpace(raw))
	if site == "" {
		return ""
	}
	if strings.Contains(site, "://") {
		if u, err := url.Parse(site); err == nil && u.Host != "" {
			site = u.Host
		}
	}
	site = strings.Trim(site, "/")
	site = strings.TrimPrefix(site, "api.")
	site = strings.TrimPrefix(site, "app.")
	return site
}
