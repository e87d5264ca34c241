package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultFrontendBaseURL = "http://localhost:3000"
	defaultStateTTL        = 10 * time.Minute
	defaultExchangeTimeout = 30 * time.Second
	defaultPluginTimeout   = 15 * time.Second
	defaultDatadogSite     = "datadoghq.com"

	defaultRefreshInterval = 5 * time.Minute
	defaultRefreshWindow   = 10 * time.Minute
	defaultRefreshWorkers  = 4

	defaultRateLimitPerSecond = 5.0
	defaultRateLimitBurst     = 20

	SealerLocal = "local"
	SealerVault = "vault"

	clientIDSuffix     = "_CLIENT_ID"
	clientSecretSuffix = "_CLIENT_SECRET"
)

// OAuthClient holds the provider credentials of one connector.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the client credential are set.
func (c OAuthClient) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type VaultConfig struct {
	Addr             string
	Token            string
	Namespace        string
	AuthType         string
	AppRoleMountPath string
	AppRoleRoleID    string
	AppRoleSecretID  string
	TLSSkipVerify    bool
	TLSCACertPEM     string
	TransitMount     string
	TransitKey       string
}

type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	MetricsAddr     string
	FrontendBaseURL string
	BackendBaseURL  string

	StateSigningSecret string
	StateTTL           time.Duration
	JWTSecret          string

	OAuthExchangeTimeout time.Duration
	PluginTimeout        time.Duration
	DatadogSite          string

	// ConnectorsEnabled is nil when every connector with a client id is enabled.
	ConnectorsEnabled []string
	OAuthClients      map[string]OAuthClient

	RefreshInterval time.Duration
	RefreshWindow   time.Duration
	RefreshWorkers  int

	RateLimitPerSecond float64
	RateLimitBurst     int
	// TrustProxyHeaders makes X-Forwarded-For from private and loopback peers
	// count as the client address.
	TrustProxyHeaders bool

	CredentialSealer  string
	CredentialSealKey string
	Vault             VaultConfig
}

type LoadOptions struct {
	RequireDatabaseURL bool
}

func Load() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: true})
}

func LoadOptionalDB() (Config, error) {
	return LoadWithOptions(LoadOptions{RequireDatabaseURL: false})
}

func LoadWithOptions(opts LoadOptions) (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, err
		}
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	cfg := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		HTTPAddr:             getenvDefault("HTTP_ADDR", defaultHTTPAddr),
		MetricsAddr:          getenvDefault("METRICS_ADDR", defaultMetricsAddr),
		FrontendBaseURL:      strings.TrimRight(getenvDefault("FRONTEND_BASE_URL", defaultFrontendBaseURL), "/"),
		BackendBaseURL:       strings.TrimRight(strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")), "/"),
		StateSigningSecret:   getenvDefault("STATE_SIGNING_SECRET", jwtSecret),
		StateTTL:             getenvDurationDefault("STATE_TTL", defaultStateTTL),
		JWTSecret:            jwtSecret,
		OAuthExchangeTimeout: getenvDurationDefault("OAUTH_EXCHANGE_TIMEOUT", defaultExchangeTimeout),
		PluginTimeout:        getenvDurationDefault("PLUGIN_TIMEOUT", defaultPluginTimeout),
		DatadogSite:          strings.ToLower(strings.TrimSpace(getenvDefault("DATADOG_SITE", defaultDatadogSite))),
		ConnectorsEnabled:    parseList(os.Getenv("CONNECTORS_ENABLED")),
		OAuthClients:         loadOAuthClients(os.Environ()),
		RefreshInterval:      getenvDurationDefault("REFRESH_INTERVAL", defaultRefreshInterval),
		RefreshWindow:        getenvDurationDefault("REFRESH_WINDOW", defaultRefreshWindow),
		RefreshWorkers:       getenvIntDefault("REFRESH_WORKERS", defaultRefreshWorkers),
		RateLimitPerSecond:   getenvFloatDefault("RATE_LIMIT_PER_SECOND", defaultRateLimitPerSecond),
		RateLimitBurst:       getenvIntDefault("RATE_LIMIT_BURST", defaultRateLimitBurst),
		TrustProxyHeaders:    getenvBoolDefault("TRUST_PROXY_HEADERS", false),
		CredentialSealer:     strings.ToLower(strings.TrimSpace(getenvDefault("CREDENTIAL_SEALER", SealerLocal))),
		CredentialSealKey:    strings.TrimSpace(os.Getenv("CREDENTIAL_SEAL_KEY")),
		Vault: VaultConfig{
			Addr:             strings.TrimSpace(os.Getenv("VAULT_ADDR")),
			Token:            strings.TrimSpace(os.Getenv("VAULT_TOKEN")),
			Namespace:        strings.TrimSpace(os.Getenv("VAULT_NAMESPACE")),
			AuthType:         strings.ToLower(strings.TrimSpace(getenvDefault("VAULT_AUTH_TYPE", "token"))),
			AppRoleMountPath: strings.TrimSpace(os.Getenv("VAULT_APPROLE_MOUNT")),
			AppRoleRoleID:    strings.TrimSpace(os.Getenv("VAULT_APPROLE_ROLE_ID")),
			AppRoleSecretID:  strings.TrimSpace(os.Getenv("VAULT_APPROLE_SECRET_ID")),
			TLSSkipVerify:    getenvBoolDefault("VAULT_TLS_SKIP_VERIFY", false),
			TLSCACertPEM:     os.Getenv("VAULT_CACERT_PEM"),
			TransitMount:     getenvDefault("VAULT_TRANSIT_MOUNT", "transit"),
			TransitKey:       getenvDefault("VAULT_TRANSIT_KEY", "connector-hub"),
		},
	}

	if opts.RequireDatabaseURL && cfg.DatabaseURL == "" {
		return cfg, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

// OAuthClient returns the client credentials configured for a connector key.
func (c Config) OAuthClient(key string) OAuthClient {
	return c.OAuthClients[normalizeKey(key)]
}

// ConnectorEnabled reports whether key may serve OAuth flows. Without an
// explicit CONNECTORS_ENABLED list, any connector with a client id is enabled.
func (c Config) ConnectorEnabled(key string) bool {
	key = normalizeKey(key)
	if c.ConnectorsEnabled == nil {
		return c.OAuthClient(key).ClientID != ""
	}
	return slices.Contains(c.ConnectorsEnabled, key)
}

// Validate reports every setting that would prevent the server from running.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.StateSigningSecret) == "" {
		errs = append(errs, errors.New("STATE_SIGNING_SECRET (or JWT_SECRET) is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if u, err := url.Parse(c.FrontendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("FRONTEND_BASE_URL %q must be an absolute URL", c.FrontendBaseURL))
	}
	if c.StateTTL <= 0 {
		errs = append(errs, errors.New("STATE_TTL must be positive"))
	}

	for _, key := range c.ConnectorsEnabled {
		if !c.OAuthClient(key).Configured() {
			name := strings.ToUpper(key)
			errs = append(errs, fmt.Errorf("connector %s is enabled but %s%s or %s%s is missing", key, name, clientIDSuffix, name, clientSecretSuffix))
		}
	}

	switch c.CredentialSealer {
	case SealerLocal:
		if c.CredentialSealKey == "" {
			errs = append(errs, errors.New("CREDENTIAL_SEAL_KEY is required when CREDENTIAL_SEALER=local"))
		}
	case SealerVault:
		if c.Vault.Addr == "" {
			errs = append(errs, errors.New("VAULT_ADDR is required when CREDENTIAL_SEALER=vault"))
		}
		switch c.Vault.AuthType {
		case "token":
			if c.Vault.Token == "" {
				errs = append(errs, errors.New("VAULT_TOKEN is required for vault token auth"))
			}
		case "approle":
			if c.Vault.AppRoleRoleID == "" || c.Vault.AppRoleSecretID == "" {
				errs = append(errs, errors.New("VAULT_APPROLE_ROLE_ID and VAULT_APPROLE_SECRET_ID are required for vault approle auth"))
			}
		default:
			errs = append(errs, fmt.Errorf("VAULT_AUTH_TYPE %q must be token or approle", c.Vault.AuthType))
		}
	default:
		errs = append(errs, fmt.Errorf("CREDENTIAL_SEALER %q must be local or vault", c.CredentialSealer))
	}

	return errors.Join(errs...)
}

func loadOAuthClients(environ []string) map[string]OAuthClient {
	out := map[string]OAuthClient{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch {
		case strings.HasSuffix(name, clientIDSuffix):
			key := normalizeKey(strings.TrimSuffix(name, clientIDSuffix))
			c := out[key]
			c.ClientID = value
			out[key] = c
		case strings.HasSuffix(name, clientSecretSuffix):
			key := normalizeKey(strings.TrimSuffix(name, clientSecretSuffix))
			c := out[key]
			c.ClientSecret = value
			out[key] = c
		}
	}
	return out
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := []string{}
	for part := range strings.SplitSeq(raw, ",") {
		part = normalizeKey(part)
		if part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func getenvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func getenvFloatDefault(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func getenvBoolDefault(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch v {
	case "1":
		return true
	case "0":
		return false
	default:
		return def
	}
}
