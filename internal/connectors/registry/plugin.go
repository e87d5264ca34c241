package registry

import (
	"context"
	"time"
)

// Credential is the token material a plugin obtains from a provider.
// ExpiresAt is zero when the provider issues non-expiring tokens.
type Credential struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    time.Time

	// Extra carries provider-specific identifiers (workspace id, bot id, site).
	Extra map[string]string
}

// Expired reports whether the credential has an expiry at or before now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Refreshable reports whether a refresh token is available.
func (c Credential) Refreshable() bool {
	return c.RefreshToken != ""
}

// Health is the outcome of a connection test.
type Health struct {
	Healthy bool
	Reason  string
	Details map[string]any
}

// Plugin is the capability contract every connector implements.
type Plugin interface {
	AuthorizationURL(scopes []string, redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (Credential, error)
	Refresh(ctx context.Context, cred Credential) (Credential, error)
	TestConnection(ctx context.Context, cred Credential, configData map[string]any) (Health, error)
}

// Revoker is implemented by plugins whose provider exposes token revocation.
type Revoker interface {
	Revoke(ctx context.Context, cred Credential) error
}
