// Package oauthapp wraps golang.org/x/oauth2 for the authorization-code
// connectors, covering the provider quirks they share.
package oauthapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"golang.org/x/oauth2"
)

const defaultTimeout = 30 * time.Second

// ErrNotRefreshable is returned when a credential carries no refresh token.
var ErrNotRefreshable = errors.New("credential has no refresh token")

// Options describes one OAuth application registered with a provider.
type Options struct {
	Key          string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string

	// RefreshURL overrides TokenURL for the refresh grant.
	RefreshURL string

	// ScopeSeparator joins scopes in the authorization URL. Defaults to a space.
	ScopeSeparator string

	// AuthParams are added to every authorization URL.
	AuthParams map[string]string

	AuthStyle oauth2.AuthStyle

	// ExtraFields lists token response fields copied into Credential.Extra.
	// Dotted names reach into nested objects ("team.id").
	ExtraFields []string

	// CheckToken rejects token responses that are well-formed but unsuccessful.
	CheckToken func(*oauth2.Token) error

	HTTPClient *http.Client
}

// App performs the authorization-code and refresh grants for one connector.
type App struct {
	opts Options
	HTTP *http.Client
}

// New validates the options and returns an App.
func New(opts Options) (*App, error) {
	opts.Key = registry.NormalizeKey(opts.Key)
	opts.ClientID = strings.TrimSpace(opts.ClientID)
	opts.ClientSecret = strings.TrimSpace(opts.ClientSecret)
	opts.AuthURL = strings.TrimSpace(opts.AuthURL)
	opts.TokenURL = strings.TrimSpace(opts.TokenURL)

	if opts.Key == "" {
		return nil, errors.New("oauth app key is required")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%s client id is required", opts.Key)
	}
	if opts.ClientSecret == "" {
		return nil, fmt.Errorf("%s client secret is required", opts.Key)
	}
	if opts.AuthURL == "" || opts.TokenURL == "" {
		return nil, fmt.Errorf("%s auth and token urls are required", opts.Key)
	}
	if opts.ScopeSeparator == "" {
		opts.ScopeSeparator = " "
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &App{opts: opts, HTTP: client}, nil
}

// Key returns the connector key this app serves.
func (a *App) Key() string {
	return a.opts.Key
}

// ClientID returns the OAuth client id.
func (a *App) ClientID() string {
	return a.opts.ClientID
}

func (a *App) config(redirectURI, tokenURL string) oauth2.Config {
	if tokenURL == "" {
		tokenURL = a.opts.TokenURL
	}
	return oauth2.Config{
		ClientID:     a.opts.ClientID,
		ClientSecret: a.opts.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.opts.AuthURL,
			TokenURL:  tokenURL,
			AuthStyle: a.opts.AuthStyle,
		},
	}
}

func (a *App) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.HTTP)
}

// AuthorizationURL builds the provider consent URL.
func (a *App) AuthorizationURL(scopes []string, redirectURI, state string) (string, error) {
	redirectURI = strings.TrimSpace(redirectURI)
	if redirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if strings.TrimSpace(state) == "" {
		return "", errors.New("state is required")
	}

	cfg := a.config(redirectURI, "")
	opts := make([]oauth2.AuthCodeOption, 0, len(a.opts.AuthParams)+1)
	if joined := strings.Join(cleanScopes(scopes), a.opts.ScopeSeparator); joined != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", joined))
	}
	for k, v := range a.opts.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// Exchange trades an authorization code for a credential.
func (a *App) Exchange(ctx context.Context, code, redirectURI string) (registry.Credential, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return registry.Credential{}, errors.New("authorization code is required")
	}
	cfg := a.config(redirectURI, "")
	tok, err := cfg.Exchange(a.clientContext(ctx), code)
	if err != nil {
		return registry.Credential{}, describeTokenError(err)
	}
	return a.credentialFromToken(tok, nil)
}

// Refresh performs the refresh-token grant.
func (a *App) Refresh(ctx context.Context, cred registry.Credential) (registry.Credential, error) {
	if !cred.Refreshable() {
		return registry.Credential{}, ErrNotRefreshable
	}
	cfg := a.config("", a.opts.RefreshURL)
	src := cfg.TokenSource(a.clientContext(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return registry.Credential{}, describeTokenError(err)
	}
	return a.credentialFromToken(tok, &cred)
}

func (a *App) credentialFromToken(tok *oauth2.Token, prev *registry.Credential) (registry.Credential, error) {
	if tok == nil {
		return registry.Credential{}, errors.New("provider returned no token")
	}
	if a.opts.CheckToken != nil {
		if err := a.opts.CheckToken(tok); err != nil {
			return registry.Credential{}, err
		}
	}

	cred := registry.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		ExpiresAt:    tok.Expiry,
	}
	if raw, ok := tok.Extra("scope").(string); ok {
		cred.Scopes = splitScopes(raw)
	}
	for _, field := range a.opts.ExtraFields {
		if v := extraValue(tok, field); v != "" {
			if cred.Extra == nil {
				cred.Extra = make(map[string]string)
			}
			cred.Extra[field] = v
		}
	}

	if prev != nil {
		if cred.RefreshToken == "" {
			cred.RefreshToken = prev.RefreshToken
		}
		if len(cred.Scopes) == 0 {
			cred.Scopes = prev.Scopes
		}
		for k, v := range prev.Extra {
			if _, ok := cred.Extra[k]; ok {
				continue
			}
			if cred.Extra == nil {
				cred.Extra = make(map[string]string)
			}
			cred.Extra[k] = v
		}
	}
	return cred, nil
}

func extraValue(tok *oauth2.Token, field string) string {
	parts := strings.Split(field, ".")
	v := tok.Extra(parts[0])
	for _, p := range parts[1:] {
		m, ok := v.(map[string]any)
		if !ok {
			return ""
		}
		v = m[p]
	}
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64, bool:
		return fmt.Sprint(val)
	default:
		return ""
	}
}

func cleanScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func splitScopes(raw string) []string {
	return cleanScopes(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	}))
}

// describeTokenError keeps the provider's error code and drops the raw body.
func describeTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		code := strings.TrimSpace(re.ErrorCode)
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if code == "" {
			code = "token_endpoint_error"
		}
		return &TokenError{StatusCode: status, Code: code, Description: strings.TrimSpace(re.ErrorDescription), err: err}
	}
	return err
}

// TokenError is a token endpoint rejection.
type TokenError struct {
	StatusCode  int
	Code        string
	Description string
	err         error
}

func (e *TokenError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Code)
	}
	return "token endpoint error: " + e.Code
}

func (e *TokenError) Unwrap() error {
	return e.err
}
