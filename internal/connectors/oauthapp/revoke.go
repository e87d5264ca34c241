package oauthapp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

// RevokeToken posts an RFC 7009 revocation request for the credential's
// refresh token, or its access token when no refresh token exists.
func (a *App) RevokeToken(ctx context.Context, revokeURL string, cred registry.Credential) error {
	revokeURL = strings.TrimSpace(revokeURL)
	if revokeURL == "" {
		return errors.New("revocation url is required")
	}
	form := url.Values{}
	if cred.RefreshToken != "" {
		form.Set("token", cred.RefreshToken)
		form.Set("token_type_hint", "refresh_token")
	} else {
		form.Set("token", cred.AccessToken)
		form.Set("token_type_hint", "access_token")
	}
	form.Set("client_id", a.opts.ClientID)
	form.Set("client_secret", a.opts.ClientSecret)

	_, err := Do(ctx, a.HTTP, Request{Method: http.MethodPost, URL: revokeURL, Form: form})
	return err
}
