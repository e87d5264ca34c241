package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Operation names a plugin capability.
type Operation string

const (
	OpAuthorize Operation = "authorize"
	OpExchange  Operation = "exchange"
	OpRefresh   Operation = "refresh"
	OpTest      Operation = "test"
	OpRevoke    Operation = "revoke"
)

var (
	// ErrExchange tags failures of the authorization code exchange.
	ErrExchange = errors.New("token exchange failed")
	// ErrRefresh tags failures of a credential refresh.
	ErrRefresh = errors.New("token refresh failed")
)

// ConnectorError wraps every error or panic that escapes a plugin.
type ConnectorError struct {
	Connector string
	Op        Operation
	Err       error
	Panicked  bool
}

func (e *ConnectorError) Error() string {
	if e == nil {
		return ""
	}
	msg := "connector " + e.Connector + " " + string(e.Op) + " failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectorError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	switch e.Op {
	case OpExchange:
		errs = append(errs, ErrExchange)
	case OpRefresh:
		errs = append(errs, ErrRefresh)
	}
	return errs
}

// Timeout reports whether the plugin call ended on a context deadline.
func (e *ConnectorError) Timeout() bool {
	return e != nil && errors.Is(e.Err, context.DeadlineExceeded)
}

func wrapPluginError(key string, op Operation, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConnectorError
	if errors.As(err, &ce) {
		return ce
	}
	return &ConnectorError{Connector: key, Op: op, Err: err}
}

func recoverPlugin(key string, op Operation, errp *error) {
	if r := recover(); r != nil {
		*errp = &ConnectorError{Connector: key, Op: op, Err: fmt.Errorf("plugin panic: %v", r), Panicked: true}
	}
}

// CallAuthorizationURL builds the provider redirect URL through the plugin.
func CallAuthorizationURL(key string, p Plugin, scopes []string, redirectURI, state string) (authURL string, err error) {
	defer recoverPlugin(key, OpAuthorize, &err)
	authURL, err = p.AuthorizationURL(scopes, redirectURI, state)
	if err != nil {
		return "", wrapPluginError(key, OpAuthorize, err)
	}
	if strings.TrimSpace(authURL) == "" {
		return "", &ConnectorError{Connector: key, Op: OpAuthorize, Err: errors.New("empty authorization url")}
	}
	return authURL, nil
}

// CallExchangeCode exchanges an authorization code through the plugin.
func CallExchangeCode(ctx context.Context, key string, p Plugin, code, redirectURI string) (cred Credential, err error) {
	defer recoverPlugin(key, OpExchange, &err)
	cred, err = p.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return Credential{}, wrapPluginError(key, OpExchange, err)
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		return Credential{}, &ConnectorError{Connector: key, Op: OpExchange, Err: errors.New("provider returned no access token")}
	}
	return cred, nil
}

// CallRefresh refreshes a credential through the plugin.
func CallRefresh(ctx context.Context, key string, p Plugin, cred Credential) (out Credential, err error) {
	defer recoverPlugin(key, OpRefresh, &err)
	out, err = p.Refresh(ctx, cred)
	if err != nil {
		return Credential{}, wrapPluginError(key, OpRefresh, err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return Credential{}, &ConnectorError{Connector: key, Op: OpRefresh, Err: errors.New("provider returned no access token")}
	}
	if out.RefreshToken == "" {
		out.RefreshToken = cred.RefreshToken
	}
	return out, nil
}

// CallTestConnection runs the plugin's connection test.
func CallTestConnection(ctx context.Context, key string, p Plugin, cred Credential, configData map[string]any) (h Health, err error) {
	defer recoverPlugin(key, OpTest, &err)
	h, err = p.TestConnection(ctx, cred, configData)
	if err != nil {
		return Health{}, wrapPluginError(key, OpTest, err)
	}
	return h, nil
}

// CallRevoke revokes the credential provider-side when the plugin supports it.
// Plugins without revocation report nil.
func CallRevoke(ctx context.Context, key string, p Plugin, cred Credential) (err error) {
	r, ok := p.(Revoker)
	if !ok {
		return nil
	}
	defer recoverPlugin(key, OpRevoke, &err)
	return wrapPluginError(key, OpRevoke, r.Revoke(ctx, cred))
}
