package oauthapp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"golang.org/x/oauth2"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(req *http.Request, status int, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func newTestApp(t *testing.T, rt roundTripperFunc, mutate func(*Options)) *App {
	t.Helper()
	opts := Options{
		Key:          "slack",
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		AuthURL:      "https://provider.test/authorize",
		TokenURL:     "https://provider.test/token",
		AuthStyle:    oauth2.AuthStyleInParams,
		HTTPClient:   &http.Client{Transport: rt},
	}
	if mutate != nil {
		mutate(&opts)
	}
	app, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return app
}

func TestNewRequiresClientCredentials(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Key: "jira", AuthURL: "a", TokenURL: "b"}); err == nil {
		t.Fatalf("New() expected error without client id")
	}
	if _, err := New(Options{Key: "jira", ClientID: "id", AuthURL: "a", TokenURL: "b"}); err == nil {
		t.Fatalf("New() expected error without client secret")
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, nil, func(o *Options) {
		o.ScopeSeparator = ","
		o.AuthParams = map[string]string{"owner": "user"}
	})

	raw, err := app.AuthorizationURL([]string{"channels:read", "users:read", "channels:read", " "}, "https://app.test/oauth/callback", "state-token")
	if err != nil {
		t.Fatalf("AuthorizationURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":     "client-123",
		"redirect_uri":  "https://app.test/oauth/callback",
		"state":         "state-token",
		"scope":         "channels:read,users:read",
		"response_type": "code",
		"owner":         "user",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Fatalf("query %s = %q, want %q", k, got, want)
		}
	}

	if _, err := app.AuthorizationURL(nil, "", "state"); err == nil {
		t.Fatalf("AuthorizationURL() expected error without redirect uri")
	}
}

func TestExchangeMapsTokenResponse(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "https://provider.test/token" {
			t.Errorf("unexpected token url %s", req.URL)
		}
		if err := req.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if req.PostForm.Get("code") != "dev-code" || req.PostForm.Get("client_id") != "client-123" {
			t.Errorf("unexpected form %v", req.PostForm)
		}
		return jsonResponse(req, http.StatusOK, `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600,"scope":"a b,c","team":{"id":"T1"}}`), nil
	}, func(o *Options) {
		o.ExtraFields = []string{"team.id", "missing"}
	})

	cred, err := app.Exchange(context.Background(), "dev-code", "https://app.test/oauth/callback")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if cred.AccessToken != "at-1" || cred.RefreshToken != "rt-1" || cred.TokenType != "Bearer" {
		t.Fatalf("Exchange() credential = %+v", cred)
	}
	if cred.ExpiresAt.IsZero() {
		t.Fatalf("Exchange() expected expiry")
	}
	if strings.Join(cred.Scopes, "|") != "a|b|c" {
		t.Fatalf("Scopes = %v", cred.Scopes)
	}
	if cred.Extra["team.id"] != "T1" {
		t.Fatalf("Extra = %v", cred.Extra)
	}
	if _, ok := cred.Extra["missing"]; ok {
		t.Fatalf("Extra should not contain missing field")
	}
}

func TestExchangeReturnsTokenErrorWithoutBody(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"secret detail"}`), nil
	}, nil)

	_, err := app.Exchange(context.Background(), "bad", "https://app.test/oauth/callback")
	var te *TokenError
	if !errors.As(err, &te) {
		t.Fatalf("Exchange() error = %T %v, want *TokenError", err, err)
	}
	if te.Code != "invalid_grant" || te.StatusCode != http.StatusBadRequest {
		t.Fatalf("TokenError = %+v", te)
	}
	if strings.Contains(te.Error(), "secret detail") {
		t.Fatalf("TokenError message leaks description: %s", te.Error())
	}
}

func TestExchangeCheckTokenRejects(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusOK, `{"access_token":"at","ok":false}`), nil
	}, func(o *Options) {
		o.CheckToken = func(tok *oauth2.Token) error {
			if ok, _ := tok.Extra("ok").(bool); !ok {
				return errors.New("not ok")
			}
			return nil
		}
	})

	if _, err := app.Exchange(context.Background(), "code", "https://app.test/cb"); err == nil {
		t.Fatalf("Exchange() expected CheckToken error")
	}
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	var gotURL atomic.Value
	app := newTestApp(t, func(req *http.Request) (*http.Response, error) {
		gotURL.Store(req.URL.String())
		_ = req.ParseForm()
		if req.PostForm.Get("grant_type") != "refresh_token" || req.PostForm.Get("refresh_token") != "rt-old" {
			t.Errorf("unexpected refresh form %v", req.PostForm)
		}
		return jsonResponse(req, http.StatusOK, `{"access_token":"at-new","token_type":"Bearer","expires_in":60}`), nil
	}, func(o *Options) {
		o.RefreshURL = "https://provider.test/refresh"
	})

	prev := registry.Credential{AccessToken: "at-old", RefreshToken: "rt-old", Scopes: []string{"read"}, Extra: map[string]string{"site": "x"}}
	cred, err := app.Refresh(context.Background(), prev)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := gotURL.Load(); got != "https://provider.test/refresh" {
		t.Fatalf("refresh url = %v", got)
	}
	if cred.AccessToken != "at-new" || cred.RefreshToken != "rt-old" {
		t.Fatalf("Refresh() credential = %+v", cred)
	}
	if len(cred.Scopes) != 1 || cred.Extra["site"] != "x" {
		t.Fatalf("Refresh() did not carry previous scopes/extra: %+v", cred)
	}

	if _, err := app.Refresh(context.Background(), registry.Credential{AccessToken: "x"}); !errors.Is(err, ErrNotRefreshable) {
		t.Fatalf("Refresh() without refresh token error = %v", err)
	}
}

func TestDoRetriesOn429(t *testing.T) {
	t.Parallel()

	var calls int32
	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			resp := jsonResponse(req, http.StatusTooManyRequests, `{"message":"slow down"}`)
			resp.Header.Set("Retry-After", "0")
			return resp, nil
		}
		return jsonResponse(req, http.StatusOK, `{"id":"u1"}`), nil
	})}

	var out struct {
		ID string `json:"id"`
	}
	if err := GetJSON(context.Background(), client, "https://api.test/me", nil, &out); err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.ID != "u1" || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("GetJSON() out = %+v calls = %d", out, calls)
	}
}

func TestHealthFromError(t *testing.T) {
	t.Parallel()

	client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, http.StatusUnauthorized, `{"message":"invalid token"}`), nil
	})}
	err := GetJSON(context.Background(), client, "https://api.test/me?token=abc", nil, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if strings.Contains(apiErr.Error(), "token=abc") {
		t.Fatalf("APIError leaks query string: %s", apiErr.Error())
	}

	h, herr := HealthFromError(err)
	if herr != nil || h.Healthy {
		t.Fatalf("HealthFromError() = %+v, %v", h, herr)
	}

	other := errors.New("dial tcp: refused")
	if _, herr := HealthFromError(other); !errors.Is(herr, other) {
		t.Fatalf("HealthFromError() should pass through %v, got %v", other, herr)
	}
}
