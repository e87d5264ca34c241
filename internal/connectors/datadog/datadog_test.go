package datadog

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

func jsonResponse(req *http.Request, status int, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func newTestPlugin(t *testing.T, rt roundTripperFunc) *Plugin {
	t.Helper()
	p, err := NewPlugin("dd-client", "dd-secret", "datadoghq.eu", &http.Client{Transport: rt})
	if err != nil {
		t.Fatalf("NewPlugin() error = %v", err)
	}
	p.apiBase = func(string) string { return "https://dd.test" }
	return p
}

func TestConfigNormalization(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromData(map[string]any{"site": " https://app.DatadogHQ.eu/ ", "api_key": " k ", "app_key": "a"})
	if cfg.Site != "datadoghq.eu" || cfg.APIKey != "k" {
		t.Fatalf("ConfigFromData() = %+v", cfg)
	}
	if cfg.APIBaseURL() != "https://api.datadoghq.eu" {
		t.Fatalf("APIBaseURL() = %q", cfg.APIBaseURL())
	}
	if got := ConfigFromData(nil).Site; got != defaultSite {
		t.Fatalf("default site = %q", got)
	}
	if KnownSite("evil.example.com") || !KnownSite("us5.datadoghq.com") {
		t.Fatalf("KnownSite() mismatch")
	}
	if err := (Config{APIKey: "k"}).Validate(); err == nil {
		t.Fatalf("Validate() expected error without app key")
	}
}

func TestAuthorizationURLUsesSite(t *testing.T) {
	t.Parallel()

	p, err := NewPlugin("dd-client", "dd-secret", "datadoghq.eu", nil)
	if err != nil {
		t.Fatalf("NewPlugin() error = %v", err)
	}
	raw, err := p.AuthorizationURL(scopes, "https://app.test/oauth/callback", "st")
	if err != nil {
		t.Fatalf("AuthorizationURL() error = %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Host != "app.datadoghq.eu" || u.Path != "/oauth2/v1/authorize" {
		t.Fatalf("url = %s", raw)
	}
	if got := u.Query().Get("scope"); got != "metrics_read logs_read dashboards_read" {
		t.Fatalf("scope = %q", got)
	}
}

func TestTestConnectionWithKeys(t *testing.T) {
	t.Parallel()

	var calls int32
	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if req.Header.Get("DD-API-KEY") != "api" || req.Header.Get("DD-APPLICATION-KEY") != "app" {
			t.Errorf("missing key headers on %s", req.URL.Path)
		}
		switch req.URL.Path {
		case "/api/v1/validate":
			return jsonResponse(req, http.StatusOK, `{"valid":true}`), nil
		case "/api/v2/users":
			if req.URL.Query().Get("page[size]") != "1" {
				t.Errorf("page[size] = %q", req.URL.Query().Get("page[size]"))
			}
			return jsonResponse(req, http.StatusOK, `{"data":[{"id":"u1"}],"meta":{"page":{"total_count":12}}}`), nil
		default:
			return jsonResponse(req, http.StatusNotFound, `{"errors":["not found"]}`), nil
		}
	})

	h, err := p.TestConnection(context.Background(), registry.Credential{AccessToken: "at"}, map[string]any{
		"site": "datadoghq.com", "api_key": "api", "app_key": "app",
	})
	if err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
	if !h.Healthy || h.Details["users"] != int64(12) {
		t.Fatalf("TestConnection() = %+v", h)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestTestConnectionRejectsUnknownSite(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", req.URL)
		return jsonResponse(req, http.StatusOK, `{}`), nil
	})
	h, err := p.TestConnection(context.Background(), registry.Credential{}, map[string]any{
		"site": "attacker.example", "api_key": "api", "app_key": "app",
	})
	if err != nil || h.Healthy {
		t.Fatalf("TestConnection() = %+v, %v", h, err)
	}
}

func TestTestConnectionWithBearer(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "Bearer at" {
			return jsonResponse(req, http.StatusForbidden, `{"errors":["forbidden"]}`), nil
		}
		return jsonResponse(req, http.StatusOK, `{"valid":true}`), nil
	})
	h, err := p.TestConnection(context.Background(), registry.Credential{AccessToken: "at"}, nil)
	if err != nil || !h.Healthy {
		t.Fatalf("TestConnection(at) = %+v, %v", h, err)
	}
	h, err = p.TestConnection(context.Background(), registry.Credential{AccessToken: "nope"}, nil)
	if err != nil || h.Healthy {
		t.Fatalf("TestConnection(nope) = %+v, %v", h, err)
	}
}

func TestRevokePostsRefreshToken(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/oauth2/v1/revoke" || req.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", req.Method, req.URL.Path)
		}
		_ = req.ParseForm()
		if req.PostForm.Get("token") != "rt" || req.PostForm.Get("client_id") != "dd-client" {
			t.Errorf("form = %v", req.PostForm)
		}
		return jsonResponse(req, http.StatusOK, `{}`), nil
	})
	if err := p.Revoke(context.Background(), registry.Credential{AccessToken: "at", RefreshToken: "rt"}); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
}

func TestExchangeCodeRecordsSite(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "api.datadoghq.eu" {
			t.Errorf("token host = %s", req.URL.Host)
		}
		return jsonResponse(req, http.StatusOK, `{"access_token":"at","refresh_token":"rt","expires_in":3600}`), nil
	})
	cred, err := p.ExchangeCode(context.Background(), "code", "https://app.test/oauth/callback")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if cred.Extra["site"] != "datadoghq.eu" {
		t.Fatalf("Extra = %v", cred.Extra)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
