package slack

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

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(req *http.Request, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func newTestPlugin(t *testing.T, rt roundTripperFunc) *Plugin {
	t.Helper()
	p, err := newPlugin("slack-client", "slack-secret", &http.Client{Transport: rt}, "https://slack.test/api")
	if err != nil {
		t.Fatalf("newPlugin() error = %v", err)
	}
	return p
}

func TestAuthorizationURLUsesCommaScopes(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, nil)
	raw, err := p.AuthorizationURL(scopes, "https://app.test/oauth/callback", "st")
	if err != nil {
		t.Fatalf("AuthorizationURL() error = %v", err)
	}
	u, _ := url.Parse(raw)
	if got := u.Query().Get("scope"); got != "channels:read,users:read,chat:write" {
		t.Fatalf("scope = %q", got)
	}
	if !strings.HasPrefix(raw, authURL+"?") {
		t.Fatalf("url = %q", raw)
	}
}

func TestExchangeCodeCopiesTeam(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/oauth.v2.access" {
			t.Errorf("path = %s", req.URL.Path)
		}
		return jsonResponse(req, `{"ok":true,"access_token":"xoxb-1","token_type":"bot","scope":"channels:read,users:read","bot_user_id":"U1","team":{"id":"T1","name":"Acme"}}`), nil
	})

	cred, err := p.ExchangeCode(context.Background(), "code", "https://app.test/oauth/callback")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if cred.AccessToken != "xoxb-1" || cred.Extra["team.id"] != "T1" || cred.Extra["bot_user_id"] != "U1" {
		t.Fatalf("ExchangeCode() = %+v", cred)
	}
	if len(cred.Scopes) != 2 {
		t.Fatalf("Scopes = %v", cred.Scopes)
	}
}

func TestExchangeCodeRejectsNotOK(t *testing.T) {
	t.Parallel()

	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(req, `{"ok":false,"error":"invalid_code","access_token":"ignored"}`), nil
	})
	if _, err := p.ExchangeCode(context.Background(), "code", "https://app.test/oauth/callback"); err == nil {
		t.Fatalf("ExchangeCode() expected error for ok=false")
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		config      map[string]any
		wantHealthy bool
		wantErr     bool
	}{
		{name: "ok", body: `{"ok":true,"team":"Acme","team_id":"T1","url":"https://acme.slack.com/"}`, config: map[string]any{"workspace_name": "acme"}, wantHealthy: true},
		{name: "ok without workspace", body: `{"ok":true,"team":"Acme","team_id":"T1"}`, wantHealthy: true},
		{name: "wrong workspace", body: `{"ok":true,"team":"Other","team_id":"T2","url":"https://other.slack.com/"}`, config: map[string]any{"workspace_name": "acme"}},
		{name: "revoked", body: `{"ok":false,"error":"token_revoked"}`},
		{name: "other api error", body: `{"ok":false,"error":"ratelimited"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
				if req.URL.Path != "/api/auth.test" || req.Method != http.MethodPost {
					t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
				}
				return jsonResponse(req, tt.body), nil
			})
			h, err := p.TestConnection(context.Background(), registry.Credential{AccessToken: "xoxb"}, tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("TestConnection() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("TestConnection() error = %v", err)
			}
			if h.Healthy != tt.wantHealthy {
				t.Fatalf("healthy = %v, want %v (%s)", h.Healthy, tt.wantHealthy, h.Reason)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	t.Parallel()

	var calls int32
	p := newTestPlugin(t, func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		if req.URL.Path != "/api/auth.revoke" {
			t.Errorf("path = %s", req.URL.Path)
		}
		return jsonResponse(req, `{"ok":false,"error":"invalid_auth"}`), nil
	})
	if err := p.Revoke(context.Background(), registry.Credential{AccessToken: "xoxb"}); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d", calls)
	}

	var _ registry.Revoker = p
}
