package atlassian

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/open-sspm/connector-hub/internal/connectors/registry"
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
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func TestAuthorizationURLCarriesAtlassianParams(t *testing.T) {
	t.Parallel()

	p, err := New(Jira, "jira-client", "jira-secret", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	raw, err := p.AuthorizationURL(Jira.Scopes, "https://app.test/oauth/callback", "st")
	if err != nil {
		t.Fatalf("AuthorizationURL() error = %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Host != "auth.atlassian.com" {
		t.Fatalf("host = %q", u.Host)
	}
	q := u.Query()
	if q.Get("audience") != "api.atlassian.com" || q.Get("prompt") != "consent" {
		t.Fatalf("missing atlassian params: %v", q)
	}
	if q.Get("scope") != "read:jira-work read:jira-user" {
		t.Fatalf("scope = %q", q.Get("scope"))
	}
	if q.Get("client_id") != "jira-client" || q.Get("redirect_uri") != "https://app.test/oauth/callback" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	for _, product := range []Product{Jira, Confluence} {
		def := product.Definition()
		if def.Key != product.Key || !def.SupportsOAuth() || len(def.Scopes) == 0 {
			t.Fatalf("Definition(%s) = %+v", product.Key, def)
		}
		if !strings.Contains(string(def.ConfigSchema), `"instance_url"`) {
			t.Fatalf("Definition(%s) schema missing instance_url: %s", product.Key, def.ConfigSchema)
		}
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		config      map[string]any
		wantHealthy bool
		wantErr     bool
	}{
		{
			name:        "matching site",
			status:      http.StatusOK,
			body:        `[{"id":"c1","url":"https://acme.atlassian.net","name":"acme"}]`,
			config:      map[string]any{"instance_url": "https://ACME.atlassian.net/"},
			wantHealthy: true,
		},
		{
			name:        "no configured site",
			status:      http.StatusOK,
			body:        `[{"id":"c1","url":"https://acme.atlassian.net","name":"acme"}]`,
			wantHealthy: true,
		},
		{
			name:   "site not accessible",
			status: http.StatusOK,
			body:   `[{"id":"c1","url":"https://other.atlassian.net","name":"other"}]`,
			config: map[string]any{"instance_url": "acme.atlassian.net"},
		},
		{
			name:   "no resources",
			status: http.StatusOK,
			body:   `[]`,
		},
		{
			name:   "token rejected",
			status: http.StatusUnauthorized,
			body:   `{"message":"Unauthorized"}`,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			body:    `oops`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				if got := req.Header.Get("Authorization"); got != "Bearer at" {
					t.Errorf("Authorization = %q", got)
				}
				return jsonResponse(req, tt.status, tt.body), nil
			})}
			p, err := New(Confluence, "id", "secret", client)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			h, err := p.TestConnection(context.Background(), registry.Credential{AccessToken: "at"}, tt.config)
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
				t.Fatalf("TestConnection() healthy = %v, want %v (reason %q)", h.Healthy, tt.wantHealthy, h.Reason)
			}
			if !h.Healthy && h.Reason == "" {
				t.Fatalf("TestConnection() unhealthy without reason")
			}
		})
	}
}
