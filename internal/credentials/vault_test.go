package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakeTransit wraps the base64 plaintext in a Transit-style ciphertext so tests
// can see what crossed the wire.
func fakeTransit(t *testing.T, mount, key string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Vault-Token"); got != "s.token" {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(t, w, map[string]any{"errors": []string{"permission denied"}})
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		switch r.URL.Path {
		case "/v1/" + mount + "/encrypt/" + key:
			plaintext, _ := body["plaintext"].(string)
			writeJSON(t, w, map[string]any{"data": map[string]any{"ciphertext": "vault:v1:" + plaintext}})
		case "/v1/" + mount + "/decrypt/" + key:
			ciphertext, _ := body["ciphertext"].(string)
			writeJSON(t, w, map[string]any{"data": map[string]any{"plaintext": strings.TrimPrefix(ciphertext, "vault:v1:")}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestVaultSealOpen(t *testing.T) {
	t.Parallel()

	server := fakeTransit(t, "secrets-transit", "hub")
	defer server.Close()

	v, err := NewVault(VaultOptions{
		Address:      server.URL,
		Token:        "s.token",
		TransitMount: "/secrets-transit/",
		TransitKey:   "hub",
	})
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}

	ctx := context.Background()
	sealed, err := v.Seal(ctx, "refresh-token")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(sealed, "vault:v1:") || strings.Contains(sealed, "refresh-token") {
		t.Fatalf("Seal() = %q", sealed)
	}
	opened, err := v.Open(ctx, sealed)
	if err != nil || opened != "refresh-token" {
		t.Fatalf("Open() = %q, %v", opened, err)
	}
	if _, err := v.Open(ctx, "v1:abc"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("Open(local value) error = %v, want ErrUnknownFormat", err)
	}
}

func TestVaultSealPermissionDenied(t *testing.T) {
	t.Parallel()

	server := fakeTransit(t, "transit", defaultTransitKey)
	defer server.Close()

	v, err := NewVault(VaultOptions{Address: server.URL, Token: "s.wrong"})
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}
	if _, err := v.Seal(context.Background(), "token"); err == nil {
		t.Fatalf("Seal() expected error")
	}
}

func TestVaultAppRoleLogin(t *testing.T) {
	t.Parallel()

	var loginCalled bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/auth/platform-approle/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		defer r.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode login body: %v", err)
		}
		if body["role_id"] != "role-id" || body["secret_id"] != "secret-id" {
			t.Errorf("unexpected login body: %v", body)
		}
		loginCalled = true
		writeJSON(t, w, map[string]any{"auth": map[string]any{"client_token": "token-from-approle"}})
	}))
	defer server.Close()

	_, err := NewVault(VaultOptions{
		Address:          server.URL,
		AuthType:         vaultAuthTypeAppRole,
		AppRoleMountPath: "platform-approle",
		AppRoleRoleID:    "role-id",
		AppRoleSecretID:  "secret-id",
	})
	if err != nil {
		t.Fatalf("NewVault(approle) error = %v", err)
	}
	if !loginCalled {
		t.Fatalf("expected approle login endpoint to be called")
	}
}

func TestNewVaultValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts VaultOptions
	}{
		{name: "missing address", opts: VaultOptions{Token: "t"}},
		{name: "missing token", opts: VaultOptions{Address: "http://127.0.0.1:8200"}},
		{name: "approle without role", opts: VaultOptions{Address: "http://127.0.0.1:8200", AuthType: "approle", AppRoleSecretID: "s"}},
		{name: "unknown auth", opts: VaultOptions{Address: "http://127.0.0.1:8200", AuthType: "ldap"}},
	}
	for _, tt := range tests {
		if _, err := NewVault(tt.opts); err == nil {
			t.Fatalf("%s: NewVault() expected error", tt.name)
		}
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}
