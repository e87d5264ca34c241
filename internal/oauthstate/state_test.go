package oauthstate

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer([]byte(testSecret), WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return issuer
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewIssuer([]byte("too-short")); err == nil {
		t.Fatalf("NewIssuer() expected error for short secret")
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	issuer := newTestIssuer(t, &now)

	connID := int64(7)
	tests := []struct {
		name         string
		connectorKey string
		connectionID *int64
	}{
		{name: "without connection", connectorKey: "jira"},
		{name: "with connection", connectorKey: "slack", connectionID: &connID},
		{name: "normalizes key", connectorKey: "  Notion "},
	}

	for _, tt := range tests {
		token, err := issuer.Issue(tt.connectorKey, tt.connectionID, 10*time.Minute)
		if err != nil {
			t.Fatalf("%s: Issue() error = %v", tt.name, err)
		}
		claims, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("%s: Verify() error = %v", tt.name, err)
		}
		wantKey := strings.ToLower(strings.TrimSpace(tt.connectorKey))
		if claims.ConnectorKey != wantKey {
			t.Fatalf("%s: ConnectorKey = %q, want %q", tt.name, claims.ConnectorKey, wantKey)
		}
		switch {
		case tt.connectionID == nil && claims.ConnectionID != nil:
			t.Fatalf("%s: ConnectionID = %d, want nil", tt.name, *claims.ConnectionID)
		case tt.connectionID != nil && (claims.ConnectionID == nil || *claims.ConnectionID != *tt.connectionID):
			t.Fatalf("%s: ConnectionID = %v, want %d", tt.name, claims.ConnectionID, *tt.connectionID)
		}
		if claims.Nonce == "" {
			t.Fatalf("%s: Nonce is empty", tt.name)
		}
		if !claims.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
			t.Fatalf("%s: ExpiresAt = %v, want %v", tt.name, claims.ExpiresAt, now.Add(10*time.Minute))
		}
	}
}

func TestIssueUsesFreshNonce(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	issuer := newTestIssuer(t, &now)

	seen := make(map[string]struct{})
	for i := 0; i < 32; i++ {
		token, err := issuer.Issue("jira", nil, time.Minute)
		if err != nil {
			t.Fatalf("Issue() error = %v", err)
		}
		claims, err := issuer.Verify(token)
		if err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
		if _, dup := seen[claims.Nonce]; dup {
			t.Fatalf("nonce %q issued twice", claims.Nonce)
		}
		seen[claims.Nonce] = struct{}{}
	}
}

func TestIssueRejectsEmptyConnector(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	issuer := newTestIssuer(t, &now)
	if _, err := issuer.Issue("  ", nil, time.Minute); err == nil {
		t.Fatalf("Issue() expected error for empty connector key")
	}
}

func TestVerifyExpiry(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0).UTC()
	now := start
	issuer := newTestIssuer(t, &now)

	token, err := issuer.Issue("jira", nil, 5*time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	now = start.Add(5*time.Minute - time.Second)
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	now = start.Add(5*time.Minute + time.Second)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Verify() after expiry error = %v, want ErrExpiredToken", err)
	}
}

func TestVerifyTamperedPayloadIsInvalidSignature(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	issuer := newTestIssuer(t, &now)
	connID := int64(99)
	token, err := issuer.Issue("confluence", &connID, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parts := strings.Split(token, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	for byteIdx := range payload {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), payload...)
			tampered[byteIdx] ^= 1 << bit
			forged := parts[0] + "." + base64.RawURLEncoding.EncodeToString(tampered) + "." + parts[2]
			if _, err := issuer.Verify(forged); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("Verify() with bit %d of byte %d flipped error = %v, want ErrInvalidSignature", bit, byteIdx, err)
			}
		}
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	issuer := newTestIssuer(t, &now)
	other, err := NewIssuer([]byte(strings.Repeat("z", 32)), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	token, err := other.Issue("jira", nil, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify() error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	issuer := newTestIssuer(t, &now)

	for _, token := range []string{"", "abc", "a.b", "a.b.c.d", "a..c", "a.b.!!!"} {
		if _, err := issuer.Verify(token); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("Verify(%q) error = %v, want ErrMalformedToken", token, err)
		}
	}
}

func TestMintReturnsSignedClaims(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 500).UTC()
	issuer := newTestIssuer(t, &now)

	connID := int64(11)
	token, minted, err := issuer.Mint("Jira", &connID, time.Minute)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	verified, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if minted.Nonce != verified.Nonce || minted.ConnectorKey != verified.ConnectorKey {
		t.Fatalf("Mint() claims = %+v, Verify() claims = %+v", minted, verified)
	}
	if !minted.ExpiresAt.Equal(verified.ExpiresAt) || !minted.IssuedAt.Equal(verified.IssuedAt) {
		t.Fatalf("Mint() times = %v/%v, Verify() times = %v/%v", minted.IssuedAt, minted.ExpiresAt, verified.IssuedAt, verified.ExpiresAt)
	}
	if minted.ConnectionID == nil || *minted.ConnectionID != connID {
		t.Fatalf("Mint() ConnectionID = %v, want %d", minted.ConnectionID, connID)
	}
	connID = 99
	if *minted.ConnectionID != 11 {
		t.Fatalf("Mint() ConnectionID aliases caller variable")
	}
}
