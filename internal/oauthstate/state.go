// Package oauthstate issues and verifies the signed, time-bounded state
// parameter that travels through the third-party authorization redirect.
package oauthstate

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenType is the JOSE "typ" header value carried by every state token.
	TokenType = "STATE"

	// DefaultTTL matches the lifetime of a typical provider consent screen.
	DefaultTTL = 10 * time.Minute

	// MinSecretLength is the minimum accepted signing secret size in bytes.
	MinSecretLength = 32

	nonceBytes = 16
)

var (
	ErrExpiredToken     = errors.New("state token expired")
	ErrInvalidSignature = errors.New("state token signature invalid")
	ErrMalformedToken   = errors.New("state token malformed")
)

// Claims is the verified content of a state token.
type Claims struct {
	ConnectorKey string
	ConnectionID *int64
	Nonce        string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

type stateClaims struct {
	Connector    string `json:"connector"`
	ConnectionID *int64 `json:"connection_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies state tokens with a server-held secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
	random func([]byte) (int, error)
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer validates the secret and returns an Issuer.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("state signing secret must be at least %d bytes", MinSecretLength)
	}
	i := &Issuer{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
		random: rand.Read,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue returns a signed state token bound to connectorKey and, when set, connectionID.
func (i *Issuer) Issue(connectorKey string, connectionID *int64, ttl time.Duration) (string, error) {
	token, _, err := i.Mint(connectorKey, connectionID, ttl)
	return token, err
}

// Mint is Issue that also returns the claims it signed, so callers can persist
// the nonce alongside the connection.
func (i *Issuer) Mint(connectorKey string, connectionID *int64, ttl time.Duration) (string, Claims, error) {
	connectorKey = strings.ToLower(strings.TrimSpace(connectorKey))
	if connectorKey == "" {
		return "", Claims{}, errors.New("connector key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	nonce := make([]byte, nonceBytes)
	if _, err := i.random(nonce); err != nil {
		return "", Claims{}, fmt.Errorf("generate state nonce: %w", err)
	}

	now := i.now().Truncate(time.Second)
	claims := stateClaims{
		Connector: connectorKey,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        base64.RawURLEncoding.EncodeToString(nonce),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	out := Claims{
		ConnectorKey: connectorKey,
		Nonce:        claims.ID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(ttl),
	}
	if connectionID != nil {
		id := *connectionID
		claims.ConnectionID = &id
		out.ConnectionID = &id
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["typ"] = TokenType
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign state token: %w", err)
	}
	return signed, out, nil
}

// Verify checks the signature first and only then decodes and validates the claims,
// so any modification of the signed bytes reports ErrInvalidSignature.
func (i *Issuer) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformedToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrMalformedToken
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, i.secret); err != nil {
		return Claims{}, ErrInvalidSignature
	}

	parsed, err := jwt.ParseWithClaims(token, &stateClaims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		default:
			return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		}
	}
	if typ, _ := parsed.Header["typ"].(string); typ != TokenType {
		return Claims{}, ErrMalformedToken
	}

	sc, ok := parsed.Claims.(*stateClaims)
	if !ok || strings.TrimSpace(sc.Connector) == "" || sc.ID == "" || sc.ExpiresAt == nil {
		return Claims{}, ErrMalformedToken
	}

	out := Claims{
		ConnectorKey: sc.Connector,
		ConnectionID: sc.ConnectionID,
		Nonce:        sc.ID,
		ExpiresAt:    sc.ExpiresAt.Time,
	}
	if sc.IssuedAt != nil {
		out.IssuedAt = sc.IssuedAt.Time
	}
	return out, nil
}
