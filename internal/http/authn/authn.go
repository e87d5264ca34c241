// Package authn authenticates API callers with bearer tokens issued by the
// session service.
package authn

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v5"
)

const (
	ContextKeyPrincipal = "auth_principal"

	// clockSkew tolerates small drift between this service and the token issuer.
	clockSkew = 5 * time.Second
)

var ErrInvalidToken = errors.New("invalid bearer token")

// Principal is the authenticated caller.
type Principal struct {
	UserID  int64
	Subject string
	Email   string
	Admin   bool
}

// Claims are the bearer token claims this service reads.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	// Admin grants access to the connector catalogue endpoints.
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// UserResolver maps a verified identity onto the local users table.
type UserResolver interface {
	UpsertUser(ctx context.Context, email, name string) (int64, error)
}

// Verifier checks HS256 bearer tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("JWT secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify parses token and returns its claims. Any failure collapses to ErrInvalidToken.
func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if v == nil || token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func PrincipalFromContext(c *echo.Context) (Principal, bool) {
	p, ok := c.Get(ContextKeyPrincipal).(Principal)
	return p, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved Principal on the context.
func RequireAuth(v *Verifier, users UserResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return handleUnauth(c)
			}
			claims, err := v.Verify(token)
			if err != nil {
				return handleUnauth(c)
			}

			userID, err := users.UpsertUser(c.Request().Context(), claims.Email, claims.Name)
			if err != nil {
				return err
			}
			c.Set(ContextKeyPrincipal, Principal{
				UserID:  userID,
				Subject: claims.Subject,
				Email:   claims.Email,
				Admin:   claims.Admin,
			})
			return next(c)
		}
	}
}

// RequireAdmin rejects principals without the admin claim. It runs after
// RequireAuth.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return handleUnauth(c)
		}
		if !p.Admin {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   "forbidden",
				"message": "administrator access required",
			})
		}
		return next(c)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func handleUnauth(c *echo.Context) error {
	c.Response().Header().Set("WWW-Authenticate", `Bearer realm="connector-hub"`)
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error":   "unauthorized",
		"message": "authentication required",
	})
}
