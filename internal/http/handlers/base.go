// Package handlers contains HTTP handler logic split by domain.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/connector-hub/internal/broker"
	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/http/authn"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"

	maxBodyBytes = 1 << 20
)

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Broker      *broker.Broker
	Connections *connections.Manager
	Registry    *registry.ConnectorRegistry
	// Catalog is nil when the persisted catalogue cannot be edited.
	Catalog ConnectorCatalog
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// HandleHealthz reports liveness.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// RenderError logs err and returns a generic 500 that carries only the request id.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	requestID, _ := c.Get(ContextKeyRequestID).(string)
	path := ""
	if req := c.Request(); req != nil && req.URL != nil {
		path = req.URL.Path
	}
	method := ""
	if req := c.Request(); req != nil {
		method = req.Method
	}
	c.Logger().Error("http error",
		"request_id", requestID,
		"method", method,
		"path", path,
		"ip", c.RealIP(),
		"error", err,
	)

	msg := "Internal server error."
	if requestID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, requestID)
	}
	msg = fmt.Sprintf("%s Code: %s.", msg, InternalErrorCode)
	return c.JSON(http.StatusInternalServerError, ErrorBody{Error: "internal_error", Message: msg})
}

// RenderNotFound returns a 404 response.
func RenderNotFound(c *echo.Context) error {
	return c.JSON(http.StatusNotFound, ErrorBody{Error: string(broker.KindNotFound), Message: "not found"})
}

func badRequest(c *echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorBody{Error: string(broker.KindInvalidRequest), Message: message})
}

func principal(c *echo.Context) (authn.Principal, error) {
	p, ok := authn.PrincipalFromContext(c)
	if !ok || p.UserID <= 0 {
		return authn.Principal{}, echo.ErrUnauthorized
	}
	return p, nil
}

// parseID parses a positive integer path or query value.
func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func optionalID(raw string) (*int64, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	id, ok := parseID(raw)
	if !ok {
		return nil, false
	}
	return &id, true
}
