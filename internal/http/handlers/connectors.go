package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/connector-hub/internal/broker"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

// ConnectorCatalog edits the persisted connector catalogue.
type ConnectorCatalog interface {
	ListStoredConnectors(ctx context.Context) ([]registry.StoredConnector, error)
	CreateConnector(ctx context.Context, in registry.NewStoredConnector) (registry.StoredConnector, error)
	UpdateConnector(ctx context.Context, key string, in registry.ConnectorUpdate) (registry.StoredConnector, error)
	DeleteConnector(ctx context.Context, key string) error
}

type createConnectorRequest struct {
	Key          string          `json:"key"`
	Name         string          `json:"name"`
	ConfigSchema json.RawMessage `json:"config_schema"`
}

type updateConnectorRequest struct {
	Name         *string         `json:"name"`
	ConfigSchema json.RawMessage `json:"config_schema"`
}

// HandleConnectors lists every built-in connector and whether it can be used.
func (h *Handlers) HandleConnectors(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.Registry.Availability())
}

// HandleConnector returns one connector's catalogue entry.
func (h *Handlers) HandleConnector(c *echo.Context) error {
	key := registry.NormalizeKey(c.Param("key"))
	for _, a := range h.Registry.Availability() {
		if a.Key == key {
			return c.JSON(http.StatusOK, a)
		}
	}
	return RenderNotFound(c)
}

// HandleStoredConnectors lists the persisted catalogue rows.
func (h *Handlers) HandleStoredConnectors(c *echo.Context) error {
	if h.Catalog == nil {
		return RenderNotFound(c)
	}
	rows, err := h.Catalog.ListStoredConnectors(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *Handlers) HandleCreateConnector(c *echo.Context) error {
	if h.Catalog == nil {
		return RenderNotFound(c)
	}
	var req createConnectorRequest
	if err := decodeJSON(c, &req); err != nil {
		return badRequest(c, "malformed request body")
	}
	key := registry.NormalizeKey(req.Key)
	if !validConnectorKey(key) {
		return badRequest(c, "key must be lowercase letters, digits, '-' or '_'")
	}
	if strings.TrimSpace(req.Name) == "" {
		return badRequest(c, "name is required")
	}
	if len(req.ConfigSchema) > 0 {
		if err := registry.ValidateSchema(req.ConfigSchema); err != nil {
			return invalidSchema(c, err)
		}
	}

	row, err := h.Catalog.CreateConnector(c.Request().Context(), registry.NewStoredConnector{
		Key:          key,
		Name:         req.Name,
		ConfigSchema: req.ConfigSchema,
	})
	if errors.Is(err, registry.ErrConnectorExists) {
		return c.JSON(http.StatusConflict, ErrorBody{Error: string(broker.KindConflict), Message: "connector already exists"})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, row)
}

func (h *Handlers) HandleUpdateConnector(c *echo.Context) error {
	if h.Catalog == nil {
		return RenderNotFound(c)
	}
	var req updateConnectorRequest
	if err := decodeJSON(c, &req); err != nil {
		return badRequest(c, "malformed request body")
	}
	if req.Name == nil && len(req.ConfigSchema) == 0 {
		return badRequest(c, "name or config_schema is required")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return badRequest(c, "name must not be empty")
	}
	if len(req.ConfigSchema) > 0 {
		if err := registry.ValidateSchema(req.ConfigSchema); err != nil {
			return invalidSchema(c, err)
		}
	}

	row, err := h.Catalog.UpdateConnector(c.Request().Context(), c.Param("key"), registry.ConnectorUpdate{
		Name:         req.Name,
		ConfigSchema: req.ConfigSchema,
	})
	if errors.Is(err, registry.ErrNotFound) {
		return RenderNotFound(c)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

// HandleDeleteConnector removes a catalogue row together with every
// connection to it.
func (h *Handlers) HandleDeleteConnector(c *echo.Context) error {
	if h.Catalog == nil {
		return RenderNotFound(c)
	}
	err := h.Catalog.DeleteConnector(c.Request().Context(), c.Param("key"))
	if errors.Is(err, registry.ErrNotFound) {
		return RenderNotFound(c)
	}
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func invalidSchema(c *echo.Context, err error) error {
	body := ErrorBody{Error: "invalid_schema", Message: "config_schema is not a usable JSON Schema"}
	var cfgErr *registry.ConfigError
	if errors.As(err, &cfgErr) {
		body.Details = cfgErr.Problems
	}
	return c.JSON(http.StatusBadRequest, body)
}

func validConnectorKey(key string) bool {
	if key == "" || len(key) > 64 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
