package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
)

type createConnectionRequest struct {
	ConnectorKey string         `json:"connector_key"`
	ConfigData   map[string]any `json:"config_data"`
}

type updateConnectionRequest struct {
	ConfigData map[string]any `json:"config_data"`
}

// TestResponse is the body returned by a connection test.
type TestResponse struct {
	Healthy  bool                   `json:"healthy"`
	Reason   string                 `json:"reason,omitempty"`
	Details  map[string]any         `json:"details,omitempty"`
	TestedAt *time.Time             `json:"tested_at,omitempty"`
	Status   connections.Status     `json:"status"`
	Conn     connections.Connection `json:"connection"`
}

func (h *Handlers) HandleListConnections(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	conns, err := h.Connections.List(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	if conns == nil {
		conns = []connections.Connection{}
	}
	return c.JSON(http.StatusOK, conns)
}

func (h *Handlers) HandleGetConnection(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c.Param("id"))
	if !ok {
		return RenderNotFound(c)
	}
	conn, err := h.Connections.Owned(c.Request().Context(), p.UserID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conn)
}

func (h *Handlers) HandleCreateConnection(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req createConnectionRequest
	if err := decodeJSON(c, &req); err != nil {
		return badRequest(c, "malformed request body")
	}
	key := registry.NormalizeKey(req.ConnectorKey)
	if key == "" {
		return badRequest(c, "connector_key is required")
	}
	def, ok := h.Registry.Lookup(key)
	if !ok {
		return RenderNotFound(c)
	}
	if err := def.ValidateConfig(req.ConfigData); err != nil {
		return err
	}

	conn, err := h.Connections.Create(c.Request().Context(), p.UserID, key, req.ConfigData)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conn)
}

func (h *Handlers) HandleUpdateConnection(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c.Param("id"))
	if !ok {
		return RenderNotFound(c)
	}
	var req updateConnectionRequest
	if err := decodeJSON(c, &req); err != nil {
		return badRequest(c, "malformed request body")
	}

	ctx := c.Request().Context()
	existing, err := h.Connections.Owned(ctx, p.UserID, id)
	if err != nil {
		return err
	}
	if def, ok := h.Registry.Lookup(existing.ConnectorKey); ok {
		if err := def.ValidateConfig(req.ConfigData); err != nil {
			return err
		}
	}

	conn, err := h.Connections.UpdateConfig(ctx, p.UserID, id, req.ConfigData)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conn)
}

func (h *Handlers) HandleDeleteConnection(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c.Param("id"))
	if !ok {
		return RenderNotFound(c)
	}
	if err := h.Connections.Delete(c.Request().Context(), p.UserID, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleTestConnection(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := parseID(c.Param("id"))
	if !ok {
		return RenderNotFound(c)
	}
	res, err := h.Broker.Test(c.Request().Context(), p.UserID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TestResponse{
		Healthy:  res.Healthy,
		Reason:   res.Reason,
		Details:  res.Details,
		TestedAt: res.Connection.LastTestedAt,
		Status:   res.Connection.Status,
		Conn:     res.Connection,
	})
}

func decodeJSON(c *echo.Context, out any) error {
	body := c.Request().Body
	if body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
