package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
	"github.com/open-sspm/connector-hub/internal/broker"
	"github.com/open-sspm/connector-hub/internal/connections"
)

// callbackParams are the values a provider redirect delivers, whether they
// arrive as query parameters, a form post or a JSON body.
type callbackParams struct {
	Code             string `json:"code"`
	State            string `json:"state"`
	ConnectionID     string `json:"-"`
	RawConnectionID  *int64 `json:"connection_id"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// CallbackResponse is the body of a successful callback.
type CallbackResponse struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Connection connections.Connection `json:"connection"`
}

// HandleOAuthAuthorize starts an authorization flow for the caller.
func (h *Handlers) HandleOAuthAuthorize(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	connectionID, ok := optionalID(c.QueryParam("connection_id"))
	if !ok {
		return badRequest(c, "connection_id must be a positive integer")
	}

	auth, err := h.Broker.Initiate(c.Request().Context(), p.UserID, c.Param("connector"), connectionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auth)
}

// HandleOAuthCallback completes a flow. It is unauthenticated; the signed
// state identifies the user and connection.
func (h *Handlers) HandleOAuthCallback(c *echo.Context) error {
	params, err := readCallbackParams(c)
	if err != nil {
		return badRequest(c, "malformed callback body")
	}

	if providerErr := strings.TrimSpace(params.Error); providerErr != "" {
		requestID, _ := c.Get(ContextKeyRequestID).(string)
		c.Logger().Info("oauth authorization denied",
			"request_id", requestID,
			"connector", c.Param("connector"),
			"provider_error", providerErr,
			"provider_error_description", params.ErrorDescription,
		)
		return c.JSON(http.StatusBadRequest, ErrorBody{Error: "oauth_denied", Message: deniedMessage(providerErr)})
	}

	connectionID := params.RawConnectionID
	if connectionID == nil {
		id, ok := optionalID(params.ConnectionID)
		if !ok {
			return badRequest(c, "connection_id must be a positive integer")
		}
		connectionID = id
	}

	conn, err := h.Broker.Complete(c.Request().Context(), broker.CallbackRequest{
		ConnectorKey: c.Param("connector"),
		Code:         params.Code,
		State:        params.State,
		ConnectionID: connectionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CallbackResponse{
		Success:    true,
		Message:    "OAuth authorization successful",
		Connection: conn,
	})
}

// HandleOAuthRevoke revokes the caller's connection to a connector.
func (h *Handlers) HandleOAuthRevoke(c *echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	connectionID, ok := parseID(c.Param("connection_id"))
	if !ok {
		return RenderNotFound(c)
	}
	if err := h.Broker.Revoke(c.Request().Context(), p.UserID, connectionID, c.Param("connector")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// oauthErrorCodes are the authorization endpoint error codes of RFC 6749
// section 4.1.2.1. Anything else a provider sends is not echoed back.
var oauthErrorCodes = map[string]struct{}{
	"access_denied":             {},
	"invalid_request":           {},
	"invalid_scope":             {},
	"server_error":              {},
	"temporarily_unavailable":   {},
	"unauthorized_client":       {},
	"unsupported_response_type": {},
}

func deniedMessage(providerErr string) string {
	if _, ok := oauthErrorCodes[strings.ToLower(providerErr)]; ok {
		return "authorization was denied by the provider: " + strings.ToLower(providerErr)
	}
	return "authorization was denied by the provider"
}

func readCallbackParams(c *echo.Context) (callbackParams, error) {
	req := c.Request()
	if req.Method != http.MethodPost {
		return callbackParams{
			Code:             c.QueryParam("code"),
			State:            c.QueryParam("state"),
			ConnectionID:     c.QueryParam("connection_id"),
			Error:            c.QueryParam("error"),
			ErrorDescription: c.QueryParam("error_description"),
		}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var params callbackParams
		dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
		if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			return callbackParams{}, err
		}
		return params, nil
	}

	return callbackParams{
		Code:             c.FormValue("code"),
		State:            c.FormValue("state"),
		ConnectionID:     c.FormValue("connection_id"),
		Error:            c.FormValue("error"),
		ErrorDescription: c.FormValue("error_description"),
	}, nil
}
