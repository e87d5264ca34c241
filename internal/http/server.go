package httpapp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/open-sspm/connector-hub/internal/broker"
	"github.com/open-sspm/connector-hub/internal/config"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/http/authn"
	"github.com/open-sspm/connector-hub/internal/http/handlers"
)

const (
	headerRequestID    = "X-Request-ID"
	maxRequestIDLength = 128
)

// Deps are the collaborators the HTTP layer serves.
type Deps struct {
	Handlers *handlers.Handlers
	Verifier *authn.Verifier
	Users    authn.UserResolver
}

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h       *handlers.Handlers
	e       *echo.Echo
	limiter *ipRateLimiter
	server  *http.Server
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(cfg config.Config, deps Deps) (*EchoServer, error) {
	if deps.Handlers == nil || deps.Verifier == nil || deps.Users == nil {
		return nil, errors.New("http server dependencies are incomplete")
	}
	es := &EchoServer{
		h:       deps.Handlers,
		e:       echo.New(),
		limiter: newIPRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}
	es.e.Logger = slog.Default()
	es.e.HTTPErrorHandler = es.httpErrorHandler
	es.e.IPExtractor = clientIPExtractor(cfg.TrustProxyHeaders)
	es.e.Use(middleware.Recover())
	es.e.Use(requestIDMiddleware)
	es.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURIPath:  true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			requestID, _ := c.Get(handlers.ContextKeyRequestID).(string)
			slog.Info("http request",
				"request_id", requestID,
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	es.registerRoutes(authn.RequireAuth(deps.Verifier, deps.Users))
	return es, nil
}

func (es *EchoServer) registerRoutes(requireAuth echo.MiddlewareFunc) {
	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("/api")
	api.GET("/connectors", es.h.HandleConnectors)
	api.GET("/connectors/:key", es.h.HandleConnector)
	api.POST("/connectors", es.h.HandleCreateConnector, requireAuth, authn.RequireAdmin)
	api.PUT("/connectors/:key", es.h.HandleUpdateConnector, requireAuth, authn.RequireAdmin)
	api.DELETE("/connectors/:key", es.h.HandleDeleteConnector, requireAuth, authn.RequireAdmin)

	admin := api.Group("/admin", requireAuth, authn.RequireAdmin)
	admin.GET("/connectors", es.h.HandleStoredConnectors)

	oauth := api.Group("/oauth", es.limiter.middleware)
	oauth.GET("/:connector/callback", es.h.HandleOAuthCallback)
	oauth.POST("/:connector/callback", es.h.HandleOAuthCallback)
	oauth.GET("/:connector/authorize", es.h.HandleOAuthAuthorize, requireAuth)
	oauth.DELETE("/:connector/revoke/:connection_id", es.h.HandleOAuthRevoke, requireAuth)

	conns := api.Group("/connections", requireAuth)
	conns.GET("", es.h.HandleListConnections)
	conns.POST("", es.h.HandleCreateConnection)
	conns.GET("/:id", es.h.HandleGetConnection)
	conns.PUT("/:id", es.h.HandleUpdateConnection)
	conns.DELETE("/:id", es.h.HandleDeleteConnection)
	conns.POST("/:id/test", es.h.HandleTestConnection)
}

// ServeHTTP makes the server usable with httptest.
func (es *EchoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	es.e.ServeHTTP(w, r)
}

// StartServer serves on server until it is shut down.
func (es *EchoServer) StartServer(server *http.Server) error {
	server.Handler = es.e
	es.server = server
	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (es *EchoServer) Shutdown(ctx context.Context) error {
	if es.server == nil {
		return nil
	}
	return es.server.Shutdown(ctx)
}

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if err == nil {
		return
	}
	if r, _ := echo.UnwrapResponse(c.Response()); r != nil && r.Committed {
		return
	}

	var cfgErr *registry.ConfigError
	if errors.As(err, &cfgErr) {
		_ = c.JSON(http.StatusBadRequest, handlers.ErrorBody{
			Error:   "invalid_config",
			Message: "config_data does not match the connector schema",
			Details: cfgErr.Problems,
		})
		return
	}

	err = broker.Classify(err)
	var be *broker.Error
	if errors.As(err, &be) {
		status := statusForKind(be.Kind)
		if status == http.StatusInternalServerError {
			_ = es.h.RenderError(c, err)
			return
		}
		if status >= http.StatusInternalServerError {
			requestID, _ := c.Get(handlers.ContextKeyRequestID).(string)
			c.Logger().Warn("upstream connector failure", "request_id", requestID, "kind", be.Kind, "connector", be.Connector, "error", err)
		}
		_ = c.JSON(status, handlers.ErrorBody{Error: string(be.Kind), Message: be.Reason})
		return
	}

	status := httpStatusFromError(err)
	switch {
	case status == http.StatusNotFound:
		_ = handlers.RenderNotFound(c)
	case status >= http.StatusInternalServerError:
		_ = es.h.RenderError(c, err)
	default:
		_ = c.JSON(status, handlers.ErrorBody{
			Error:   strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_")),
			Message: http.StatusText(status),
		})
	}
}

// clientIPExtractor decides what c.RealIP reports. Forwarding headers are
// ignored unless the deployment sits behind a proxy on a private network.
func clientIPExtractor(trustProxy bool) echo.IPExtractor {
	if !trustProxy {
		return echo.ExtractIPDirect()
	}
	return echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)
}

func httpStatusFromError(err error) int {
	var sc echo.HTTPStatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code <= 599 {
			return code
		}
	}
	return http.StatusInternalServerError
}

func statusForKind(kind broker.Kind) int {
	switch kind {
	case broker.KindNotFound:
		return http.StatusNotFound
	case broker.KindInvalidState, broker.KindExpiredToken, broker.KindMalformedToken,
		broker.KindConnectorMismatch, broker.KindReplayedCallback, broker.KindInvalidRequest:
		return http.StatusBadRequest
	case broker.KindExchangeError, broker.KindRefreshError, broker.KindConnectorError:
		return http.StatusBadGateway
	case broker.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(headerRequestID))
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
