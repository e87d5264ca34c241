package broker

import (
	"errors"

	"github.com/open-sspm/connector-hub/internal/connections"
	"github.com/open-sspm/connector-hub/internal/connectors/registry"
	"github.com/open-sspm/connector-hub/internal/oauthstate"
)

// Kind classifies broker failures for callers that map them to responses.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindExpiredToken      Kind = "expired_token"
	KindMalformedToken    Kind = "malformed_token"
	KindConnectorMismatch Kind = "connector_mismatch"
	KindReplayedCallback  Kind = "replayed_callback"
	KindExchangeError     Kind = "exchange_error"
	KindRefreshError      Kind = "refresh_error"
	KindConnectorError    Kind = "connector_error"
	KindConflict          Kind = "conflict"
	KindInvalidRequest    Kind = "invalid_request"
)

// Error is a typed broker failure. Reason is a fixed, user-safe message; the
// underlying cause stays in Err and is only logged.
type Error struct {
	Kind      Kind
	Connector string
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Connector != "" {
		msg += " (" + e.Connector + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by Kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a broker error, or "" for anything else.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

var defaultReasons = map[Kind]string{
	KindNotFound:          "not found",
	KindInvalidState:      "invalid state parameter",
	KindExpiredToken:      "authorization request expired, please try again",
	KindMalformedToken:    "malformed state parameter",
	KindConnectorMismatch: "state was issued for a different connector",
	KindReplayedCallback:  "authorization callback already processed",
	KindExchangeError:     "failed to exchange authorization code",
	KindRefreshError:      "failed to refresh credentials",
	KindConnectorError:    "connector request failed",
	KindConflict:          "connection already exists",
	KindInvalidRequest:    "invalid request",
}

func newError(kind Kind, connector string, err error) *Error {
	return &Error{Kind: kind, Connector: connector, Reason: defaultReasons[kind], Err: err}
}

// stateError maps state token verification failures.
func stateError(connector string, err error) *Error {
	switch {
	case errors.Is(err, oauthstate.ErrExpiredToken):
		return newError(KindExpiredToken, connector, err)
	case errors.Is(err, oauthstate.ErrMalformedToken):
		return newError(KindMalformedToken, connector, err)
	default:
		return newError(KindInvalidState, connector, err)
	}
}

// classify converts storage and plugin errors into broker errors. Errors that
// are neither pass through unchanged and surface as internal failures.
func classify(connector string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}

	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, connections.ErrNotFound):
		return newError(KindNotFound, connector, err)
	case errors.Is(err, connections.ErrReplayedCallback):
		return newError(KindReplayedCallback, connector, err)
	case errors.Is(err, connections.ErrConnectorMismatch):
		return newError(KindConnectorMismatch, connector, err)
	case errors.Is(err, connections.ErrConflict):
		return newError(KindConflict, connector, err)
	case errors.Is(err, connections.ErrInvalidTransition):
		return &Error{Kind: KindInvalidRequest, Connector: connector, Reason: "connection is not in a state that allows this action", Err: err}
	case errors.Is(err, registry.ErrExchange):
		return newError(KindExchangeError, connector, err)
	case errors.Is(err, registry.ErrRefresh):
		return newError(KindRefreshError, connector, err)
	}

	var ce *registry.ConnectorError
	if errors.As(err, &ce) {
		return newError(KindConnectorError, connector, err)
	}
	return err
}

// Classify maps storage and plugin errors from outside the broker, such as
// direct connection management, onto broker kinds.
func Classify(err error) error {
	return classify("", err)
}
