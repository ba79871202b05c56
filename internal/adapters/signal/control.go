package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Talkie/internal/domain"
)

// ClientTokenKey is where the HTTP layer leaves the device cookie value.
const ClientTokenKey = "client_token"

var (
	errBadPayload  = domain.InvalidArgument("payload", "bad json")
	errUnknownType = domain.InvalidArgument("type", "unknown")
	errRateLimited = errors.New("rate limited")
)

type welcome struct {
	Type         string                 `json:"type"`
	ConnectionID string                 `json:"connection_id"`
	Key          domain.ConversationKey `json:"booking_code"`
	Role         domain.Role            `json:"role"`
	ICEServers   any                    `json:"ice_servers"`
}

type errorFrame struct {
	Type     string `json:"type"`
	Request  string `json:"request,omitempty"`
	Code     string `json:"code"`
	Error    string `json:"error"`
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// ErrorCode is the stable, client-facing name of err's class.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrCallStateConflict):
		return "call_state_conflict"
	case errors.Is(err, domain.ErrDependencyTimeout):
		return "dependency_timeout"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, errRateLimited):
		return "rate_limited"
	}
	return "internal"
}

func (ctl *SignalWSController) sendError(ctx context.Context, c *wsSignalConn, request string, err error) {
	f := errorFrame{Type: "error", Request: request, Code: ErrorCode(err), Error: err.Error()}
	var iae *domain.InvalidArgumentError
	if errors.As(err, &iae) {
		f.Field = iae.Field
	}
	var conflict *domain.CallStateConflictError
	if errors.As(err, &conflict) {
		f.Expected, f.Actual = conflict.Expected, conflict.Actual
	}
	ctl.sendJSON(ctx, c, f)
}

func (ctl *SignalWSController) handlePing(ctx context.Context, c *wsSignalConn) {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(ctx, c, resp)
}
