package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Talkie/internal/adapters/signal"
	"github.com/dkeye/Talkie/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCallStateConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDependencyTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// abortWithError writes err in the shape every endpoint shares.
func abortWithError(c *gin.Context, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: err.Error(), Code: signal.ErrorCode(err)}
	var iae *domain.InvalidArgumentError
	if errors.As(err, &iae) {
		resp.Field = iae.Field
	}
	var conflict *domain.CallStateConflictError
	if errors.As(err, &conflict) {
		resp.Expected, resp.Actual = conflict.Expected, conflict.Actual
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(status, resp)
}
