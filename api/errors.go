package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/malbeclabs/sportsql/agent/pkg/entity"
	"github.com/malbeclabs/sportsql/agent/pkg/llm"
	"github.com/malbeclabs/sportsql/agent/pkg/pipeline"
	"github.com/malbeclabs/sportsql/agent/pkg/sqlguard"
	"github.com/malbeclabs/sportsql/pkg/refresh"
	"github.com/malbeclabs/sportsql/pkg/store"
)

// statusFor maps the error taxonomy to an HTTP status. Execution errors
// fall through to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrDataUnavailable), errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sqlguard.ErrSynthesis):
		return http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrProviderUnavailable),
		errors.Is(err, llm.ErrInvalidResponse),
		errors.Is(err, pipeline.ErrInvalidPlan):
		return http.StatusBadGateway
	case errors.Is(err, refresh.ErrRefreshInProgress):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes it as a JSON error. Unclassified errors are not
// shown to the caller.
func (s *Server) fail(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	var execErr *store.ExecutionError
	if status == http.StatusInternalServerError && !errors.As(err, &execErr) {
		msg = "internal server error"
	}
	if status >= http.StatusInternalServerError {
		log.Error("api: request failed", "status", status, "error", err)
	} else {
		log.Warn("api: request failed", "status", status, "error", err)
	}
	writeError(w, status, msg)
}
