package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/storage"
	"github.com/rhuss/chatserver/pkg/token"
	"github.com/rhuss/chatserver/pkg/transport"
)

// unavailableRetryAfter is sent with 503 responses, in seconds.
const unavailableRetryAfter = "1"

// toAPIError maps an internal error to the client-facing taxonomy.
// Internal kinds get a generic message; their detail stays in the log.
func toAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, storage.ErrConflict):
		return api.NewConflictError("email", "email already registered")
	case errors.Is(err, storage.ErrUnavailable):
		return api.NewUnavailableError("service temporarily unavailable")
	case errors.Is(err, token.ErrTokenInvalid):
		return api.NewUnauthorizedError("failed to verify token")
	default:
		// Hashing, signing and persistence failures.
		return api.NewServerError("internal server error")
	}
}

// writeError logs err with its operation and writes the mapped response.
// Client-caused errors log at WARN, internal failures at ERROR.
func (a *Adapter) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := toAPIError(err)
	status := apiErr.HTTPStatus()

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		level = slog.LevelError
	}
	a.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("request_id", transport.RequestIDFromContext(r.Context())),
		slog.String("op", op),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", unavailableRetryAfter)
	}
	transport.WriteAPIError(w, apiErr)
}
