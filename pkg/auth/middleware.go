package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/observability"
	"github.com/rhuss/chatserver/pkg/transport"
)

// Failure reasons recorded in chat_auth_failures_total.
const (
	reasonMissing = "missing"
	reasonInvalid = "invalid"
)

// Middleware creates HTTP middleware from an AuthChain. Wrap it around
// protected routes only: every request it sees must authenticate.
//
// Rejected requests get a 401 JSON error and never reach next. The
// rejection cause is logged, and only a fixed message is returned.
func Middleware(chain *AuthChain, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				err := result.Err
				if err == nil {
					err = ErrUnauthenticated
				}
				reason, message := reasonInvalid, ErrInvalidCredentials.Error()
				if errors.Is(err, ErrUnauthenticated) {
					reason, message = reasonMissing, ErrUnauthenticated.Error()
				}

				logger.WarnContext(r.Context(), "authentication failed",
					slog.String("request_id", transport.RequestIDFromContext(r.Context())),
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("decision", result.Decision.String()),
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
				observability.AuthFailuresTotal.WithLabelValues(reason).Inc()
				transport.WriteAPIError(w, api.NewUnauthorizedError(message))
				return
			}

			// Validate identity.
			if result.Identity.Subject == "" {
				logger.ErrorContext(r.Context(), "authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			logger.DebugContext(r.Context(), "authentication succeeded",
				slog.String("subject", result.Identity.Subject),
				slog.String("path", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}
