package transport

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-Id"

// maxInboundRequestID bounds client-supplied IDs.
const maxInboundRequestID = 128

// newRequestID mints request IDs. Tests replace it to simulate failure.
var newRequestID = uuid.NewV7

// RequestID returns middleware that assigns a unique request ID to each
// request. A client-supplied X-Request-Id is reused when it is a valid
// header value of reasonable length. Otherwise a new UUIDv7 is generated.
//
// The ID is set on the request header, the request context (see
// RequestIDFromContext) and the response header. If no ID can be minted
// the failure is logged and the request proceeds without one.
func RequestID(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !usableRequestID(id) {
				u, err := newRequestID()
				if err != nil {
					logger.WarnContext(r.Context(), "failed to generate request id",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					r.Header.Del(RequestIDHeader)
					next.ServeHTTP(w, r)
					return
				}
				id = u.String()
				r.Header.Set(RequestIDHeader, id)
			}

			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestID(r.Context(), id)))
		})
	}
}

func usableRequestID(id string) bool {
	return id != "" && len(id) <= maxInboundRequestID && httpguts.ValidHeaderFieldValue(id)
}
