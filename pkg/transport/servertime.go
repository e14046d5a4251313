package transport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/http/httpguts"
)

// ServerTimeHeader reports how long the wrapped handler ran before it
// committed its response headers.
const ServerTimeHeader = "X-Server-Time"

// formatServerTime renders an elapsed duration as "<microseconds>us".
// Tests replace it to produce an unencodable value.
var formatServerTime = func(d time.Duration) string {
	return strconv.FormatInt(d.Microseconds(), 10) + "us"
}

// ServerTime returns middleware that sets X-Server-Time on every response.
// The value is measured when the inner handler first writes its headers,
// or when it returns if it never wrote any. A value that is not a valid
// header field is logged and omitted.
func ServerTime(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			hw := &headerWriter{
				ResponseWriter: w,
				beforeWrite: func(h http.Header) {
					v := formatServerTime(time.Since(start))
					if !httpguts.ValidHeaderFieldValue(v) {
						logger.WarnContext(r.Context(), "invalid server time header value",
							slog.String("request_id", RequestIDFromContext(r.Context())),
							slog.String("value", v),
						)
						return
					}
					h.Set(ServerTimeHeader, v)
				},
			}

			next.ServeHTTP(hw, r)

			if !hw.wroteHeader {
				hw.WriteHeader(http.StatusOK)
			}
		})
	}
}
