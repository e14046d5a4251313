package transport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// redactedHeaders are recorded on spans with their value replaced.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

// Trace returns middleware that opens a server span named "METHOD path"
// for each request and logs when processing starts and finishes. Incoming
// trace context is extracted with the global propagator. Request headers
// are recorded as span attributes, with credentials redacted.
func Trace(tracer trace.Tracer, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...),
			)
			defer span.End()

			logger.LogAttrs(ctx, slog.LevelInfo, "started processing request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			hw := &headerWriter{ResponseWriter: w}
			next.ServeHTTP(hw, r.WithContext(ctx))

			status := hw.statusCode()
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			logger.LogAttrs(ctx, slog.LevelInfo, "finished processing request",
				slog.String("request_id", hw.Header().Get(RequestIDHeader)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int64("latency_us", time.Since(start).Microseconds()),
			)
		})
	}
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3+len(r.Header))
	attrs = append(attrs,
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.RequestURI()),
		attribute.String("http.user_agent", r.UserAgent()),
	)
	for name, values := range r.Header {
		value := strings.Join(values, ",")
		if redactedHeaders[name] {
			value = "[redacted]"
		}
		attrs = append(attrs, attribute.String("http.request.header."+strings.ToLower(name), value))
	}
	return attrs
}
