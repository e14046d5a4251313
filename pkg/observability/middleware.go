package observability

import (
	"net/http"
	"strings"
	"time"
)

// MetricsMiddleware records chat_requests_total and
// chat_request_duration_seconds for every request. Event streams are
// counted but not timed: their duration is the client's connection
// lifetime, not server latency.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		RequestsTotal.WithLabelValues(r.Method, statusClass(rec.code())).Inc()
		if !rec.stream {
			RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

// statusClass maps a status code to its class label ("2xx", "4xx", ...).
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return string(rune('0'+code/100)) + "xx"
}

// recorder captures the first status code written through it.
type recorder struct {
	http.ResponseWriter
	status int
	stream bool
}

func (w *recorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
		w.stream = strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Flush keeps the notify stream working behind this middleware.
func (w *recorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *recorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// code reports the status sent to the client. A handler that never
// writes produces an implicit 200.
func (w *recorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
