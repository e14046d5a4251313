package notify

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/transport"
)

//go:embed index.html
var indexHTML []byte

// Options configures the event stream handler.
type Options struct {
	// KeepAlive is the idle interval between keep-alive comments.
	// Zero disables them.
	KeepAlive time.Duration

	// KeepAliveText is the body of the keep-alive comment.
	KeepAliveText string

	Logger *slog.Logger
}

// DefaultOptions returns a one-second keep-alive.
func DefaultOptions() Options {
	return Options{
		KeepAlive:     time.Second,
		KeepAliveText: "keep-alive_text",
	}
}

// Handler serves a subscription to b as a text/event-stream response.
// The stream ends when the client disconnects or the broker closes.
// Clients must send a User-Agent header.
func Handler(b *Broker, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keepAlive := ": " + sanitizeLine(opts.KeepAliveText) + "\n\n"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() == "" {
			transport.WriteAPIError(w, api.NewInvalidRequestError("User-Agent", "missing User-Agent header"))
			return
		}

		events, cancel := b.Subscribe()
		defer cancel()

		rc := http.NewResponseController(w)
		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			logger.Error("event stream not supported", slog.String("error", err.Error()))
			return
		}

		ctx := r.Context()
		logger.DebugContext(ctx, "subscriber connected",
			slog.String("request_id", transport.RequestIDFromContext(ctx)),
			slog.String("user_agent", r.UserAgent()),
		)

		var tick <-chan time.Time
		if opts.KeepAlive > 0 {
			t := time.NewTicker(opts.KeepAlive)
			defer t.Stop()
			tick = t.C
		}

		for {
			var err error
			select {
			case <-ctx.Done():
				logger.DebugContext(ctx, "subscriber disconnected",
					slog.String("request_id", transport.RequestIDFromContext(ctx)),
				)
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				err = writeEvent(w, ev)
			case <-tick:
				_, err = io.WriteString(w, keepAlive)
			}
			if err == nil {
				err = rc.Flush()
			}
			if err != nil {
				logger.DebugContext(ctx, "event stream write failed",
					slog.String("request_id", transport.RequestIDFromContext(ctx)),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	})
}

// writeEvent writes one frame. Multi-line data is split into several
// data fields, which clients join back with newlines.
func writeEvent(w io.Writer, ev Event) error {
	var sb strings.Builder
	if ev.Type != "" {
		fmt.Fprintf(&sb, "event: %s\n", sanitizeLine(ev.Type))
	}
	for line := range strings.SplitSeq(strings.ReplaceAll(ev.Data, "\r\n", "\n"), "\n") {
		fmt.Fprintf(&sb, "data: %s\n", strings.ReplaceAll(line, "\r", ""))
	}
	sb.WriteByte('\n')
	_, err := io.WriteString(w, sb.String())
	return err
}

func sanitizeLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// IndexHandler serves the page that subscribes to /events.
func IndexHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(indexHTML)
	})
}
