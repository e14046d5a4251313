// Command notify-server serves the notification event stream on /events
// and a small page that subscribes to it on /.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/chatserver/pkg/config"
	"github.com/rhuss/chatserver/pkg/notify"
	"github.com/rhuss/chatserver/pkg/observability"
	"github.com/rhuss/chatserver/pkg/transport"
	transporthttp "github.com/rhuss/chatserver/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to app.yaml")
	flag.Parse()

	cfg, err := config.LoadNotify(*configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := cfg.Observability.Tracing
	tracing, err := observability.NewTracing(ctx, observability.TracingOptions{
		Enabled:      tr.Enabled,
		Endpoint:     tr.Endpoint,
		Insecure:     tr.Insecure,
		SamplingRate: tr.SamplingRate,
		ServiceName:  "notify-server",
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	broker := notify.NewBroker(notify.DefaultBufferSize, logger)
	defer broker.Close()
	go notify.Ticker(ctx, broker, cfg.Notify.Interval, cfg.Notify.Message)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", notify.IndexHandler())
	mux.Handle("GET /events", notify.Handler(broker, notify.Options{
		KeepAlive:     cfg.Notify.KeepAlive,
		KeepAliveText: cfg.Notify.KeepAliveText,
		Logger:        logger,
	}))
	if cfg.Observability.Metrics.Enabled {
		mux.Handle("GET "+cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	handler := transport.Chain(
		transport.Trace(tracing.Tracer(), logger),
		transport.RequestID(logger),
		transport.ServerTime(logger),
		transport.Recovery(logger),
	)(mux)

	// Streams outlive any write deadline.
	srv := transporthttp.NewServer(handler,
		transporthttp.WithAddr(cfg.Notify.Addr()),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, 0),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)
	return srv.ListenAndServe()
}
