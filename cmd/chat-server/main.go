// Command chat-server runs the chat API: registration, login and the
// token-protected chat routes.
//
// Configuration is read from app.yaml (see -config) with CHAT_ environment
// overrides. Run with -generate-keys to print a fresh Ed25519 key pair for
// auth.signing_key and auth.verifying_key.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rhuss/chatserver/pkg/app"
	"github.com/rhuss/chatserver/pkg/config"
	"github.com/rhuss/chatserver/pkg/observability"
	"github.com/rhuss/chatserver/pkg/token"
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
	generateKeys := flag.Bool("generate-keys", false, "print a new Ed25519 key pair and exit")
	flag.Parse()

	if *generateKeys {
		priv, pub, err := token.GenerateKeyPEM()
		if err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("%s\n%s", priv, pub)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	tr := cfg.Observability.Tracing
	tracing, err := observability.NewTracing(ctx, observability.TracingOptions{
		Enabled:      tr.Enabled,
		Endpoint:     tr.Endpoint,
		Insecure:     tr.Insecure,
		SamplingRate: tr.SamplingRate,
		ServiceName:  tr.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	state, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		return err
	}
	defer state.Close()

	adapter := transporthttp.NewAdapter(state, transporthttp.Config{
		MaxBodySize:    cfg.Server.MaxBodyBytes,
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
		Tracer:         tracing.Tracer(),
	})

	srv := transporthttp.NewServer(adapter.Handler(),
		transporthttp.WithAddr(cfg.Server.Addr()),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(logger),
	)
	return srv.ListenAndServe()
}
