package http

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/app"
	"github.com/rhuss/chatserver/pkg/auth"
	"github.com/rhuss/chatserver/pkg/auth/bearer"
	"github.com/rhuss/chatserver/pkg/observability"
	"github.com/rhuss/chatserver/pkg/transport"
)

// timingPassword is hashed once so that logins for unknown emails spend
// the same Argon2id work as logins with a wrong password.
const timingPassword = "chat-server-unknown-account"

// timingHash caches the hash of timingPassword. Only a successful hash is
// kept, so a transient entropy failure is retried on the next login.
type timingHash struct {
	mu      sync.Mutex
	hash    func(string) (string, error)
	encoded string
}

func (t *timingHash) get() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.encoded != "" {
		return t.encoded, nil
	}
	encoded, err := t.hash(timingPassword)
	if err != nil {
		return "", err
	}
	t.encoded = encoded
	return encoded, nil
}

// Adapter serves the chat API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	state      *app.State
	mux        *http.ServeMux
	config     Config
	logger     *slog.Logger
	validation api.ValidationConfig
	dummyHash  *timingHash
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize    int64
	MetricsEnabled bool
	MetricsPath    string

	// Tracer opens the server span for each request. Defaults to a noop
	// tracer.
	Tracer trace.Tracer
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    1 << 20, // 1 MiB
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

// NewAdapter creates an HTTP adapter backed by the shared runtime state.
func NewAdapter(state *app.State, cfg Config) *Adapter {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultConfig().MetricsPath
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}

	a := &Adapter{
		state:      state,
		mux:        http.NewServeMux(),
		config:     cfg,
		logger:     state.Logger(),
		validation: api.DefaultValidationConfig(),
	}
	a.dummyHash = &timingHash{hash: state.Hasher().Hash}

	gate := auth.Middleware(&auth.AuthChain{
		Authenticators:  []auth.Authenticator{bearer.New(state.Verifier())},
		DefaultDecision: auth.No,
	}, a.logger)
	protected := func(h http.HandlerFunc) http.Handler { return gate(h) }

	// Public routes.
	a.mux.HandleFunc("GET /{$}", a.handleIndex)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	if cfg.MetricsEnabled {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}
	a.mux.HandleFunc("POST /api/register", a.handleRegister)
	a.mux.HandleFunc("POST /api/login", a.handleLogin)
	a.mux.HandleFunc("POST /api/logout", a.handleLogout)

	// Protected routes.
	a.mux.Handle("GET /api/me", protected(a.handleMe))
	a.mux.Handle("GET /api/chat", protected(a.placeholder("chat_list")))
	a.mux.Handle("POST /api/chat", protected(a.placeholder("chat_create")))
	a.mux.Handle("PATCH /api/chat/{id}", protected(a.placeholder("chat_update")))
	a.mux.Handle("DELETE /api/chat/{id}", protected(a.placeholder("chat_delete")))
	a.mux.Handle("GET /api/chat/{id}/message", protected(a.placeholder("message_list")))
	a.mux.Handle("POST /api/chat/{id}/message", protected(a.placeholder("message_create")))

	return a
}

// Handler returns the routes wrapped in the full middleware stack. Use
// this to integrate with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return transport.Chain(
		observability.MetricsMiddleware,
		transport.Trace(a.config.Tracer, a.logger),
		transport.Compress(),
		transport.RequestID(a.logger),
		transport.ServerTime(a.logger),
		transport.Recovery(a.logger),
	)(a.mux)
}
