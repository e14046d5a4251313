package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/observability"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp.Error
}

// authFailures reads chat_auth_failures_total for a reason.
func authFailures(t *testing.T, reason string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := observability.AuthFailuresTotal.WithLabelValues(reason).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMiddleware_NoAuth_Rejects(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}
	before := authFailures(t, "missing")

	called := false
	handler := Middleware(chain, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("downstream handler must not be invoked")
	}
	apiErr := decodeError(t, rec)
	if apiErr.Type != api.ErrorTypeUnauthorized || apiErr.Message != "authentication required" {
		t.Errorf("error = %+v", apiErr)
	}
	after := authFailures(t, "missing")
	if after-before != 1 {
		t.Errorf("missing failures delta = %v, want 1", after-before)
	}
}

func TestMiddleware_InvalidCredentials_Rejects(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	chain := &AuthChain{
		Authenticators: []Authenticator{
			vote(AuthResult{
				Decision: No,
				Err:      fmt.Errorf("%w: token has invalid claims: token is expired", ErrInvalidCredentials),
			}),
		},
		DefaultDecision: No,
	}

	called := false
	handler := Middleware(chain, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/chat", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("downstream handler must not be invoked")
	}
	apiErr := decodeError(t, rec)
	if apiErr.Message != "failed to verify token" {
		t.Errorf("message = %q, want %q", apiErr.Message, "failed to verify token")
	}
	if strings.Contains(rec.Body.String(), "expired") {
		t.Error("verification cause leaked to client")
	}
	if !strings.Contains(buf.String(), "token is expired") || !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected warning carrying the cause, got %q", buf.String())
	}
}

func TestMiddleware_ValidAuth_Passes(t *testing.T) {
	user := &api.User{ID: 1, Fullname: "Alice", Email: "alice@example.com"}
	chain := &AuthChain{
		Authenticators: []Authenticator{
			vote(AuthResult{
				Decision: Yes,
				Identity: &Identity{Subject: "1", User: user},
			}),
		},
		DefaultDecision: No,
	}

	var gotUser *api.User
	handler := Middleware(chain, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserFromContext(r.Context())
		id := IdentityFromContext(r.Context())
		if id == nil || id.Subject != "1" {
			t.Error("expected identity '1' in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("valid auth: status = %d, want 200", rec.Code)
	}
	if gotUser != user {
		t.Errorf("user = %v, want %v", gotUser, user)
	}
}

func TestMiddleware_EmptySubject_ServerError(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			vote(AuthResult{Decision: Yes, Identity: &Identity{}}),
		},
	}

	handler := Middleware(chain, slog.New(slog.DiscardHandler))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("downstream handler must not be invoked")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/chat", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
