package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/app"
	"github.com/rhuss/chatserver/pkg/config"
	"github.com/rhuss/chatserver/pkg/ratelimit"
	"github.com/rhuss/chatserver/pkg/storage"
	"github.com/rhuss/chatserver/pkg/storage/memory"
	"github.com/rhuss/chatserver/pkg/token"
	"github.com/rhuss/chatserver/pkg/transport"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	privPEM, pubPEM, err := token.GenerateKeyPEM()
	if err != nil {
		t.Fatalf("GenerateKeyPEM: %v", err)
	}
	cfg := config.Defaults()
	cfg.Auth.SigningKey = string(privPEM)
	cfg.Auth.VerifyingKey = string(pubPEM)
	cfg.Auth.Hash = config.HashConfig{Memory: 64, Iterations: 1, Parallelism: 1}
	return &cfg
}

func newTestState(t *testing.T, cfg *config.Config, opts ...app.Option) *app.State {
	t.Helper()
	opts = append([]app.Option{app.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	state, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { state.Close() })
	return state
}

func newTestHandler(t *testing.T, opts ...app.Option) http.Handler {
	t.Helper()
	return NewAdapter(newTestState(t, testConfig(t), opts...), DefaultConfig()).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal error: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.TokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	return resp.Token
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error response: %v (body %q)", err, rec.Body.String())
	}
	return resp.Error
}

func register(fullname, email, password string) api.CreateUser {
	return api.CreateUser{Fullname: fullname, Email: email, Password: password}
}

func TestRegisterLoginScenario(t *testing.T) {
	cfg := testConfig(t)
	state := newTestState(t, cfg)
	h := NewAdapter(state, DefaultConfig()).Handler()

	rec := do(t, h, "POST", "/api/register", register("Alice", "a@example.com", "secret123"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	decodeToken(t, rec)

	rec = do(t, h, "POST", "/api/login", api.LoginUser{Email: "a@example.com", Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	claims, err := state.Verifier().Verify(decodeToken(t, rec))
	if err != nil {
		t.Fatalf("login token does not verify: %v", err)
	}
	if claims.Email != "a@example.com" || claims.Fullname != "Alice" {
		t.Errorf("claims = %+v", claims)
	}

	rec = do(t, h, "POST", "/api/login", api.LoginUser{Email: "a@example.com", Password: "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: status = %d, want 401", rec.Code)
	}
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	h := newTestHandler(t)
	do(t, h, "POST", "/api/register", register("Bob", "bob@example.com", "secret123"))

	unknown := do(t, h, "POST", "/api/login", api.LoginUser{Email: "nobody@example.com", Password: "secret123"})
	wrong := do(t, h, "POST", "/api/login", api.LoginUser{Email: "bob@example.com", Password: "nope12345"})

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d, want 401, 401", unknown.Code, wrong.Code)
	}
	if a, b := decodeAPIError(t, unknown).Message, decodeAPIError(t, wrong).Message; a != b {
		t.Errorf("messages differ: %q vs %q", a, b)
	}
}

func TestLoginUnknownEmailRetriesFailedTimingHash(t *testing.T) {
	state := newTestState(t, testConfig(t))
	a := NewAdapter(state, DefaultConfig())
	calls := 0
	a.dummyHash.hash = func(p string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("entropy source unavailable")
		}
		return state.Hasher().Hash(p)
	}
	h := a.Handler()
	login := api.LoginUser{Email: "nobody@example.com", Password: "secret123"}

	if rec := do(t, h, "POST", "/api/login", login); rec.Code != http.StatusInternalServerError {
		t.Fatalf("first login status = %d, want 500", rec.Code)
	}
	for i := range 2 {
		if rec := do(t, h, "POST", "/api/login", login); rec.Code != http.StatusUnauthorized {
			t.Fatalf("login %d status = %d, want 401", i+2, rec.Code)
		}
	}
	if calls != 2 {
		t.Errorf("timing hash computed %d times, want 2", calls)
	}
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	h := newTestHandler(t)
	do(t, h, "POST", "/api/register", register("Carol", "Carol@Example.com", "secret123"))

	rec := do(t, h, "POST", "/api/login", api.LoginUser{Email: "carol@example.COM", Password: "secret123"})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newTestHandler(t)

	if rec := do(t, h, "POST", "/api/register", register("Dan", "dan@example.com", "secret123")); rec.Code != http.StatusCreated {
		t.Fatalf("first register: status = %d", rec.Code)
	}
	rec := do(t, h, "POST", "/api/register", register("Dan Again", "DAN@example.com", "other-secret"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status = %d, want 409", rec.Code)
	}
	apiErr := decodeAPIError(t, rec)
	if apiErr.Type != api.ErrorTypeConflict || apiErr.Param != "email" {
		t.Errorf("error = %+v", apiErr)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name  string
		body  any
		param string
	}{
		{"missing fullname", register("", "e@example.com", "secret123"), "fullname"},
		{"bad email", register("Eve", "not-an-email", "secret123"), "email"},
		{"short password", register("Eve", "e@example.com", "short"), "password"},
		{"invalid json", `{"fullname":`, "body"},
		{"unknown field", `{"fullname":"Eve","email":"e@example.com","password":"secret123","admin":true}`, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/register", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeAPIError(t, rec).Param; got != tt.param {
				t.Errorf("param = %q, want %q", got, tt.param)
			}
		})
	}
}

func TestRegisterWrongContentType(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, "POST", "/api/register", register("F", "f@example.com", "secret123"), "Content-Type", "text/plain")
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestRegisterBodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 64
	h := NewAdapter(newTestState(t, testConfig(t)), cfg).Handler()

	rec := do(t, h, "POST", "/api/register", register(strings.Repeat("x", 100), "g@example.com", "secret123"))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestProtectedRouteWithoutToken(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, "GET", "/api/chat", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "chat_list") {
		t.Error("downstream handler must not run")
	}
	if rec.Header().Get(transport.RequestIDHeader) == "" || rec.Header().Get(transport.ServerTimeHeader) == "" {
		t.Error("rejected responses still carry instrumentation headers")
	}
}

func TestProtectedRouteWithInvalidToken(t *testing.T) {
	h := newTestHandler(t)

	rec := do(t, h, "GET", "/api/chat", nil, "Authorization", "Bearer not.a.token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if msg := decodeAPIError(t, rec).Message; msg != "failed to verify token" {
		t.Errorf("message = %q", msg)
	}
}

func TestProtectedRoutes(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, "POST", "/api/register", register("Hank", "h@example.com", "secret123"))
	bearer := "Bearer " + decodeToken(t, rec)

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/api/chat", "chat_list"},
		{"POST", "/api/chat", "chat_create"},
		{"PATCH", "/api/chat/1", "chat_update"},
		{"DELETE", "/api/chat/1", "chat_delete"},
		{"GET", "/api/chat/1/message", "message_list"},
		{"POST", "/api/chat/1/message", "message_create"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, nil, "Authorization", bearer)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
			}
			if rec.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestProtectedRouteBadID(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, "POST", "/api/register", register("Ivy", "i@example.com", "secret123"))
	bearer := "Bearer " + decodeToken(t, rec)

	rec = do(t, h, "PATCH", "/api/chat/abc", nil, "Authorization", bearer)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestMeReturnsVerifiedClaims(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, "POST", "/api/register", register("Jo", "jo@example.com", "secret123"))
	bearer := "Bearer " + decodeToken(t, rec)

	rec = do(t, h, "GET", "/api/me", nil, "Authorization", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "argon2id") || strings.Contains(strings.ToLower(body), "password") {
		t.Errorf("identity leaked credential material: %s", body)
	}
	var user api.User
	if err := json.Unmarshal([]byte(body), &user); err != nil {
		t.Fatalf("decoding user: %v", err)
	}
	if user.Email != "jo@example.com" || user.ID == 0 {
		t.Errorf("user = %+v", user)
	}
}

func TestPublicRoutes(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{"GET", "/", http.StatusOK, "index"},
		{"GET", "/healthz", http.StatusOK, "ok\n"},
		{"GET", "/readyz", http.StatusOK, "ready\n"},
		{"POST", "/api/logout", http.StatusOK, "logout"},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, nil)
		if rec.Code != tt.status || rec.Body.String() != tt.body {
			t.Errorf("%s %s = %d %q, want %d %q", tt.method, tt.path, rec.Code, rec.Body.String(), tt.status, tt.body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t)
	do(t, h, "GET", "/api/chat", nil)

	rec := do(t, h, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, name := range []string{"chat_requests_total", "chat_auth_failures_total"} {
		if !strings.Contains(rec.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsEnabled = false
	h := NewAdapter(newTestState(t, testConfig(t)), cfg).Handler()

	if rec := do(t, h, "GET", "/metrics", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInstrumentationHeaders(t *testing.T) {
	h := newTestHandler(t)

	a := do(t, h, "GET", "/", nil)
	b := do(t, h, "GET", "/", nil)

	idA, idB := a.Header().Get(transport.RequestIDHeader), b.Header().Get(transport.RequestIDHeader)
	if idA == "" || idA == idB {
		t.Errorf("request ids %q and %q should be distinct and non-empty", idA, idB)
	}
	if v := a.Header().Get(transport.ServerTimeHeader); !strings.HasSuffix(v, "us") {
		t.Errorf("X-Server-Time = %q", v)
	}

	echo := do(t, h, "GET", "/", nil, transport.RequestIDHeader, "trace-me")
	if got := echo.Header().Get(transport.RequestIDHeader); got != "trace-me" {
		t.Errorf("inbound id not reused: %q", got)
	}
}

func TestResponsesAreCompressed(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, "POST", "/api/register", register("Kim", "k@example.com", "secret123"), "Accept-Encoding", "gzip")

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var resp api.TokenResponse
	if err := json.NewDecoder(zr).Decode(&resp); err != nil || resp.Token == "" {
		t.Errorf("decoding compressed token: %v", err)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newTestHandler(t, app.WithLimiter(ratelimit.NewMemory(2, time.Minute)))
	do(t, h, "POST", "/api/register", register("Lee", "lee@example.com", "secret123"))

	for range 2 {
		do(t, h, "POST", "/api/login", api.LoginUser{Email: "lee@example.com", Password: "bad-guess"})
	}
	rec := do(t, h, "POST", "/api/login", api.LoginUser{Email: "lee@example.com", Password: "secret123"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestLoginSuccessResetsLimiter(t *testing.T) {
	h := newTestHandler(t, app.WithLimiter(ratelimit.NewMemory(2, time.Minute)))
	do(t, h, "POST", "/api/register", register("Max", "max@example.com", "secret123"))

	for range 4 {
		rec := do(t, h, "POST", "/api/login", api.LoginUser{Email: "max@example.com", Password: "secret123"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	}
}

// failingStore fails every operation with a driver-level error.
type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) FindByEmail(context.Context, string) (*api.User, error) { return nil, f.err }

func (f *failingStore) CreateUser(context.Context, storage.NewUser) (*api.User, error) {
	return nil, f.err
}

func (f *failingStore) HealthCheck(context.Context) error { return f.err }

func TestPersistenceFailureIsGeneric(t *testing.T) {
	driverErr := errors.New(`pq: relation "users" does not exist`)
	h := newTestHandler(t, app.WithStore(&failingStore{Store: memory.New(), err: driverErr}))

	rec := do(t, h, "POST", "/api/register", register("Ned", "n@example.com", "secret123"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "relation") {
		t.Errorf("driver detail leaked: %s", rec.Body.String())
	}

	rec = do(t, h, "POST", "/api/login", api.LoginUser{Email: "n@example.com", Password: "secret123"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("login status = %d, want 500", rec.Code)
	}
}

func TestStoreUnavailable(t *testing.T) {
	h := newTestHandler(t, app.WithStore(&failingStore{Store: memory.New(), err: storage.ErrUnavailable}))

	rec := do(t, h, "POST", "/api/login", api.LoginUser{Email: "o@example.com", Password: "secret123"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	if rec := do(t, h, "GET", "/readyz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", rec.Code)
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want api.ErrorType
	}{
		{"conflict", storage.ErrConflict, api.ErrorTypeConflict},
		{"unavailable", storage.ErrUnavailable, api.ErrorTypeUnavailable},
		{"token", &token.InvalidError{}, api.ErrorTypeUnauthorized},
		{"api error", api.NewNotFoundError("chat not found"), api.ErrorTypeNotFound},
		{"unknown", errors.New("boom"), api.ErrorTypeServerError},
	}
	for _, tt := range tests {
		if got := toAPIError(tt.err).Type; got != tt.want {
			t.Errorf("%s: type = %q, want %q", tt.name, got, tt.want)
		}
	}
}
