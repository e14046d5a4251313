package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/chatserver/pkg/api"
	"github.com/rhuss/chatserver/pkg/auth"
	"github.com/rhuss/chatserver/pkg/observability"
	"github.com/rhuss/chatserver/pkg/ratelimit"
	"github.com/rhuss/chatserver/pkg/storage"
	"github.com/rhuss/chatserver/pkg/transport"
)

// Login outcomes recorded in chat_login_attempts_total.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeLimited            = "limited"
	outcomeError              = "error"
)

// errBadCredentials is the single message for unknown email and wrong
// password, so responses do not reveal which accounts exist.
const errBadCredentials = "invalid email or password"

func (a *Adapter) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "index")
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok\n")
}

// handleReadyz reports whether the credential store is reachable.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.state.Store().HealthCheck(r.Context()); err != nil {
		a.logger.WarnContext(r.Context(), "readiness check failed", slog.String("error", err.Error()))
		transport.WriteAPIError(w, api.NewUnavailableError("credential store unavailable"))
		return
	}
	writeText(w, http.StatusOK, "ready\n")
}

// handleRegister handles POST /api/register.
func (a *Adapter) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req api.CreateUser
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if apiErr := api.ValidateCreateUser(&req, a.validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	hash, err := a.state.Hasher().Hash(req.Password)
	if err != nil {
		a.writeError(w, r, "hashing password", err)
		return
	}

	user, err := a.state.Store().CreateUser(r.Context(), storage.NewUser{
		Fullname:     req.Fullname,
		Email:        req.Email,
		PasswordHash: hash,
	})
	if err != nil {
		a.writeError(w, r, "creating user", err)
		return
	}

	tok, err := a.state.Signer().Sign(user.Redact())
	if err != nil {
		a.writeError(w, r, "signing token", err)
		return
	}

	a.logger.InfoContext(r.Context(), "user registered",
		slog.String("request_id", transport.RequestIDFromContext(r.Context())),
		slog.Int64("user_id", user.ID),
	)
	transport.WriteJSON(w, http.StatusCreated, api.TokenResponse{Token: tok})
}

// handleLogin handles POST /api/login.
func (a *Adapter) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginUser
	if !a.decodeJSON(w, r, &req) {
		return
	}
	if apiErr := api.ValidateLoginUser(&req, a.validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	ctx := r.Context()

	if err := a.state.Limiter().Allow(ctx, req.Email); err != nil {
		var le *ratelimit.LimitError
		if errors.As(err, &le) {
			observability.LoginAttemptsTotal.WithLabelValues(outcomeLimited).Inc()
			a.logger.WarnContext(ctx, "login attempts limited",
				slog.String("request_id", transport.RequestIDFromContext(ctx)),
				slog.Duration("retry_after", le.RetryAfter),
			)
			w.Header().Set("Retry-After", retryAfterSeconds(le))
			transport.WriteAPIError(w, api.NewTooManyRequestsError("too many login attempts"))
			return
		}
		observability.LoginAttemptsTotal.WithLabelValues(outcomeError).Inc()
		a.writeError(w, r, "checking login limit", err)
		return
	}

	user, err := a.state.Store().FindByEmail(ctx, req.Email)
	if err != nil {
		observability.LoginAttemptsTotal.WithLabelValues(outcomeError).Inc()
		a.writeError(w, r, "finding user", err)
		return
	}

	encoded := ""
	if user != nil {
		encoded = user.PasswordHash
	} else if encoded, err = a.dummyHash.get(); err != nil {
		observability.LoginAttemptsTotal.WithLabelValues(outcomeError).Inc()
		a.writeError(w, r, "hashing timing password", err)
		return
	}

	ok, err := a.state.Hasher().Verify(req.Password, encoded)
	if err != nil {
		observability.LoginAttemptsTotal.WithLabelValues(outcomeError).Inc()
		a.writeError(w, r, "verifying password", err)
		return
	}
	if !ok || user == nil {
		observability.LoginAttemptsTotal.WithLabelValues(outcomeInvalidCredentials).Inc()
		transport.WriteAPIError(w, api.NewUnauthorizedError(errBadCredentials))
		return
	}

	if a.state.Hasher().NeedsRehash(user.PasswordHash) {
		a.logger.InfoContext(ctx, "password hash uses outdated parameters", slog.Int64("user_id", user.ID))
	}
	if err := a.state.Limiter().Reset(ctx, req.Email); err != nil {
		a.logger.WarnContext(ctx, "resetting login limiter", slog.String("error", err.Error()))
	}

	tok, err := a.state.Signer().Sign(user.Redact())
	if err != nil {
		observability.LoginAttemptsTotal.WithLabelValues(outcomeError).Inc()
		a.writeError(w, r, "signing token", err)
		return
	}

	observability.LoginAttemptsTotal.WithLabelValues(outcomeSuccess).Inc()
	transport.WriteJSON(w, http.StatusOK, api.TokenResponse{Token: tok})
}

// handleLogout handles POST /api/logout. Tokens are stateless, so there
// is nothing to invalidate server-side; the client discards its token.
func (a *Adapter) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "logout")
}

// handleMe returns the verified identity of the caller.
func (a *Adapter) handleMe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError(auth.ErrUnauthenticated.Error()))
		return
	}
	transport.WriteJSON(w, http.StatusOK, user)
}

// placeholder serves a protected chat route whose business logic lives
// outside this server core. It answers with the operation name.
func (a *Adapter) placeholder(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw := r.PathValue("id"); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err != nil || id <= 0 {
				transport.WriteAPIError(w, api.NewInvalidRequestError("id", "id must be a positive integer"))
				return
			}
		}
		var caller int64
		if user := auth.UserFromContext(r.Context()); user != nil {
			caller = user.ID
		}
		a.logger.DebugContext(r.Context(), "chat operation",
			slog.String("op", op),
			slog.Int64("user_id", caller),
		)
		writeText(w, http.StatusOK, op)
	}
}

// decodeJSON decodes the request body into v, writing the error response
// and returning false on failure.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSONMediaType(ct) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON body"))
		return false
	}
	return true
}

func isJSONMediaType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func retryAfterSeconds(le *ratelimit.LimitError) string {
	secs := int64(math.Ceil(le.RetryAfter.Seconds()))
	return strconv.FormatInt(max(secs, 1), 10)
}
