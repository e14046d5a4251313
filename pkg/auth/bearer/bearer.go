// Package bearer provides an authenticator that validates the chat
// server's own Ed25519 session tokens from the Authorization header.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/chatserver/pkg/auth"
	"github.com/rhuss/chatserver/pkg/token"
)

// Verifier checks a compact token and returns its claims.
// *token.Verifier implements it.
type Verifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Authenticator validates bearer tokens issued at login or registration.
type Authenticator struct {
	verifier Verifier
}

// New creates a bearer authenticator backed by verifier.
func New(verifier Verifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Authenticate extracts a bearer token from the Authorization header,
// verifies it, and returns the identity it carries.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token empty, or rejected by the verifier
//   - Yes: valid token with populated Identity
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	scheme, tokenStr, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: empty bearer token", auth.ErrUnauthenticated),
		}
	}

	claims, err := a.verifier.Verify(tokenStr)
	if err != nil {
		cause := err
		var inv *token.InvalidError
		if errors.As(err, &inv) && inv.Cause != nil {
			cause = inv.Cause
		}
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: %v", auth.ErrInvalidCredentials, cause),
		}
	}

	if claims.Subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("%w: token missing subject", auth.ErrInvalidCredentials),
		}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject: claims.Subject,
			User:    claims.User(),
		},
	}
}
