// Package token issues and verifies the bearer tokens handed out at login.
//
// Tokens are EdDSA (Ed25519) signed JWTs. The issuing side holds the private
// key and only the [Signer] can mint tokens; the [Verifier] needs nothing
// but the public key, so it can be deployed to services that must never be
// able to issue credentials.
//
// Every token carries the account identity (id, fullname, email,
// created_at), the fixed issuer and audience labels, and an expiry seven
// days after issuance. Verification collapses every failure into
// [ErrTokenInvalid] so callers cannot learn which check rejected a token.
package token

import (
	"errors"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/chatserver/pkg/api"
)

const (
	// Issuer is the iss label stamped on and required of every token.
	Issuer = "chat_server"

	// Audience is the aud label stamped on and required of every token.
	Audience = "chat_web"

	// Lifetime is how long a token stays valid after issuance.
	Lifetime = 7 * 24 * time.Hour
)

var (
	// ErrTokenInvalid is matched by every verification failure.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrSigning is returned when a token cannot be produced.
	ErrSigning = errors.New("token signing failed")

	// ErrKeyMaterial is returned when PEM input is not an Ed25519 key of
	// the expected kind.
	ErrKeyMaterial = errors.New("invalid key material")
)

// InvalidError is the error returned by Verifier.Verify. Its message is
// always the same; Cause holds the rejected check for server-side logs.
type InvalidError struct {
	Cause error
}

func (e *InvalidError) Error() string { return ErrTokenInvalid.Error() }

// Is makes errors.Is(err, ErrTokenInvalid) hold without exposing Cause
// through Unwrap.
func (e *InvalidError) Is(target error) bool { return target == ErrTokenInvalid }

// Claims is the JWT payload: the account identity plus registered claims.
type Claims struct {
	ID        int64     `json:"id"`
	Fullname  string    `json:"fullname"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	jwtlib.RegisteredClaims
}

// User returns the identity carried by the claims. The result never has a
// password hash.
func (c *Claims) User() *api.User {
	return &api.User{
		ID:        c.ID,
		Fullname:  c.Fullname,
		Email:     c.Email,
		CreatedAt: c.CreatedAt,
	}
}

func newClaims(u *api.User, now time.Time) *Claims {
	return &Claims{
		ID:        u.ID,
		Fullname:  u.Fullname,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			Audience:  jwtlib.ClaimStrings{Audience},
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(Lifetime)),
		},
	}
}
