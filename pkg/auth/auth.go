package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rhuss/chatserver/pkg/api"
)

// AuthDecision is the vote an authenticator casts on a request.
type AuthDecision int

const (
	// Yes means the credentials are valid. The chain stops and the
	// identity is used.
	Yes AuthDecision = iota

	// No means credentials are present but rejected. The chain stops and
	// the request fails with 401.
	No

	// Abstain means the authenticator does not recognize the credential
	// type. The next authenticator is asked.
	Abstain
)

func (d AuthDecision) String() string {
	switch d {
	case Yes:
		return "yes"
	case No:
		return "no"
	case Abstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set when Decision == Yes
	Err      error     // set when Decision == No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject is the account id from the token (required, non-empty).
	Subject string

	// User holds the verified token claims. It never carries a password hash.
	User *api.User
}

// Authenticator examines request credentials and votes.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, r *http.Request) AuthResult

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	return f(ctx, r)
}

var (
	// ErrUnauthenticated means no usable credentials were presented.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidCredentials means credentials were presented but rejected.
	ErrInvalidCredentials = errors.New("failed to verify token")
)

// AuthChain asks authenticators in order until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Use No
	// in production. Yes admits an anonymous identity and exists for
	// local development only.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain. A No vote without an error is reported as
// ErrInvalidCredentials so callers can always classify the rejection.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		switch result.Decision {
		case Abstain:
			continue
		case No:
			if result.Err == nil {
				result.Err = ErrInvalidCredentials
			}
		}
		return result
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", User: &api.User{}},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}
