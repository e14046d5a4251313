package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Verifier checks tokens against an Ed25519 public key. It is immutable and
// safe for concurrent use.
type Verifier struct {
	key    ed25519.PublicKey
	parser *jwtlib.Parser
}

// LoadVerifier parses a PKIX PEM Ed25519 public key.
func LoadVerifier(pemData []byte, opts ...Option) (*Verifier, error) {
	key, err := parsePublicKey(pemData)
	if err != nil {
		return nil, err
	}
	return NewVerifier(key, opts...), nil
}

// NewVerifier creates a Verifier for an already-parsed key.
func NewVerifier(key ed25519.PublicKey, opts ...Option) *Verifier {
	o := buildOptions(opts)
	return &Verifier{
		key: key,
		parser: jwtlib.NewParser(
			jwtlib.WithValidMethods([]string{jwtlib.SigningMethodEdDSA.Alg()}),
			jwtlib.WithIssuer(Issuer),
			jwtlib.WithAudience(Audience),
			jwtlib.WithExpirationRequired(),
			jwtlib.WithIssuedAt(),
			jwtlib.WithTimeFunc(o.now),
		),
	}
}

// Verify parses tokenString and returns its claims. Any failure is an
// *InvalidError.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := v.parser.ParseWithClaims(tokenString, claims, v.keyFunc)
	if err != nil {
		return nil, &InvalidError{Cause: err}
	}
	if !tok.Valid {
		return nil, &InvalidError{Cause: errors.New("token not valid")}
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwtlib.Token) (any, error) {
	if _, ok := t.Method.(*jwtlib.SigningMethodEd25519); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return v.key, nil
}
