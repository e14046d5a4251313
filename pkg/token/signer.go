package token

import (
	"crypto/ed25519"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/chatserver/pkg/api"
)

// Option configures a Signer or Verifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for iat/exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Signer mints tokens with an Ed25519 private key. It is immutable and safe
// for concurrent use.
type Signer struct {
	key ed25519.PrivateKey
	now func() time.Time
}

// LoadSigner parses a PKCS#8 PEM Ed25519 private key.
func LoadSigner(pemData []byte, opts ...Option) (*Signer, error) {
	key, err := parsePrivateKey(pemData)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, opts...), nil
}

// NewSigner creates a Signer for an already-parsed key.
func NewSigner(key ed25519.PrivateKey, opts ...Option) *Signer {
	o := buildOptions(opts)
	return &Signer{key: key, now: o.now}
}

// Sign issues a token for u. Only the identity fields of u are embedded.
func (s *Signer) Sign(u *api.User) (string, error) {
	if u == nil {
		return "", fmt.Errorf("%w: nil user", ErrSigning)
	}
	claims := newClaims(u, s.now())
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodEdDSA, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// PublicKey returns the verification half of the signing key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Pairs reports whether v verifies tokens minted by s.
func (s *Signer) Pairs(v *Verifier) bool {
	return v != nil && s.PublicKey().Equal(v.key)
}
