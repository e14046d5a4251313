// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are encoded as PHC strings so that the algorithm, version, cost
// parameters, salt, and digest travel together:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<digest>
//
// Salt and digest use unpadded standard base64. Verification always uses the
// parameters embedded in the stored string, so cost can be raised for new
// hashes without invalidating existing ones.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithm = "argon2id"

var (
	// ErrHashing is returned when a hash cannot be produced or checked.
	ErrHashing = errors.New("password hashing failed")

	// ErrMalformedHash is returned by Verify for strings that are not
	// argon2id PHC hashes. It wraps ErrHashing.
	ErrMalformedHash = fmt.Errorf("%w: malformed hash", ErrHashing)
)

// Params are the Argon2id cost parameters.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  int
	KeyLength   uint32
}

// DefaultParams returns the OWASP minimum recommendation for Argon2id.
func DefaultParams() Params {
	return Params{
		Memory:      19456,
		Iterations:  2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate reports whether every parameter is usable.
func (p Params) Validate() error {
	var errs []error
	if p.Memory == 0 {
		errs = append(errs, errors.New("memory must be positive"))
	}
	if p.Iterations == 0 {
		errs = append(errs, errors.New("iterations must be positive"))
	}
	if p.Parallelism == 0 {
		errs = append(errs, errors.New("parallelism must be positive"))
	}
	if p.SaltLength < 8 {
		errs = append(errs, errors.New("salt length must be at least 8 bytes"))
	}
	if p.KeyLength < 16 {
		errs = append(errs, errors.New("key length must be at least 16 bytes"))
	}
	return errors.Join(errs...)
}

// Hasher produces and checks password hashes. The zero value is not usable;
// construct one with New. A Hasher is safe for concurrent use.
type Hasher struct {
	params Params
	rand   io.Reader
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithRandom replaces the salt source. It exists for tests.
func WithRandom(r io.Reader) Option {
	return func(h *Hasher) { h.rand = r }
}

// New creates a Hasher with the given parameters.
func New(params Params, opts ...Option) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid argon2id parameters: %w", err)
	}
	h := &Hasher{params: params, rand: rand.Reader}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Hash derives a fresh salted hash of plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("%w: reading salt: %v", ErrHashing, err)
	}
	p := h.params
	key := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	defer clear(key)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version,
		p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches encoded. A mismatch is (false, nil);
// an unparseable encoded string is ErrMalformedHash.
func (h *Hasher) Verify(plaintext, encoded string) (bool, error) {
	p, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	defer clear(got)

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other
// than the Hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, salt, key, err := decode(encoded)
	if err != nil {
		return true
	}
	return p.Memory != h.params.Memory ||
		p.Iterations != h.params.Iterations ||
		p.Parallelism != h.params.Parallelism ||
		len(salt) != h.params.SaltLength ||
		len(key) != int(h.params.KeyLength)
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params
	// Leading "$" yields an empty first field.
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return p, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrMalformedHash
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrMalformedHash
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrMalformedHash
	}
	p.SaltLength = len(salt)
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
