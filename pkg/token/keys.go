package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func parsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	key, err := jwtlib.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing private key: %v", ErrKeyMaterial, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is %T, want ed25519", ErrKeyMaterial, key)
	}
	return priv, nil
}

func parsePublicKey(data []byte) (ed25519.PublicKey, error) {
	key, err := jwtlib.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing public key: %v", ErrKeyMaterial, err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is %T, want ed25519", ErrKeyMaterial, key)
	}
	return pub, nil
}

// GenerateKeyPEM creates a fresh Ed25519 key pair encoded as PKCS#8
// ("PRIVATE KEY") and PKIX ("PUBLIC KEY") PEM blocks, the same form
// `openssl genpkey -algorithm ed25519` produces.
func GenerateKeyPEM() (privatePEM, publicPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ed25519 key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding public key: %w", err)
	}
	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}
