package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a raw compact JWT and returns its claims.
type Verifier interface {
	Verify(raw string) (Claims, error)
}

// KeyVerifier verifies tokens against a single trusted public key from
// the identity provider. The accepted algorithm is fixed by the key
// type so an attacker cannot downgrade it.
type KeyVerifier struct {
	key    crypto.PublicKey
	method string
	issuer string
}

// NewVerifier builds a KeyVerifier from a PEM-encoded PKIX public key.
// Ed25519, ECDSA P-256 and RSA keys are supported. If issuer is
// non-empty, tokens must carry it.
func NewVerifier(pemBytes []byte, issuer string) (*KeyVerifier, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("jwtx: no PEM block in verification key")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse verification key: %w", err)
	}

	var method string
	switch pub.(type) {
	case ed25519.PublicKey:
		method = "EdDSA"
	case *ecdsa.PublicKey:
		method = "ES256"
	case *rsa.PublicKey:
		method = "RS256"
	default:
		return nil, fmt.Errorf("jwtx: unsupported key type %T", pub)
	}

	return &KeyVerifier{key: pub, method: method, issuer: issuer}, nil
}

// NewVerifierForKey builds a KeyVerifier directly from a public key,
// mainly for tests that mint their own tokens.
func NewVerifierForKey(pub crypto.PublicKey, issuer string) (*KeyVerifier, error) {
	pemBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("jwtx: marshal key: %w", err)
	}
	return NewVerifier(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pemBytes}), issuer)
}

func (v *KeyVerifier) Verify(raw string) (Claims, error) {
	var claims Claims

	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.method {
			return nil, fmt.Errorf("jwtx: unexpected signing method %q", t.Method.Alg())
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{v.method}))
	if err != nil {
		return Claims{}, err
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
