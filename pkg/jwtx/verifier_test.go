package jwtx

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, priv ed25519.PrivateKey, claims Claims) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, &claims).SignedString(priv)
	require.NoError(t, err)
	return raw
}

func testClaims(issuer string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "alice@example.com",
		Admin: true,
		Role:  "admin",
	}
}

func TestKeyVerifier(t *testing.T) {
	t.Parallel()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	verifier, err := NewVerifierForKey(pub, "idp")
	require.NoError(t, err)

	t.Run("accepts a valid token and surfaces claims", func(t *testing.T) {
		claims, err := verifier.Verify(mintToken(t, priv, testClaims("idp")))
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)
		require.Equal(t, "alice@example.com", claims.Email)
		require.True(t, claims.Admin)
		require.Equal(t, "admin", claims.Role)
	})

	t.Run("rejects a foreign issuer", func(t *testing.T) {
		_, err := verifier.Verify(mintToken(t, priv, testClaims("someone-else")))
		require.ErrorIs(t, err, ErrIssuer)
	})

	t.Run("rejects a token signed by another key", func(t *testing.T) {
		_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		_, err = verifier.Verify(mintToken(t, otherPriv, testClaims("idp")))
		require.Error(t, err)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := verifier.Verify("not.a.jwt")
		require.Error(t, err)
	})

	t.Run("rejects alg confusion", func(t *testing.T) {
		// Unsigned token claiming "none".
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims("idp")).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = verifier.Verify(unsigned)
		require.Error(t, err)
	})
}

func TestValidateExpiry(t *testing.T) {
	t.Parallel()

	t.Run("expired token", func(t *testing.T) {
		c := Claims{RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		require.ErrorIs(t, c.ValidateExpiry(), ErrExpired)
	})

	t.Run("not yet valid token", func(t *testing.T) {
		c := Claims{RegisteredClaims: jwt.RegisteredClaims{
			NotBefore: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		require.ErrorIs(t, c.ValidateExpiry(), ErrExpired)
	})

	t.Run("token without bounds passes", func(t *testing.T) {
		var c Claims
		require.NoError(t, c.ValidateExpiry())
	})
}
