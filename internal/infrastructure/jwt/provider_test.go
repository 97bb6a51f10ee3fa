package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeys(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM
}

func TestSignVerify_RoundTrip(t *testing.T) {
	priv, pub := testKeys(t)
	p, err := NewProviderFromPEM(priv, pub, time.Hour)
	require.NoError(t, err)

	tok, exp, err := p.Sign("admin", "admin")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
}

func TestVerify_Expired(t *testing.T) {
	priv, pub := testKeys(t)
	p, err := NewProviderFromPEM(priv, pub, time.Minute)
	require.NoError(t, err)
	p.now = func() time.Time { return time.Now().Add(-time.Hour) }

	tok, _, err := p.Sign("admin", "admin")
	require.NoError(t, err)
	_, err = p.Verify(tok)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_WrongKey(t *testing.T) {
	priv, pub := testKeys(t)
	_, otherPub := testKeys(t)
	signer, err := NewProviderFromPEM(priv, pub, time.Hour)
	require.NoError(t, err)
	verifier, err := NewProviderFromPEM(priv, otherPub, time.Hour)
	require.NoError(t, err)

	tok, _, err := signer.Sign("admin", "admin")
	require.NoError(t, err)
	_, err = verifier.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_RejectsHMAC(t *testing.T) {
	priv, pub := testKeys(t)
	p, err := NewProviderFromPEM(priv, pub, time.Hour)
	require.NoError(t, err)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = p.Verify(tok)
	assert.Error(t, err)
}

func TestNewProviderFromPEM_Garbage(t *testing.T) {
	_, err := NewProviderFromPEM([]byte("nope"), []byte("nope"), time.Hour)
	assert.ErrorContains(t, err, "parse private key")
}
