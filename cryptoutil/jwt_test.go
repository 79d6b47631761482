package cryptoutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyJWTRoundTrip(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!")
	claims := Claims{
		Subject:  "agent-1",
		ClientID: "client-1",
		Model:    "gpt-5",
		Scope:    "openid profile",
		IssuedAt: time.Now().Unix(),
		Expiry:   time.Now().Add(time.Hour).Unix(),
		Issuer:   "https://auth.example.com",
	}

	token, err := SignJWT(claims, key)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := VerifyJWT(token, key, "https://auth.example.com")
	require.NoError(t, err)
	require.Equal(t, claims, got)
}

func TestVerifyJWTRejectsWrongKey(t *testing.T) {
	claims := Claims{Subject: "agent-1", Issuer: "https://auth.example.com", Expiry: time.Now().Add(time.Hour).Unix()}
	token, err := SignJWT(claims, []byte("key-one-32-bytes-long-exactly!!"))
	require.NoError(t, err)

	_, err = VerifyJWT(token, []byte("key-two-different-32-bytes-long"), "https://auth.example.com")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyJWTRejectsWrongIssuer(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!")
	claims := Claims{Subject: "agent-1", Issuer: "https://auth.example.com", Expiry: time.Now().Add(time.Hour).Unix()}
	token, err := SignJWT(claims, key)
	require.NoError(t, err)

	_, err = VerifyJWT(token, key, "https://not-the-issuer.example.com")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyJWTRejectsExpiredToken(t *testing.T) {
	key := []byte("test-signing-key-32-bytes-long!")
	claims := Claims{Subject: "agent-1", Issuer: "https://auth.example.com", Expiry: time.Now().Add(-time.Minute).Unix()}
	token, err := SignJWT(claims, key)
	require.NoError(t, err)

	_, err = VerifyJWT(token, key, "https://auth.example.com")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyJWTRejectsMalformedToken(t *testing.T) {
	_, err := VerifyJWT("not-a-jwt", []byte("key"), "https://auth.example.com")
	require.ErrorIs(t, err, ErrInvalidToken)
}
