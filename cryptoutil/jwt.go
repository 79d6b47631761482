package cryptoutil

import (
	"encoding/json"
	"errors"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// ErrInvalidToken is the single sentinel returned for every JWT
// verification failure — malformed compact serialization, bad signature,
// wrong issuer, or expiry — so that callers can't use error content as a
// signature oracle.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the minimal claim set this server signs into access tokens.
// Fields mirror RFC 7519's registered claims plus the agent-specific
// client_id/model/scope the token service binds tokens to.
type Claims struct {
	Subject  string `json:"sub"`
	ClientID string `json:"client_id"`
	Model    string `json:"model,omitempty"`
	Scope    string `json:"scope,omitempty"`
	IssuedAt int64  `json:"iat"`
	Expiry   int64  `json:"exp"`
	Issuer   string `json:"iss"`
}

// SignJWT produces a compact HS256-signed JWT (header.payload.signature,
// base64url without padding) over claims using key.
func SignJWT(claims Claims, key []byte) (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return signature.CompactSerialize()
}

// VerifyJWT verifies the signature, issuer, and expiry of a compact JWT.
// Any failure — parse, signature, issuer mismatch, or exp <= now —
// collapses to ErrInvalidToken; the caller cannot distinguish the cause,
// by design, to avoid giving an attacker an oracle on which check failed.
func VerifyJWT(compact string, key []byte, expectedIssuer string) (Claims, error) {
	jws, err := jose.ParseSigned(compact, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}

	if claims.Issuer != expectedIssuer {
		return Claims{}, ErrInvalidToken
	}
	if claims.Expiry <= time.Now().Unix() {
		return Claims{}, ErrInvalidToken
	}

	return claims, nil
}
