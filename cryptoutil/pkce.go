package cryptoutil

import (
	"crypto/sha256"
	"encoding/base64"
)

// MethodS256 is the only PKCE challenge method OAuth 2.1 permits;
// "plain" is rejected.
const MethodS256 = "S256"

// VerifyPKCE reports whether verifier reduces to challenge under method.
// It returns false for any method other than S256 — OAuth 2.1 forbids
// "plain" and this server never accepted it in the first place.
func VerifyPKCE(verifier, challenge, method string) bool {
	if method != MethodS256 {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return computed == challenge
}
