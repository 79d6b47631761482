package cryptoutil

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"io"
	"strings"
)

var idEncoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic(err)
	}
	return buf
}

// RandomID returns a random identifier of n random bytes, base32-encoded
// (lowercase, unpadded) and prefixed with prefix. Used for generated
// agent_id and client_id values; request and token IDs come from
// storage.NewID.
func RandomID(prefix string, n int) string {
	return prefix + strings.ToLower(idEncoding.EncodeToString(RandomBytes(n)))
}

// RandomURLSafeSecret returns a base64url (unpadded) encoding of n random
// bytes, suitable for agent/client secrets returned to the caller once.
func RandomURLSafeSecret(n int) string {
	return base64.RawURLEncoding.EncodeToString(RandomBytes(n))
}
