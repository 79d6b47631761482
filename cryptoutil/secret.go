// Package cryptoutil implements the crypto primitives the rest of the
// server is built on: secret hashing, PKCE verification, JWT signing, and
// secure random generation. Every exported function is a pure function
// over byte strings, grounded on the teacher's use of bcrypt for
// storage.Password and go-jose for compact JWT serialization.
package cryptoutil

import "golang.org/x/crypto/bcrypt"

// MinBcryptCost matches the teacher's enforced floor on storage.Password
// hashes and is the cost HashSecret uses. VerifySecret does not check the
// cost of the hash it is given.
const MinBcryptCost = 10

// HashSecret returns a salted bcrypt hash of plaintext at MinBcryptCost.
// The salt and cost are encoded inside the returned string, as bcrypt
// always does.
func HashSecret(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), MinBcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret reports whether plaintext hashes to hash. bcrypt's own
// comparison is already constant-time in the number of matching bytes; any
// malformed hash is treated as a verification failure rather than an
// error, so callers never need to special-case parse failures.
func VerifySecret(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
