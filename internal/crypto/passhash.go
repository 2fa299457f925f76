// Package crypto implements server-side password hashing and verification.
//
// The user file stores a bare hex SHA-256 digest with no salt column, so the
// hash must stay deterministic. Known weakness: equal passwords produce equal
// hashes and the digest is fast to brute-force. Kept deliberately for
// compatibility with existing user files rather than fixed silently.
package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashPassword returns the hex-encoded SHA-256 digest of the password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword compares the password against a stored hex digest in
// constant time.
func VerifyPassword(password, expectedHex string) bool {
	got := HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expectedHex)) == 1
}
