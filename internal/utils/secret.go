package utils // package utils provides password hashing and one-time secret helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// SecureTokenBytes is the amount of random data behind every emailed token.
// Hex encoding doubles it, so links carry 64 characters.
const SecureTokenBytes = 32

// GenerateSecureToken returns a random token for an email link together with
// the digest that goes to the database. Only the digest is ever persisted;
// the raw value leaves the process once, inside the email.
func GenerateSecureToken() (raw, hash string, err error) {
	raw, err = randomHex(SecureTokenBytes)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// HashToken returns the SHA-256 hex digest of a raw token. Lookups hash the
// presented value again and compare digests, so the same input always maps
// to the same stored value.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RandomState returns an unguessable value for the OAuth state cookie.
func RandomState() (string, error) {
	return randomHex(16)
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
