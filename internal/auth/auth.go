// Package auth verifies the guardian override password. Only the hash is
// ever stored or synced; the agent cannot recover the password.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Parameters shared with the guardian dashboard. Both sides must derive
// byte-identical hashes or pairing-era passwords stop working.
const (
	iterations = 480000
	keyLength  = 32
	salt       = "silencio_no_pc_salt"
)

// HashPassword derives the stored form of a password: PBKDF2-SHA256 with a
// fixed salt, encoded as unpadded URL-safe base64.
func HashPassword(password string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLength, sha256.New)
	return base64.RawURLEncoding.EncodeToString(key)
}

// VerifyPassword checks password against a stored hash in constant time.
// Hashes written by older dashboard versions carry base64 padding, so the
// comparison normalizes both sides before comparing.
func VerifyPassword(password, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	derived := HashPassword(password)
	stored := strings.TrimRight(storedHash, "=")
	return subtle.ConstantTimeCompare([]byte(derived), []byte(stored)) == 1
}
