package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	// SessionCookieName carries the opaque session token.
	SessionCookieName = "store.session"

	// sessionTokenBytes is the entropy of generated session tokens
	sessionTokenBytes = 32
)

// GenerateSessionToken returns a random token for the cookie and its SHA256
// hex hash for storage. Only the hash is persisted.
func GenerateSessionToken() (token, tokenHash string, err error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate session token: %w", err)
	}
	token = hex.EncodeToString(buf)
	return token, HashSessionToken(token), nil
}

// HashSessionToken hashes a session token for lookup
func HashSessionToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
