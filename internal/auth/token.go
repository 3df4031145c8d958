package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	opaqueTokenBytes = 32
	// ResetTokenLength is the length of a hex-encoded reset token.
	ResetTokenLength = opaqueTokenBytes * 2
)

// NewOpaqueToken returns 32 bytes of crypto randomness, hex encoded (64 chars).
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hex digest of a plaintext token. Only digests
// are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsResetTokenFormat reports whether token is exactly 64 lowercase hex characters.
func IsResetTokenFormat(token string) bool {
	if len(token) != ResetTokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
