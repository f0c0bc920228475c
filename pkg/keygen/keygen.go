package keygen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateToken creates a secure random admin token.
// Format: olb_<base64-url-safe-encoded-32-bytes>
// Result is approximately 48 characters long.
func GenerateToken() (string, error) {
	// Generate 32 random bytes
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	// Encode to base64 URL-safe format (no padding)
	encoded := base64.RawURLEncoding.EncodeToString(bytes)

	// Prefix with "olb_" for easy identification
	return "olb_" + encoded, nil
}
