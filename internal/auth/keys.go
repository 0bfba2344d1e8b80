package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// KeyPrefix marks aweb API keys. It is cosmetic; authentication hashes the
// whole key and never indexes by prefix.
const KeyPrefix = "awb_"

// GenerateKey returns a new plaintext API key and its storage digest. The
// plaintext is shown to the caller exactly once.
func GenerateKey() (plaintext, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	plaintext = KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashKey(plaintext), nil
}

// HashKey computes the full-key digest used for storage and lookup.
func HashKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
