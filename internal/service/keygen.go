package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// APIKeyPrefix marks keys generated by this service.
const APIKeyPrefix = "wk_"

// GenerateAPIKey returns a new random key: the prefix followed by 64 hex
// characters (256 bits).
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(b), nil
}
