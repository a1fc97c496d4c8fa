package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const tokenIDBytes = 16

// NewTokenID returns a random hex identifier used as a refresh token jti.
func NewTokenID() (string, error) {
	b := make([]byte, tokenIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
