package config

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	secretKeyName = "SECRET_KEY"

	// secretPlaceholder marks a secret that was never generated; any stored
	// secret containing it is treated as absent and replaced on write.
	secretPlaceholder = "not a valid secret"

	secretCharset = "abcdefghijklmnopqrstuvwxyz0123456789-_+!."
	secretLength  = 50
)

// generateSecret returns a fresh random server secret.
func generateSecret() (string, error) {
	var b strings.Builder
	b.Grow(secretLength)
	max := big.NewInt(int64(len(secretCharset)))
	for i := 0; i < secretLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate secret key: %w", err)
		}
		b.WriteByte(secretCharset[n.Int64()])
	}
	return b.String(), nil
}

// isPlaceholderSecret reports whether a stored secret is missing or still the
// known placeholder sentinel.
func isPlaceholderSecret(s string) bool {
	return s == "" || strings.Contains(s, secretPlaceholder)
}
