package app

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	pinMin = 100000
	pinMax = 999999
)

// PINGenerator returns a candidate PIN. Uniqueness is enforced by the
// SessionRepository, not by the generator.
type PINGenerator func() (string, error)

// RandomPIN draws a 6-digit PIN from crypto/rand.
func RandomPIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinMax-pinMin+1))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+pinMin), nil
}

// ValidPIN reports whether s is exactly six ASCII digits.
func ValidPIN(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
