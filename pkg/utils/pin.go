package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

// PINLength is the number of digits in a login PIN.
const PINLength = 8

var pinSpace = big.NewInt(100_000_000)

// GeneratePIN returns a PINLength-digit numeric string from crypto/rand.
func GeneratePIN() (string, error) {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", PINLength, n.Int64()), nil
}

// GenerateToken returns a URL-safe random token built from n random bytes.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
