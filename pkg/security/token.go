package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// TokenBytes is the entropy of reset and verification tokens.
const TokenBytes = 32

// NewToken returns a random hex token and the sha256 hash that gets stored.
func NewToken() (plain, hash string, err error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, HashToken(plain), nil
}

// HashToken is the lookup key for a plaintext token.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// NewNumericCode returns a uniformly random code with exactly digits digits.
func NewNumericCode(digits int) (string, error) {
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Sub(new(big.Int).Mul(low, big.NewInt(10)), low)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return n.Add(n, low).String(), nil
}
