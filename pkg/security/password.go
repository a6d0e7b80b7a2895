package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrHashingFailed = errors.New("secret hashing failed")

// PasswordHasher hashes and compares low-entropy secrets (passwords, OTP codes).
// Length policy belongs to callers.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Compare(hashed, secret string) error
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a new password hasher using bcrypt
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) Hash(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", ErrHashingFailed
	}
	return string(bytes), nil
}

func (b *bcryptHasher) Compare(hashed, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(secret))
}
