// Package auth implements account registration, credential verification, and
// bearer-token session management for the Voyage API.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// defaultBcryptCost is the bcrypt cost factor used for password hashing when
// the configuration does not override it.
const defaultBcryptCost = 12

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns the production PasswordHasher. A cost of 0 selects
// the default cost factor.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost <= 0 {
		cost = defaultBcryptCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// HashToken produces a hex-encoded SHA-256 hash of a raw session token.
// Session tokens are hashed before storage so the table must be searchable
// by hash (unlike bcrypt, which is salted and non-searchable).
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CanonicalizeEmail normalizes email addresses for consistent DB lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
