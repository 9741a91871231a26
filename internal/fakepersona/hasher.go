package fakepersona

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when Options.PasswordCost is out of range.
const DefaultBcryptCost = bcrypt.DefaultCost

// ErrBadPassword is returned when a password does not match its hash.
var ErrBadPassword = errors.New("fakepersona: password mismatch")

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash, password string) error
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt-based hasher.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return BcryptHasher{cost: cost}
}

func (h BcryptHasher) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("fakepersona: hash password: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) VerifyPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadPassword
	}
	return nil
}

// FakeInsecureHasher stores passwords as "$fake$<plaintext>".
// For tests only.
type FakeInsecureHasher struct{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	return "$fake$" + password, nil
}

func (FakeInsecureHasher) VerifyPassword(hash, password string) error {
	if strings.TrimPrefix(hash, "$fake$") == password && strings.HasPrefix(hash, "$fake$") {
		return nil
	}
	return ErrBadPassword
}
