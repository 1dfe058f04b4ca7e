package auth

import (
	"github.com/rotisserie/eris"
	"golang.org/x/crypto/bcrypt"
)

// Password length bounds in bytes. bcrypt ignores input past 72 bytes.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 72
)

// ValidationError is a user-facing input problem.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// ValidatePassword checks the length rules and that confirm matches.
func ValidatePassword(password, confirm string) error {
	if len(password) < MinPasswordLen {
		return invalid("Password must be at least 8 characters long")
	}
	if len(password) > MaxPasswordLen {
		return invalid("Password must be no more than 72 characters long")
	}
	if password != confirm {
		return invalid("Passwords do not match")
	}
	return nil
}

// HashPassword hashes with bcrypt at the given cost. A cost outside bcrypt's
// range uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", eris.Wrap(err, "auth: hash password")
	}
	return string(h), nil
}

// CheckPassword reports whether password matches the stored hash. An empty
// hash (social login accounts) never matches.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
