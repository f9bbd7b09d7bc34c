// Package auth handles credentials: password hashing and policy, and the
// JWT tokens that carry a verified identity to the HTTP and WebSocket
// layers.
package auth

import (
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	digitPattern  = regexp.MustCompile(`\d`)
	symbolPattern = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// NormalizeEmail lowercases and trims an email; the normalized form is
// the account's unique key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the (already normalized) email looks like an
// address.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// PasswordPolicyErrors returns the list of requirements the password
// fails, empty when it passes.
func PasswordPolicyErrors(password string) []string {
	var errs []string
	if len(password) < 10 {
		errs = append(errs, "At least 10 characters")
	}
	if !upperPattern.MatchString(password) {
		errs = append(errs, "At least 1 uppercase letter")
	}
	if !lowerPattern.MatchString(password) {
		errs = append(errs, "At least 1 lowercase letter")
	}
	if len(digitPattern.FindAllString(password, -1)) < 2 {
		errs = append(errs, "At least 2 numbers")
	}
	if !symbolPattern.MatchString(password) {
		errs = append(errs, "At least 1 symbol")
	}
	return errs
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
