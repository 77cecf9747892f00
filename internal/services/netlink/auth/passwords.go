package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
)

const (
	// MinPasswordLength is the shortest accepted password, in runes.
	MinPasswordLength = 8
	// maxPasswordBytes is bcrypt's input limit.
	maxPasswordBytes = 72
)

// ErrInvalidCredentials hides whether the username or the password was wrong.
var ErrInvalidCredentials = apperrors.New(apperrors.CodeAuthInvalidCredential, "invalid username or password")

// HashPassword validates and hashes a password.
func HashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength || len(password) > maxPasswordBytes {
		return "", apperrors.WithMetadata(
			apperrors.CodeAuthInvalidCredential,
			"password length out of range",
			map[string]string{"Min": fmt.Sprint(MinPasswordLength)},
		)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password against its hash.
func CheckPassword(hash, password string) error {
	if hash == "" {
		return ErrInvalidCredentials
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}
