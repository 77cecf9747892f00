// Package user provides NetLink account identities.
package user

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/id"
)

var (
	// ErrInvalidUsername indicates a username that does not match the required format.
	ErrInvalidUsername = apperrors.New(apperrors.CodeAuthUsernameInvalid, "username must be 3-24 letters, digits or underscores")

	usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,24}$`)
)

// GuestPrefix marks generated guest usernames.
const GuestPrefix = "guest_"

// User is an account. Guests have no password and cannot own campaigns.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Guest        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Guest        bool
}

// NormalizeUsername lower-cases and trims a username and validates it.
func NormalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if !usernamePattern.MatchString(username) {
		return "", ErrInvalidUsername
	}
	return username, nil
}

// CreateUser creates a user identity from validated input.
func CreateUser(input CreateUserInput, now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	username, err := NormalizeUsername(input.Username)
	if err != nil {
		return User{}, err
	}
	if !input.Guest && strings.HasPrefix(username, GuestPrefix) {
		return User{}, ErrInvalidUsername
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:           userID,
		Username:     username,
		PasswordHash: input.PasswordHash,
		Guest:        input.Guest,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// GuestUsername derives a guest username from a user id.
func GuestUsername(userID string) string {
	suffix := strings.ToLower(userID)
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return GuestPrefix + suffix
}
