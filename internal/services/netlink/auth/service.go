package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/id"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
)

const guestAttempts = 3

// ErrUsernameTaken indicates a signup for an existing username.
var ErrUsernameTaken = apperrors.New(apperrors.CodeAuthUsernameTaken, "username is already taken")

// Session is the result of a successful sign-in.
type Session = contract.Session

// Service implements signup, login and guest sessions.
type Service struct {
	users       storage.UserStore
	tokens      *Tokens
	now         func() time.Time
	idGenerator func() (string, error)
}

// NewService wires the auth flows.
func NewService(users storage.UserStore, tokens *Tokens, now func() time.Time, idGenerator func() (string, error)) (*Service, error) {
	if users == nil {
		return nil, errors.New("user store is required")
	}
	if tokens == nil {
		return nil, errors.New("token signer is required")
	}
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return &Service{users: users, tokens: tokens, now: now, idGenerator: idGenerator}, nil
}

// SignUp creates a password account.
func (s *Service) SignUp(ctx context.Context, username, password string) (Session, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	created, err := user.CreateUser(user.CreateUserInput{Username: username, PasswordHash: hash}, s.now, s.idGenerator)
	if err != nil {
		return Session{}, err
	}
	if err := s.users.PutUser(ctx, created); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Session{}, ErrUsernameTaken
		}
		return Session{}, fmt.Errorf("store user: %w", err)
	}
	return s.issue(created)
}

// Login verifies credentials.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	canonical, err := user.NormalizeUsername(username)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	found, err := s.users.GetUserByUsername(ctx, canonical)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if found.Guest {
		return Session{}, ErrInvalidCredentials
	}
	if err := CheckPassword(found.PasswordHash, password); err != nil {
		return Session{}, err
	}
	return s.issue(found)
}

// Guest creates a passwordless guest account.
func (s *Service) Guest(ctx context.Context) (Session, error) {
	var lastErr error
	for range guestAttempts {
		userID, err := s.idGenerator()
		if err != nil {
			return Session{}, fmt.Errorf("generate guest id: %w", err)
		}
		guest, err := user.CreateUser(
			user.CreateUserInput{Username: user.GuestUsername(userID), Guest: true},
			s.now,
			func() (string, error) { return userID, nil },
		)
		if err != nil {
			return Session{}, err
		}
		err = s.users.PutUser(ctx, guest)
		if err == nil {
			return s.issue(guest)
		}
		if !errors.Is(err, storage.ErrConflict) {
			return Session{}, fmt.Errorf("store guest: %w", err)
		}
		lastErr = err
	}
	return Session{}, fmt.Errorf("allocate guest username: %w", lastErr)
}

// Authenticate resolves a token to its user id.
func (s *Service) Authenticate(_ context.Context, token string) (string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Verify returns the full claims of a token.
func (s *Service) Verify(token string) (Claims, error) {
	return s.tokens.Verify(token)
}

func (s *Service) issue(u user.User) (Session, error) {
	token, expires, err := s.tokens.Issue(u.ID, u.Username, u.Guest)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, UserID: u.ID, Username: u.Username, Guest: u.Guest}, nil
}
