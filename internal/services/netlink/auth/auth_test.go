package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
)

var (
	testSecret = []byte(strings.Repeat("s", 32))
	fixedNow   = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]user.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]user.User)}
}

func (f *fakeUserStore) PutUser(_ context.Context, u user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return storage.ErrConflict
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserStore) GetUser(_ context.Context, userID string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func sequenceIDs(ids ...string) func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(ids) {
			return "", fmt.Errorf("ran out of ids")
		}
		value := ids[next]
		next++
		return value, nil
	}
}

func newTestTokens(t *testing.T, now func() time.Time) *Tokens {
	t.Helper()
	tokens, err := NewTokens(TokenConfig{Secret: testSecret, Now: now})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens
}

func TestNewTokensRequiresSecret(t *testing.T) {
	if _, err := NewTokens(TokenConfig{Secret: []byte("short")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := newTestTokens(t, func() time.Time { return fixedNow })

	signed, expires, err := tokens.Issue("u1", "nova", true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !expires.Equal(fixedNow.Add(DefaultTokenTTL)) {
		t.Fatalf("expires = %s", expires)
	}
	claims, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "nova" || !claims.Guest {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokensRejectExpiredAndForeign(t *testing.T) {
	now := fixedNow
	tokens := newTestTokens(t, func() time.Time { return now })
	signed, _, err := tokens.Issue("u1", "nova", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = fixedNow.Add(DefaultTokenTTL + time.Minute)
	if _, err := tokens.Verify(signed); !apperrors.IsCode(err, apperrors.CodeAuthInvalidToken) {
		t.Fatalf("expired err = %v", err)
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    DefaultIssuer,
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(fixedNow.Add(time.Hour)),
	})
	forged, err := foreign.SignedString([]byte(strings.Repeat("x", 32)))
	if err != nil {
		t.Fatalf("sign forged: %v", err)
	}
	now = fixedNow
	if _, err := tokens.Verify(forged); !apperrors.IsCode(err, apperrors.CodeAuthInvalidToken) {
		t.Fatalf("forged err = %v", err)
	}
	if _, err := tokens.Verify(" "); !apperrors.IsCode(err, apperrors.CodeAuthRequired) {
		t.Fatalf("empty err = %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("expected short password error")
	}
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
}

func TestServiceSignUpAndLogin(t *testing.T) {
	store := newFakeUserStore()
	svc, err := NewService(store, newTestTokens(t, func() time.Time { return fixedNow }), func() time.Time { return fixedNow }, sequenceIDs("u1", "u2"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "Nova", "correct horse")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session.UserID != "u1" || session.Username != "nova" || session.Token == "" {
		t.Fatalf("session = %+v", session)
	}
	if _, err := svc.SignUp(ctx, "nova", "another pass"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate sign up err = %v", err)
	}

	logged, err := svc.Login(ctx, "NOVA", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	userID, err := svc.Authenticate(ctx, logged.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("user id = %s", userID)
	}

	if _, err := svc.Login(ctx, "nova", "bad password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v", err)
	}
	if _, err := svc.Login(ctx, "ghost", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestServiceGuest(t *testing.T) {
	store := newFakeUserStore()
	svc, err := NewService(store, newTestTokens(t, nil), func() time.Time { return fixedNow }, sequenceIDs("abcdefghzz", "abcdefghyy", "qrstuvwx11"))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	first, err := svc.Guest(ctx)
	if err != nil {
		t.Fatalf("guest: %v", err)
	}
	if !first.Guest || first.Username != "guest_abcdefgh" {
		t.Fatalf("session = %+v", first)
	}

	second, err := svc.Guest(ctx)
	if err != nil {
		t.Fatalf("second guest: %v", err)
	}
	if second.Username != "guest_qrstuvwx" {
		t.Fatalf("second username = %s", second.Username)
	}

	if _, err := svc.Login(ctx, first.Username, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("guest login err = %v", err)
	}
}
