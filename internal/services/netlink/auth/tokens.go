// Package auth issues and verifies NetLink session tokens and owns the
// signup, login and guest flows.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
)

const (
	// DefaultTokenTTL is the lifetime of an issued session token.
	DefaultTokenTTL = 7 * 24 * time.Hour
	// DefaultIssuer is the iss claim of NetLink tokens.
	DefaultIssuer = "zenite-netlink"

	minSecretBytes = 32
)

// ErrInvalidToken indicates a token that failed verification.
var ErrInvalidToken = apperrors.New(apperrors.CodeAuthInvalidToken, "session token is invalid")

// TokenConfig configures the HS256 signer.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Claims are the verified contents of a session token.
type Claims struct {
	UserID    string
	Username  string
	Guest     bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Guest    bool   `json:"guest,omitempty"`
}

// Tokens signs and verifies session tokens.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens validates cfg.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretBytes)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tokens{secret: cfg.Secret, issuer: cfg.Issuer, ttl: cfg.TTL, now: cfg.Now}, nil
}

// Issue signs a token for the user.
func (t *Tokens) Issue(userID, username string, guest bool) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := t.now().UTC()
	expires := now.Add(t.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Username: username,
		Guest:    guest,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, issuer and expiry.
func (t *Tokens) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeAuthRequired, "session token is required")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeAuthInvalidToken, "session token is invalid", err)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		UserID:    parsed.Subject,
		Username:  parsed.Username,
		Guest:     parsed.Guest,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}
