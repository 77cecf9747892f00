package campaign

import (
	"strings"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/platform/random"
)

const (
	// InviteCodeLength is the length of generated invite codes.
	InviteCodeLength = 6
	// MinInviteCodeLength is the shortest code accepted from users.
	MinInviteCodeLength = 4
	// MaxInviteCodeLength is the longest code accepted from users.
	MaxInviteCodeLength = 8

	inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewInviteCode draws an invite code from source, or crypto/rand when nil.
func NewInviteCode(source random.Source) (string, error) {
	if source == nil {
		source = random.CryptoSource{}
	}
	var b strings.Builder
	b.Grow(InviteCodeLength)
	for range InviteCodeLength {
		n, err := source.IntN(len(inviteAlphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(inviteAlphabet[n])
	}
	return b.String(), nil
}

// SanitizeInviteCode trims and upper-cases raw. The code is valid when it has
// between MinInviteCodeLength and MaxInviteCodeLength ASCII letters or digits.
// Bytes are checked before case folding so non-ASCII letters that fold to
// ASCII are rejected.
func SanitizeInviteCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	if len(code) < MinInviteCodeLength || len(code) > MaxInviteCodeLength {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return "", false
		}
	}
	return strings.ToUpper(code), true
}

// ParseInviteCode is SanitizeInviteCode returning a domain error.
func ParseInviteCode(raw string) (string, error) {
	code, ok := SanitizeInviteCode(raw)
	if !ok {
		return "", apperrors.WithMetadata(
			apperrors.CodeCampaignInviteInvalid,
			"invite code must be 4 to 8 letters or digits",
			map[string]string{"Code": strings.TrimSpace(raw)},
		)
	}
	return code, nil
}
