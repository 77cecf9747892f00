package campaign

import (
	"testing"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
)

type cycleSource struct{ next int }

func (s *cycleSource) IntN(n int) (int, error) {
	v := s.next % n
	s.next++
	return v, nil
}

func TestNewInviteCode(t *testing.T) {
	code, err := NewInviteCode(&cycleSource{})
	if err != nil {
		t.Fatalf("new invite code: %v", err)
	}
	if code != "ABCDEF" {
		t.Fatalf("code = %q, want ABCDEF", code)
	}
	if _, ok := SanitizeInviteCode(code); !ok {
		t.Fatalf("generated code %q does not sanitize", code)
	}
}

func TestNewInviteCodeCryptoDefault(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := NewInviteCode(nil)
		if err != nil {
			t.Fatalf("new invite code: %v", err)
		}
		if _, ok := SanitizeInviteCode(code); !ok {
			t.Fatalf("generated code %q does not sanitize", code)
		}
	}
}

func TestSanitizeInviteCode(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{raw: "ab12cd", want: "AB12CD", ok: true},
		{raw: "  AB12  ", want: "AB12", ok: true},
		{raw: "ABCDEFGH", want: "ABCDEFGH", ok: true},
		{raw: "ABC", ok: false},
		{raw: "ABCDEFGHI", ok: false},
		{raw: "AB-12C", ok: false},
		{raw: "AB 12C", ok: false},
		{raw: "ÁB12", ok: false},
		{raw: "abcſ", ok: false},
		{raw: "ıjkl", ok: false},
		{raw: "\u212A12z", ok: false},
		{raw: "", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := SanitizeInviteCode(tc.raw)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("SanitizeInviteCode(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestParseInviteCodeReturnsDomainError(t *testing.T) {
	_, err := ParseInviteCode("no")
	if !apperrors.IsCode(err, apperrors.CodeCampaignInviteInvalid) {
		t.Fatalf("err = %v", err)
	}
}
