package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

const maxProfileValueBytes = 64 * 1024

var profileKeyPattern = regexp.MustCompile(`^[a-z0-9_.-]{1,64}$`)

func normalizeProfileKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if !profileKeyPattern.MatchString(key) {
		return "", apperrors.WithMetadata(apperrors.CodeProfileKeyInvalid, "profile key is invalid", map[string]string{"Key": raw})
	}
	return key, nil
}

// GetProfile loads one of the caller's profile keys.
func (s *Service) GetProfile(ctx context.Context, caller Caller, key string) (contract.ProfileEntry, error) {
	key, err := normalizeProfileKey(key)
	if err != nil {
		return contract.ProfileEntry{}, err
	}
	entry, err := s.store.GetProfileEntry(ctx, caller.UserID, key)
	if err != nil {
		return contract.ProfileEntry{}, err
	}
	return contract.FromProfileEntry(entry), nil
}

// PutProfile stores a JSON value under one of the caller's profile keys.
func (s *Service) PutProfile(ctx context.Context, caller Caller, key string, value json.RawMessage) (contract.ProfileEntry, error) {
	key, err := normalizeProfileKey(key)
	if err != nil {
		return contract.ProfileEntry{}, err
	}
	if len(value) == 0 || len(value) > maxProfileValueBytes || !json.Valid(value) {
		return contract.ProfileEntry{}, apperrors.WithMetadata(apperrors.CodeProfileKeyInvalid, "profile value must be JSON", map[string]string{"Key": key})
	}
	entry := storage.ProfileEntry{UserID: caller.UserID, Key: key, Value: value, UpdatedAt: s.now().UTC()}
	if err := s.store.PutProfileEntry(ctx, entry); err != nil {
		return contract.ProfileEntry{}, err
	}
	return contract.FromProfileEntry(entry), nil
}

// DeleteProfile removes one of the caller's profile keys.
func (s *Service) DeleteProfile(ctx context.Context, caller Caller, key string) error {
	key, err := normalizeProfileKey(key)
	if err != nil {
		return err
	}
	return s.store.DeleteProfileEntry(ctx, caller.UserID, key)
}
