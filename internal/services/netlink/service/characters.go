package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/zenite-os/zenite/internal/character"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	"github.com/zenite-os/zenite/internal/services/netlink/contract"
	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

// ListCharacters lists the caller's characters, most recently updated first.
func (s *Service) ListCharacters(ctx context.Context, caller Caller) ([]contract.Character, error) {
	records, err := s.store.ListCharacters(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Character, 0, len(records))
	for _, record := range records {
		out = append(out, contract.FromCharacter(record))
	}
	return out, nil
}

// PutCharacter validates and stores a sheet under characterID. The sheet id
// must match the path id.
func (s *Service) PutCharacter(ctx context.Context, caller Caller, characterID string, sheet json.RawMessage) (contract.Character, error) {
	characterID = strings.TrimSpace(characterID)
	c, err := character.DecodeSheet(sheet)
	if err != nil {
		return contract.Character{}, err
	}
	if c.ID != characterID {
		return contract.Character{}, apperrors.WithMetadata(
			apperrors.CodeCharacterSheetInvalid,
			"character sheet id does not match path",
			map[string]string{"Reason": "id mismatch"},
		)
	}
	name, err := character.NormalizeName(c.Name)
	if err != nil {
		return contract.Character{}, err
	}
	now := s.now().UTC()
	c.Name = name
	c.OwnerID = caller.UserID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c = character.Touch(c, now)

	encoded, err := character.EncodeSheet(c)
	if err != nil {
		return contract.Character{}, err
	}
	record := storage.CharacterRecord{
		ID:        c.ID,
		OwnerID:   caller.UserID,
		Name:      c.Name,
		Sheet:     encoded,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if err := s.store.PutCharacter(ctx, record); err != nil {
		return contract.Character{}, err
	}
	return contract.FromCharacter(record), nil
}

// DeleteCharacter removes one of the caller's characters.
func (s *Service) DeleteCharacter(ctx context.Context, caller Caller, characterID string) error {
	return s.store.DeleteCharacter(ctx, caller.UserID, strings.TrimSpace(characterID))
}

// ArchiveCharacter snapshots a stored character into object storage.
func (s *Service) ArchiveCharacter(ctx context.Context, caller Caller, characterID string) (contract.ArchiveCreated, error) {
	if !s.archive.Enabled() {
		return contract.ArchiveCreated{}, apperrors.New(apperrors.CodeArchiveDisabled, "character archive is disabled")
	}
	record, err := s.store.GetCharacter(ctx, caller.UserID, strings.TrimSpace(characterID))
	if err != nil {
		return contract.ArchiveCreated{}, err
	}
	key, err := s.archive.Put(ctx, caller.UserID, record.ID, record.Sheet)
	if err != nil {
		return contract.ArchiveCreated{}, err
	}
	return contract.ArchiveCreated{Key: key}, nil
}

// ListArchives lists snapshot keys of one of the caller's characters.
func (s *Service) ListArchives(ctx context.Context, caller Caller, characterID string) (contract.ArchiveList, error) {
	keys, err := s.archive.List(ctx, caller.UserID, strings.TrimSpace(characterID))
	if err != nil {
		return contract.ArchiveList{}, err
	}
	if keys == nil {
		keys = []string{}
	}
	return contract.ArchiveList{Keys: keys}, nil
}
