package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/services/netlink/storage"
)

// ListCharacters returns an owner's characters, most recently updated first.
func (s *Store) ListCharacters(ctx context.Context, ownerID string) ([]storage.CharacterRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, owner_id, name, sheet_json, created_at, updated_at
		 FROM characters WHERE owner_id = ?
		 ORDER BY updated_at DESC, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]storage.CharacterRecord, 0)
	for rows.Next() {
		record, err := scanCharacter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate characters: %w", err)
	}
	return records, nil
}

// GetCharacter fetches one of an owner's characters.
func (s *Store) GetCharacter(ctx context.Context, ownerID, characterID string) (storage.CharacterRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CharacterRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, owner_id, name, sheet_json, created_at, updated_at
		 FROM characters WHERE owner_id = ? AND id = ?`,
		strings.TrimSpace(ownerID), strings.TrimSpace(characterID),
	)
	record, err := scanCharacter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CharacterRecord{}, storage.ErrNotFound
		}
		return storage.CharacterRecord{}, fmt.Errorf("get character: %w", err)
	}
	return record, nil
}

// PutCharacter upserts a character. Rows owned by another user are not
// overwritten and report ErrNotFound.
func (s *Store) PutCharacter(ctx context.Context, record storage.CharacterRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	record.OwnerID = strings.TrimSpace(record.OwnerID)
	if record.ID == "" || record.OwnerID == "" {
		return fmt.Errorf("character id and owner id are required")
	}
	if len(record.Sheet) == 0 {
		return fmt.Errorf("character sheet is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = record.UpdatedAt
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO characters (id, owner_id, name, sheet_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   sheet_json = excluded.sheet_json,
		   updated_at = excluded.updated_at
		 WHERE characters.owner_id = excluded.owner_id`,
		record.ID,
		record.OwnerID,
		record.Name,
		[]byte(record.Sheet),
		timeToUnixMillis(record.CreatedAt),
		timeToUnixMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put character: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCharacter removes one of an owner's characters.
func (s *Store) DeleteCharacter(ctx context.Context, ownerID, characterID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM characters WHERE owner_id = ? AND id = ?`,
		strings.TrimSpace(ownerID), strings.TrimSpace(characterID),
	)
	if err != nil {
		return fmt.Errorf("delete character: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteCharactersUpdatedBefore removes characters untouched since cutoff.
func (s *Store) DeleteCharactersUpdatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	result, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM characters WHERE updated_at < ?`,
		timeToUnixMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("delete inactive characters: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted characters: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCharacter(row rowScanner) (storage.CharacterRecord, error) {
	var record storage.CharacterRecord
	var sheet []byte
	var createdAt, updatedAt int64
	if err := row.Scan(&record.ID, &record.OwnerID, &record.Name, &sheet, &createdAt, &updatedAt); err != nil {
		return storage.CharacterRecord{}, err
	}
	record.Sheet = rawJSON(sheet)
	record.CreatedAt = unixMillisToTime(createdAt)
	record.UpdatedAt = unixMillisToTime(updatedAt)
	return record, nil
}
