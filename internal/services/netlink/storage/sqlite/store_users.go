package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/services/netlink/storage"
	"github.com/zenite-os/zenite/internal/services/netlink/user"
)

// PutUser inserts a user record.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (id, username, password_hash, guest, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.PasswordHash,
		boolToInt(u.Guest),
		timeToUnixMillis(u.CreatedAt),
		timeToUnixMillis(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	return s.getUser(ctx, "id", userID)
}

// GetUserByUsername fetches a user by canonical username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return s.getUser(ctx, "username", strings.ToLower(username))
}

func (s *Store) getUser(ctx context.Context, column, value string) (user.User, error) {
	if err := s.ready(ctx); err != nil {
		return user.User{}, err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return user.User{}, fmt.Errorf("user %s is required", column)
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, username, password_hash, guest, created_at, updated_at
		 FROM users WHERE `+column+` = ?`,
		value,
	)
	var u user.User
	var guest, createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &guest, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Guest = guest != 0
	u.CreatedAt = unixMillisToTime(createdAt)
	u.UpdatedAt = unixMillisToTime(updatedAt)
	return u, nil
}

// GetProfileEntry loads one profile key.
func (s *Store) GetProfileEntry(ctx context.Context, userID, key string) (storage.ProfileEntry, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ProfileEntry{}, err
	}
	userID, key = strings.TrimSpace(userID), strings.TrimSpace(key)
	if userID == "" || key == "" {
		return storage.ProfileEntry{}, fmt.Errorf("user id and key are required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, key, value_json, updated_at FROM profile_entries WHERE user_id = ? AND key = ?`,
		userID, key,
	)
	var entry storage.ProfileEntry
	var value []byte
	var updatedAt int64
	if err := row.Scan(&entry.UserID, &entry.Key, &value, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProfileEntry{}, storage.ErrNotFound
		}
		return storage.ProfileEntry{}, fmt.Errorf("get profile entry: %w", err)
	}
	entry.Value = rawJSON(value)
	entry.UpdatedAt = unixMillisToTime(updatedAt)
	return entry, nil
}

// PutProfileEntry upserts one profile key.
func (s *Store) PutProfileEntry(ctx context.Context, entry storage.ProfileEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	entry.UserID, entry.Key = strings.TrimSpace(entry.UserID), strings.TrimSpace(entry.Key)
	if entry.UserID == "" || entry.Key == "" {
		return fmt.Errorf("user id and key are required")
	}
	if len(entry.Value) == 0 {
		return fmt.Errorf("profile value is required")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO profile_entries (user_id, key, value_json, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, key) DO UPDATE SET
		   value_json = excluded.value_json,
		   updated_at = excluded.updated_at`,
		entry.UserID, entry.Key, []byte(entry.Value), timeToUnixMillis(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put profile entry: %w", err)
	}
	return nil
}

// DeleteProfileEntry removes one profile key. Missing keys are not an error.
func (s *Store) DeleteProfileEntry(ctx context.Context, userID, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM profile_entries WHERE user_id = ? AND key = ?`,
		strings.TrimSpace(userID), strings.TrimSpace(key),
	); err != nil {
		return fmt.Errorf("delete profile entry: %w", err)
	}
	return nil
}
