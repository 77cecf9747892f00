// Package localstore persists client state as JSON blobs under fixed keys in
// a SQLite file, within a byte quota.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zenite-os/zenite/internal/character"
	"github.com/zenite-os/zenite/internal/client/localstore/migrations"
	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
	sqlitemigrate "github.com/zenite-os/zenite/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Fixed keys.
const (
	KeyGuestCharacters = "zenite_guest_characters"
	KeyCloudSnapshot   = "zenite_cloud_snapshot"
	KeySaveHistory     = "zenite_save_history"

	bestiaryPrefix = "zenite_bestiary_"
	playlistPrefix = "zenite_playlist_"
)

const (
	// DefaultQuotaBytes mirrors the usual browser storage allowance.
	DefaultQuotaBytes = 5 << 20
	// MaxHistory caps the save history.
	MaxHistory = 50
)

var (
	// ErrQuotaExceeded indicates a write that would overflow the quota.
	ErrQuotaExceeded = apperrors.New(apperrors.CodeQuotaExceeded, "local storage is full")
	// ErrNotFound indicates a missing key.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "local key not found")
)

// BestiaryKey is the key of a campaign's bestiary.
func BestiaryKey(campaignID string) string {
	return bestiaryPrefix + strings.TrimSpace(campaignID)
}

// PlaylistKey is the key of a campaign's playlist.
func PlaylistKey(campaignID string) string {
	return playlistPrefix + strings.TrimSpace(campaignID)
}

// Store is the local key-value store.
type Store struct {
	sqlDB *sql.DB
	quota int64
	now   func() time.Time
}

// Open opens and migrates the store at path. quota <= 0 uses DefaultQuotaBytes.
func Open(path string, quota int64) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, quota: quota, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Usage is the number of bytes counted against the quota.
func (s *Store) Usage(ctx context.Context) (int64, error) {
	var used sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT SUM(length(key) + length(value)) FROM kv`).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("measure usage: %w", err)
	}
	return used.Int64, nil
}

// PutRaw writes data under key, failing with ErrQuotaExceeded when the
// result would not fit.
func (s *Store) PutRaw(ctx context.Context, key string, data []byte) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("key is required")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var others sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT SUM(length(key) + length(value)) FROM kv WHERE key <> ?`, key).Scan(&others); err != nil {
		return fmt.Errorf("measure usage: %w", err)
	}
	if others.Int64+int64(len(key)+len(data)) > s.quota {
		return apperrors.WithMetadata(apperrors.CodeQuotaExceeded, ErrQuotaExceeded.Message, map[string]string{"Key": key})
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, data, s.now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return tx.Commit()
}

// GetRaw reads the bytes under key.
func (s *Store) GetRaw(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, strings.TrimSpace(key)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return data, nil
}

// Put stores value as JSON.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.PutRaw(ctx, key, data)
}

// Get decodes the JSON under key into target.
func (s *Store) Get(ctx context.Context, key string, target any) error {
	data, err := s.GetRaw(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// GuestCharacters loads the characters cached for a guest session.
func (s *Store) GuestCharacters(ctx context.Context) ([]character.Character, error) {
	var out []character.Character
	if err := s.Get(ctx, KeyGuestCharacters, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []character.Character{}, nil
		}
		return nil, err
	}
	return out, nil
}

// SaveGuestCharacters replaces the guest character cache.
func (s *Store) SaveGuestCharacters(ctx context.Context, characters []character.Character) error {
	if characters == nil {
		characters = []character.Character{}
	}
	return s.Put(ctx, KeyGuestCharacters, characters)
}

// Snapshot is one saved state of the character list.
type Snapshot struct {
	SavedAt    time.Time             `json:"saved_at"`
	Characters []character.Character `json:"characters"`
}

// SaveCloudSnapshot records the last state known to be in the cloud.
func (s *Store) SaveCloudSnapshot(ctx context.Context, snapshot Snapshot) error {
	return s.Put(ctx, KeyCloudSnapshot, snapshot)
}

// CloudSnapshot loads the last cloud snapshot.
func (s *Store) CloudSnapshot(ctx context.Context) (Snapshot, bool, error) {
	var snapshot Snapshot
	if err := s.Get(ctx, KeyCloudSnapshot, &snapshot); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	return snapshot, true, nil
}

// History lists saved snapshots, oldest first.
func (s *Store) History(ctx context.Context) ([]Snapshot, error) {
	var history []Snapshot
	if err := s.Get(ctx, KeySaveHistory, &history); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Snapshot{}, nil
		}
		return nil, err
	}
	return history, nil
}

// AppendHistory adds a snapshot, dropping the oldest beyond MaxHistory.
func (s *Store) AppendHistory(ctx context.Context, snapshot Snapshot) error {
	history, err := s.History(ctx)
	if err != nil {
		return err
	}
	history = append(history, snapshot)
	if over := len(history) - MaxHistory; over > 0 {
		history = history[over:]
	}
	return s.Put(ctx, KeySaveHistory, history)
}

// CollectInactive drops cached guest characters untouched for the
// inactivity window and returns how many were removed.
func (s *Store) CollectInactive(ctx context.Context, now time.Time) (int, error) {
	characters, err := s.GuestCharacters(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]character.Character, 0, len(characters))
	for _, c := range characters {
		if character.IsInactive(c, now) {
			continue
		}
		kept = append(kept, c)
	}
	removed := len(characters) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.SaveGuestCharacters(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}
