package archive

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) PutObject(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = append([]byte(nil), body...)
	return nil
}

func (m *memoryObjects) GetObject(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, errors.New("missing")
	}
	return body, nil
}

func (m *memoryObjects) ListKeys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func TestDisabledArchive(t *testing.T) {
	archive, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if archive.Enabled() {
		t.Fatal("expected disabled archive")
	}
	if _, err := archive.Put(context.Background(), "u1", "ch1", []byte(`{}`)); !apperrors.IsCode(err, apperrors.CodeArchiveDisabled) {
		t.Fatalf("put err = %v", err)
	}
	if _, err := archive.List(context.Background(), "u1", "ch1"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("list err = %v", err)
	}
}

func TestKeyLayout(t *testing.T) {
	at := time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)
	if got := Key("u1", "ch1", at); got != "characters/u1/ch1/1775154600.json" {
		t.Fatalf("key = %s", got)
	}
}

func TestPutListGet(t *testing.T) {
	at := time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)
	now := at
	archive := New(&memoryObjects{}, func() time.Time { return now })
	ctx := context.Background()

	first, err := archive.Put(ctx, "u1", "ch1", []byte(`{"level":1}`))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	now = at.Add(time.Hour)
	second, err := archive.Put(ctx, "u1", "ch1", []byte(`{"level":2}`))
	if err != nil {
		t.Fatalf("put second: %v", err)
	}
	if _, err := archive.Put(ctx, "u1", "ch2", []byte(`{}`)); err != nil {
		t.Fatalf("put other character: %v", err)
	}

	keys, err := archive.List(ctx, "u1", "ch1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != second || keys[1] != first {
		t.Fatalf("keys = %v", keys)
	}

	body, err := archive.Get(ctx, "u1", first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != `{"level":1}` {
		t.Fatalf("body = %s", body)
	}
	if _, err := archive.Get(ctx, "u2", first); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("foreign get err = %v", err)
	}
}

func TestPutRejectsBadSegments(t *testing.T) {
	archive := New(&memoryObjects{}, nil)
	for _, characterID := range []string{"", "a/b", ".."} {
		if _, err := archive.Put(context.Background(), "u1", characterID, []byte(`{}`)); err == nil {
			t.Fatalf("expected error for %q", characterID)
		}
	}
}
