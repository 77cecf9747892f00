package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	saves []string
	fail  map[string]error
	done  chan string
}

func newRecorder() *recorder {
	return &recorder{done: make(chan string, 16), fail: map[string]error{}}
}

func (r *recorder) save(_ context.Context, key string) error {
	r.mu.Lock()
	r.saves = append(r.saves, key)
	err := r.fail[key]
	r.mu.Unlock()
	r.done <- key
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func waitSave(t *testing.T, r *recorder) string {
	t.Helper()
	select {
	case key := <-r.done:
		return key
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for save")
		return ""
	}
}

func TestTriggerCoalescesBursts(t *testing.T) {
	rec := newRecorder()
	d := New(40*time.Millisecond, rec.save, nil)
	for range 5 {
		d.Trigger("char-1")
		time.Sleep(5 * time.Millisecond)
	}
	if key := waitSave(t, rec); key != "char-1" {
		t.Fatalf("saved %q", key)
	}
	time.Sleep(80 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Fatalf("expected one save, got %d", n)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	rec := newRecorder()
	d := New(20*time.Millisecond, rec.save, nil)
	d.Trigger("a")
	d.Trigger("b")
	got := map[string]bool{waitSave(t, rec): true, waitSave(t, rec): true}
	if !got["a"] || !got["b"] {
		t.Fatalf("expected both keys saved, got %v", got)
	}
}

func TestFlushSavesImmediately(t *testing.T) {
	rec := newRecorder()
	d := New(time.Hour, rec.save, nil)
	d.Trigger("b")
	d.Trigger("a")
	if pending := d.Pending(); len(pending) != 2 || pending[0] != "a" {
		t.Fatalf("unexpected pending %v", pending)
	}
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n := rec.count(); n != 2 {
		t.Fatalf("expected two saves, got %d", n)
	}
	if len(d.Pending()) != 0 {
		t.Fatal("flush should clear pending keys")
	}
}

func TestErrorsAreReportedNotRetried(t *testing.T) {
	rec := newRecorder()
	boom := errors.New("quota")
	rec.fail["char-1"] = boom

	var mu sync.Mutex
	var reported []error
	d := New(10*time.Millisecond, rec.save, func(key string, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})
	d.Trigger("char-1")
	waitSave(t, rec)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || !errors.Is(reported[0], boom) {
		t.Fatalf("expected one reported error, got %v", reported)
	}
	if rec.count() != 1 {
		t.Fatalf("expected no retry, got %d saves", rec.count())
	}
}

func TestCloseFlushesAndIgnoresLaterTriggers(t *testing.T) {
	rec := newRecorder()
	d := New(time.Hour, rec.save, nil)
	d.Trigger("char-1")
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	d.Trigger("char-2")
	if len(d.Pending()) != 0 || rec.count() != 1 {
		t.Fatalf("unexpected state after close: pending=%v saves=%d", d.Pending(), rec.count())
	}
}

func TestTriggerDuringCloseFlushIsDropped(t *testing.T) {
	var (
		mu    sync.Mutex
		saves []string
		d     *Debouncer
	)
	d = New(20*time.Millisecond, func(_ context.Context, key string) error {
		mu.Lock()
		saves = append(saves, key)
		mu.Unlock()
		if key == "char-1" {
			d.Trigger("char-2")
		}
		return nil
	}, nil)

	d.Trigger("char-1")
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if pending := d.Pending(); len(pending) != 0 {
		t.Fatalf("pending after close = %v", pending)
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(saves) != 1 || saves[0] != "char-1" {
		t.Fatalf("saves = %v, want [char-1]", saves)
	}
}
