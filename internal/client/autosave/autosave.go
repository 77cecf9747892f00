// Package autosave coalesces rapid edits into one delayed save per key.
package autosave

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	// SheetDelay is the quiet period for character sheet edits.
	SheetDelay = 2 * time.Second
	// SettingsDelay is the quiet period for campaign settings edits.
	SettingsDelay = 3 * time.Second
)

// SaveFunc persists the state identified by key.
type SaveFunc func(ctx context.Context, key string) error

// ErrorFunc reports a failed save. Failed saves are not retried.
type ErrorFunc func(key string, err error)

type pendingSave struct {
	timer *time.Timer
	gen   uint64
}

// Debouncer delays saves until edits stop for the configured period.
type Debouncer struct {
	delay   time.Duration
	save    SaveFunc
	onError ErrorFunc

	mu      sync.Mutex
	pending map[string]pendingSave
	gen     uint64
	closed  bool
	wg      sync.WaitGroup
}

// New builds a debouncer. onError may be nil.
func New(delay time.Duration, save SaveFunc, onError ErrorFunc) *Debouncer {
	if delay <= 0 {
		delay = SheetDelay
	}
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Debouncer{
		delay:   delay,
		save:    save,
		onError: onError,
		pending: make(map[string]pendingSave),
	}
}

// Trigger schedules a save of key, pushing back any save already scheduled.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if current, ok := d.pending[key]; ok {
		current.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending[key] = pendingSave{
		gen:   gen,
		timer: time.AfterFunc(d.delay, func() { d.fire(key, gen) }),
	}
}

// Pending lists keys with a scheduled save.
func (d *Debouncer) Pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, len(d.pending))
	for key := range d.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (d *Debouncer) fire(key string, gen uint64) {
	d.mu.Lock()
	current, ok := d.pending[key]
	if !ok || current.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	if err := d.save(context.Background(), key); err != nil {
		d.onError(key, err)
	}
}

// Flush saves every pending key now and returns the joined save errors.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending))
	for key, p := range d.pending {
		p.timer.Stop()
		keys = append(keys, key)
	}
	clear(d.pending)
	d.mu.Unlock()
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		if err := d.save(ctx, key); err != nil {
			d.onError(key, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting triggers, flushes pending saves and waits for
// in-flight timer saves.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	err := d.Flush(ctx)
	d.wg.Wait()
	return err
}
