// Package dicelog keeps the campaign dice log with optimistic local entries.
//
// A roll is shown as soon as the player makes it under a local_ id. The insert
// response confirms it in place; the realtime INSERT for the same row is then
// matched by id, or by sender, total and formula when it arrives first.
package dicelog

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultLimit is how many entries the log keeps.
const DefaultLimit = 50

// LocalPrefix marks entries not yet acknowledged by the server.
const LocalPrefix = "local_"

// Entry is one roll in the log.
type Entry struct {
	ID         string
	SenderName string
	Formula    string
	Dice       []int
	Natural    int
	Modifier   int
	Total      int
	CreatedAt  time.Time
	// Failed marks a local entry whose insert was rejected.
	Failed bool
}

// IsLocal reports whether id is an unconfirmed placeholder.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	limit   int
}

// New returns an empty log keeping at most limit entries.
func New(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{limit: limit}
}

// AppendLocal adds a placeholder entry and returns it with its local id.
func (l *Log) AppendLocal(entry Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	entry.ID = LocalPrefix + strconv.Itoa(l.next)
	entry.Failed = false
	l.entries = append(l.entries, entry)
	l.trim()
	return entry
}

// Confirm swaps a placeholder id for the server id. When the server row is
// already present the placeholder is dropped instead.
func (l *Log) Confirm(localID, serverID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOf(localID)
	if idx < 0 {
		return false
	}
	if l.indexOf(serverID) >= 0 {
		l.entries = slices.Delete(l.entries, idx, idx+1)
		return true
	}
	l.entries[idx].ID = serverID
	l.entries[idx].Failed = false
	return true
}

// ApplyRemote merges a row delivered by the realtime feed. It replaces the
// entry with the same id, else the oldest pending placeholder with the same
// sender, total and formula, else it appends.
func (l *Log) ApplyRemote(row Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row.Failed = false
	if idx := l.indexOf(row.ID); idx >= 0 {
		l.entries[idx] = row
		return
	}
	for i, entry := range l.entries {
		if !IsLocal(entry.ID) || entry.Failed {
			continue
		}
		if entry.SenderName == row.SenderName && entry.Total == row.Total && strings.EqualFold(entry.Formula, row.Formula) {
			l.entries[i] = row
			return
		}
	}
	l.entries = append(l.entries, row)
	l.trim()
}

// Fail flags a placeholder whose insert was rejected. The entry is kept.
func (l *Log) Fail(localID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOf(localID)
	if idx < 0 || !IsLocal(localID) {
		return false
	}
	l.entries[idx].Failed = true
	return true
}

// Replace loads server history, keeping local placeholders that are still pending.
func (l *Log) Replace(rows []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pending := make([]Entry, 0)
	for _, entry := range l.entries {
		if IsLocal(entry.ID) {
			pending = append(pending, entry)
		}
	}
	l.entries = append(slices.Clone(rows), pending...)
	l.trim()
}

// Reset empties the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a copy of the log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

func (l *Log) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(l.entries, func(e Entry) bool { return e.ID == id })
}

func (l *Log) trim() {
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = slices.Delete(l.entries, 0, over)
	}
}
