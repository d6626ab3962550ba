// Package activity holds the operator-facing activity log: a bounded, ordered
// buffer of short human-readable entries that the dashboards poll.
package activity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whr-sorting/simbridge/core/logger"
)

// Category classifies an entry for display.
type Category string

const (
	CategoryDefault Category = "default"
	CategoryInfo    Category = "info"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// ParseCategory maps user input onto a known category.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case CategoryDefault, CategoryInfo, CategorySuccess, CategoryError:
		return c, true
	}
	return "", false
}

// DefaultCapacity is the number of entries retained when none is configured.
const DefaultCapacity = 200

// Entry is immutable once appended.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Category  Category  `json:"type"`
}

// Buffer keeps the most recent entries up to its capacity, evicting the oldest
// first. It is safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	hooks    []func(Entry)
	now      func() time.Time
}

// NewBuffer creates a buffer holding at most capacity entries. A non-positive
// capacity selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Capacity returns the retention limit.
func (b *Buffer) Capacity() int { return b.capacity }

// OnAppend registers fn to observe every appended entry. Hooks run outside the
// buffer lock, in registration order.
func (b *Buffer) OnAppend(fn func(Entry)) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	b.hooks = append(b.hooks, fn)
	b.mu.Unlock()
}

// Append records message under category. Unknown categories are stored as
// default.
func (b *Buffer) Append(message string, category Category) Entry {
	if _, ok := ParseCategory(string(category)); !ok {
		category = CategoryDefault
	}
	b.mu.Lock()
	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: b.now(),
		Message:   message,
		Category:  category,
	}
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries[len(b.entries)-1] = e
	} else {
		b.entries = append(b.entries, e)
	}
	hooks := b.hooks
	b.mu.Unlock()

	for _, h := range hooks {
		h(e)
	}
	return e
}

// Appendf formats and appends a message.
func (b *Buffer) Appendf(category Category, format string, args ...any) Entry {
	return b.Append(fmt.Sprintf(format, args...), category)
}

// Logs returns a snapshot of the entries, oldest first. When categories are
// given only matching entries are returned.
func (b *Buffer) Logs(categories ...Category) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(categories) == 0 {
		return append([]Entry(nil), b.entries...)
	}
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		for _, c := range categories {
			if e.Category == c {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Len reports the number of retained entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Clear drops every entry.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
}

// MirrorTo returns a hook that forwards entries to a structured logger.
func MirrorTo(log logger.Logger) func(Entry) {
	return func(e Entry) {
		switch e.Category {
		case CategoryError:
			log.Errorf("%s", e.Message)
		case CategorySuccess, CategoryInfo:
			log.Infof("%s", e.Message)
		default:
			log.Debugw(e.Message, map[string]any{"category": string(e.Category)})
		}
	}
}
