// Package progress tracks per-order product processing counts between a
// successful dispatch and the completion notification.
package progress

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Progress counts processed products for one order.
type Progress struct {
	Expected  int `json:"expected"`
	Processed int `json:"processed"`
}

// Done reports whether every expected product was processed.
func (p Progress) Done() bool { return p.Processed >= p.Expected }

// Tracker stores progress keyed by short order id.
type Tracker interface {
	Init(shortID string, expected int)
	Increment(shortID string) (Progress, bool)
	Get(shortID string) (Progress, bool)
	Delete(shortID string)
}

const (
	DefaultTTL             = 24 * time.Hour
	DefaultCleanupInterval = 30 * time.Minute
)

// CacheTracker is a Tracker backed by go-cache. Entries for orders that never
// complete expire after the configured TTL.
type CacheTracker struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewCacheTracker creates a tracker. A non-positive ttl disables expiry.
func NewCacheTracker(ttl, cleanup time.Duration) *CacheTracker {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	return &CacheTracker{cache: gocache.New(ttl, cleanup)}
}

func (t *CacheTracker) Init(shortID string, expected int) {
	t.mu.Lock()
	t.cache.Set(shortID, Progress{Expected: expected}, gocache.DefaultExpiration)
	t.mu.Unlock()
}

// Increment bumps the processed count, capped at Expected.
func (t *CacheTracker) Increment(shortID string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.get(shortID)
	if !ok {
		return Progress{}, false
	}
	if p.Processed < p.Expected {
		p.Processed++
	}
	t.cache.Set(shortID, p, gocache.DefaultExpiration)
	return p, true
}

func (t *CacheTracker) Get(shortID string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(shortID)
}

func (t *CacheTracker) get(shortID string) (Progress, bool) {
	v, found := t.cache.Get(shortID)
	if !found {
		return Progress{}, false
	}
	p, ok := v.(Progress)
	return p, ok
}

func (t *CacheTracker) Delete(shortID string) {
	t.mu.Lock()
	t.cache.Delete(shortID)
	t.mu.Unlock()
}

// Len reports the number of tracked orders.
func (t *CacheTracker) Len() int { return t.cache.ItemCount() }
