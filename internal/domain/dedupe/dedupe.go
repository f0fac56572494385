// Package dedupe tracks vote ids so a retried submission is applied at most
// once.
package dedupe

import (
	"context"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Default deduper configuration constants.
const (
	defaultMaxSize = 50000
)

// Deduper records vote ids to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id so the same vote can be retried after a
	// failed write.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper keeps ids in insertion order. When bounded the oldest id
// is evicted first; with a TTL, ids older than the TTL are dropped lazily on
// every call.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    *orderedmap.OrderedMap[string, time.Time]
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		seen:    orderedmap.New[string, time.Time](),
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SeenAndRecord atomically checks if id was seen and records it if not.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)

	if _, ok := d.seen.Get(id); ok {
		return true
	}
	if d.maxSize > 0 {
		for d.seen.Len() >= d.maxSize {
			d.seen.Delete(d.seen.Oldest().Key)
		}
	}
	d.seen.Set(id, now)
	return false
}

// Unrecord removes id, allowing it to be retried.
func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen.Delete(id)
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.seen.Len())
}

// expire drops entries older than the TTL. Must be called with d.mu held.
func (d *inMemoryDeduper) expire(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for p := d.seen.Oldest(); p != nil; p = d.seen.Oldest() {
		if now.Sub(p.Value) < d.ttl {
			return
		}
		d.seen.Delete(p.Key)
	}
}
