// Package dedupe provides an in-process claim guard so overlapping runs do
// not deliver the same communication twice.
package dedupe

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Deduper records claimed keys.
type Deduper interface {
	// Claim atomically records key. It returns false when key is already
	// held by someone else.
	Claim(ctx context.Context, key string) bool

	// Release drops a claim so a later run may retry the key. Used when
	// the claimed work failed or was never started.
	Release(ctx context.Context, key string)

	Size() int64
}

// Key joins parts into a claim key.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// inMemoryDeduper evicts the oldest claim once maxSize is reached.
// maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	claimed map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates an in-memory claim guard.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		claimed: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.claimed[key]; ok {
		return false
	}
	if d.maxSize > 0 && len(d.claimed) >= d.maxSize {
		d.evictOldest()
	}
	d.claimed[key] = d.order.PushBack(key)
	d.size.Add(1)
	return true
}

func (d *inMemoryDeduper) Release(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.claimed[key]; ok {
		d.order.Remove(el)
		delete(d.claimed, key)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.claimed, front.Value.(string))
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
