// Package reassembly buffers multi-fragment frames until all of their
// pieces have arrived, or discards them silently once they go stale.
//
// Semantics are grounded in the original Rust implementation's
// discover/src/frame_cache.rs (bucket by (id, order_count), TTL sweep
// before insert, complete-on-last-fragment). Storage uses
// github.com/patrickmn/go-cache, which already provides exactly the
// TTL-expiring map this component needs — the same library the sibling
// "moto" toolkit (other_examples/manifests/cppla-moto) depends on — rather
// than a hand-rolled map+timer.
package reassembly

import (
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fleetcast/discoverd/internal/frame"
)

// TTL is how long an incomplete fragment set is kept before being
// discarded, per spec.
const TTL = 5 * time.Second

const cleanupInterval = 10 * time.Second

// Cache buffers in-flight multi-fragment messages keyed by (id,
// order_count). The zero value is not usable; construct with New.
type Cache struct {
	mu    sync.Mutex
	store *gocache.Cache
}

type bucket struct {
	orderCount uint8
	fragments  map[uint8]frame.Frame
}

// New returns an empty reassembly cache with the spec's 5s fragment TTL.
func New() *Cache {
	return &Cache{store: gocache.New(TTL, cleanupInterval)}
}

// Ingest folds a single received frame into the cache. A frame with
// order_count == 0 bypasses the cache entirely and is returned complete
// immediately. Otherwise the frame is buffered; Ingest returns the full set
// of fragments only on the insert that completes it, deduplicating by
// order so a duplicate datagram can never trigger a premature "complete".
func (c *Cache) Ingest(f frame.Frame) ([]frame.Frame, bool) {
	if f.OrderCount == 0 {
		return []frame.Frame{f}, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := bucketKey(f.ID, f.OrderCount)

	if raw, found := c.store.Get(key); found {
		b := raw.(*bucket)
		b.fragments[f.Order] = f
		if len(b.fragments) == int(b.orderCount) {
			c.store.Delete(key)
			return collect(b), true
		}
		return nil, false
	}

	c.store.Set(key, &bucket{
		orderCount: f.OrderCount,
		fragments:  map[uint8]frame.Frame{f.Order: f},
	}, gocache.DefaultExpiration)

	return nil, false
}

func collect(b *bucket) []frame.Frame {
	out := make([]frame.Frame, 0, len(b.fragments))
	for order := uint8(0); ; order++ {
		f, ok := b.fragments[order]
		if !ok {
			break
		}
		out = append(out, f)
		if order == 255 {
			break
		}
	}
	return out
}

func bucketKey(id string, orderCount uint8) string {
	return fmt.Sprintf("%s:%d", id, orderCount)
}
