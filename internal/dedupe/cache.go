// ABOUTME: Thread-safe TTL cache of recently seen keys with bounded size
// ABOUTME: Backs idempotent live-event insertion and send retry protection

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// entry pairs a key's timestamp with its position in the eviction order.
type entry struct {
	at   time.Time
	elem *list.Element
}

// Cache remembers keys for a TTL window, capped at a maximum size. When the
// cap is reached the oldest key is evicted. Safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	seen   map[string]*entry
	order  *list.List // keys in insertion order, oldest at front
	ttl    time.Duration
	max    int
	done   chan struct{}
	closed bool
}

// New creates a cache that remembers keys for ttl, holding at most max
// entries. A background goroutine sweeps expired entries until Close.
func New(ttl time.Duration, max int) *Cache {
	c := &Cache{
		seen:  make(map[string]*entry),
		order: list.New(),
		ttl:   ttl,
		max:   max,
		done:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen atomically checks whether key is already cached and, if not, records
// it. Returns true when the key was already present (a duplicate). The
// check-and-record is a single step so two racing callers cannot both
// observe "new".
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.seen[key]; ok && time.Since(e.at) < c.ttl {
		return true
	}
	c.record(key)
	return false
}

// Contains reports whether key is cached and unexpired, without recording it.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	return ok && time.Since(e.at) < c.ttl
}

// Record marks key as seen, refreshing its timestamp if already present.
func (c *Cache) Record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(key)
}

// Forget drops key from the cache if present. Used to roll back a send
// guard when the submission itself failed and a retry must be allowed.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.seen[key]
	if !ok {
		return
	}
	c.order.Remove(e.elem)
	delete(c.seen, key)
}

// Len returns the number of cached keys, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// record must be called with mu held.
func (c *Cache) record(key string) {
	now := time.Now()

	if e, ok := c.seen[key]; ok {
		e.at = now
		c.order.MoveToBack(e.elem)
		return
	}

	if len(c.seen) >= c.max {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}

	c.seen[key] = &entry{at: now, elem: c.order.PushBack(key)}
}

// sweepLoop periodically removes expired entries until Close is called.
func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.seen {
		if now.Sub(e.at) > c.ttl {
			c.order.Remove(e.elem)
			delete(c.seen, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
