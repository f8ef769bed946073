// Package memory implements the in-process tier of the image cache: a
// byte-bounded LRU of decoded buffers keyed by cache key.
//
// Values are immutable by contract (the pipeline never mutates a buffer
// after publishing it), so reads hand out the stored pointer directly.
package memory

import (
	"container/list"
	"sync"

	"github.com/pixload/pixload/pkg/imaging"
)

// Metrics receives cache observations. A nil Metrics disables collection
// with zero overhead.
type Metrics interface {
	ObserveHit()
	ObserveMiss()
	ObserveEviction()
	SetUsage(entries int, bytes int64)
}

type entry struct {
	key   string
	buf   *imaging.Buffer
	bytes int64
}

// Cache is a byte-bounded LRU cache of decoded image buffers.
//
// Thread safety: safe for concurrent use. At most one writer per key is
// guaranteed by the engine's per-key locks, but the cache does not rely on
// that.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element // key -> element holding *entry
	order    *list.List               // front = most recently used
	bytes    int64
	maxBytes int64 // 0 = unlimited
	metrics  Metrics
}

// New creates a memory cache bounded to maxBytes of decoded pixel data
// (estimated at 4 bytes per pixel). maxBytes = 0 means unlimited.
func New(maxBytes int64, metrics Metrics) *Cache {
	return &Cache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		metrics:  metrics,
	}
}

// Get returns the cached buffer for key, or (nil, false) on miss.
// A hit refreshes the entry's LRU position.
func (c *Cache) Get(key string) (*imaging.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		if c.metrics != nil {
			c.metrics.ObserveMiss()
		}
		return nil, false
	}

	c.order.MoveToFront(el)
	if c.metrics != nil {
		c.metrics.ObserveHit()
	}
	return el.Value.(*entry).buf, true
}

// Put stores buf under key, replacing any previous value, then evicts
// least-recently-used entries until the cache fits its budget. Unusable
// buffers are ignored.
func (c *Cache) Put(key string, buf *imaging.Buffer) {
	if !buf.Usable() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		old := el.Value.(*entry)
		c.bytes -= old.bytes
		old.buf = buf
		old.bytes = buf.ByteSize()
		c.bytes += old.bytes
		c.order.MoveToFront(el)
	} else {
		e := &entry{key: key, buf: buf, bytes: buf.ByteSize()}
		c.entries[key] = c.order.PushFront(e)
		c.bytes += e.bytes
	}

	c.evictLocked()
	c.reportUsageLocked()
}

// Remove drops the entry for key. Removing a missing key is a no-op.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
		c.reportUsageLocked()
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.bytes = 0
	c.reportUsageLocked()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the estimated decoded size of all cached entries.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// evictLocked removes LRU entries until the budget is met. Callers hold mu.
func (c *Cache) evictLocked() {
	if c.maxBytes <= 0 {
		return
	}
	for c.bytes > c.maxBytes && c.order.Len() > 1 {
		c.removeLocked(c.order.Back())
		if c.metrics != nil {
			c.metrics.ObserveEviction()
		}
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(el)
	c.bytes -= e.bytes
}

func (c *Cache) reportUsageLocked() {
	if c.metrics != nil {
		c.metrics.SetUsage(len(c.entries), c.bytes)
	}
}
