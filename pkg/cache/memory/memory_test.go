package memory

import (
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/pixload/pixload/pkg/imaging"
)

// testBuffer builds a w x h buffer (ByteSize = w*h*4).
func testBuffer(w, h int) *imaging.Buffer {
	return &imaging.Buffer{Image: image.NewRGBA(image.Rect(0, 0, w, h)), Format: "png"}
}

func TestGetPut(t *testing.T) {
	c := New(0, nil)

	if _, ok := c.Get("missing"); ok {
		t.Error("Get on empty cache should miss")
	}

	buf := testBuffer(4, 4)
	c.Put("k1", buf)

	got, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != buf {
		t.Error("hit should return the stored pointer")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if c.Bytes() != buf.ByteSize() {
		t.Errorf("Bytes = %d, want %d", c.Bytes(), buf.ByteSize())
	}
}

func TestPutReplaces(t *testing.T) {
	c := New(0, nil)
	c.Put("k", testBuffer(2, 2))
	bigger := testBuffer(8, 8)
	c.Put("k", bigger)

	got, _ := c.Get("k")
	if got != bigger {
		t.Error("Put should replace the previous value")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if c.Bytes() != bigger.ByteSize() {
		t.Errorf("Bytes = %d, want %d (no double counting)", c.Bytes(), bigger.ByteSize())
	}
}

func TestPutUnusableIgnored(t *testing.T) {
	c := New(0, nil)
	c.Put("k", nil)
	c.Put("k", &imaging.Buffer{})
	if c.Len() != 0 {
		t.Error("unusable buffers must not be cached")
	}
}

func TestLRUEviction(t *testing.T) {
	// Each 4x4 buffer is 64 bytes; budget fits two.
	c := New(128, nil)
	c.Put("a", testBuffer(4, 4))
	c.Put("b", testBuffer(4, 4))

	// Touch "a" so "b" becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}

	c.Put("c", testBuffer(4, 4))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted (least recently used)")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be present")
	}
}

func TestOversizedEntryKept(t *testing.T) {
	// A single entry larger than the budget stays (evict never drops the
	// last entry), matching the behavior of a cache that always admits
	// the value just written.
	c := New(16, nil)
	c.Put("huge", testBuffer(10, 10))
	if _, ok := c.Get("huge"); !ok {
		t.Error("the only entry must not evict itself")
	}
}

func TestRemoveAndClear(t *testing.T) {
	c := New(0, nil)
	c.Put("a", testBuffer(2, 2))
	c.Put("b", testBuffer(2, 2))

	c.Remove("a")
	c.Remove("a") // idempotent
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}

	c.Clear()
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Errorf("Clear left %d entries, %d bytes", c.Len(), c.Bytes())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(1<<20, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", j%10)
				c.Put(key, testBuffer(4, 4))
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
}

type countingMetrics struct {
	mu                     sync.Mutex
	hits, misses, evicts   int
	entries                int
	bytes                  int64
}

func (m *countingMetrics) ObserveHit()      { m.mu.Lock(); m.hits++; m.mu.Unlock() }
func (m *countingMetrics) ObserveMiss()     { m.mu.Lock(); m.misses++; m.mu.Unlock() }
func (m *countingMetrics) ObserveEviction() { m.mu.Lock(); m.evicts++; m.mu.Unlock() }
func (m *countingMetrics) SetUsage(entries int, bytes int64) {
	m.mu.Lock()
	m.entries, m.bytes = entries, bytes
	m.mu.Unlock()
}

func TestMetricsHook(t *testing.T) {
	m := &countingMetrics{}
	c := New(128, m)

	c.Get("nope")
	c.Put("a", testBuffer(4, 4))
	c.Get("a")
	c.Put("b", testBuffer(4, 4))
	c.Put("c", testBuffer(4, 4)) // evicts one

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.misses != 1 || m.hits != 1 {
		t.Errorf("hits=%d misses=%d, want 1/1", m.hits, m.misses)
	}
	if m.evicts != 1 {
		t.Errorf("evictions = %d, want 1", m.evicts)
	}
	if m.entries != 2 {
		t.Errorf("usage entries = %d, want 2", m.entries)
	}
}
