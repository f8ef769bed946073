package engine

import (
	"time"

	"github.com/pixload/pixload/pkg/imaging"
)

// Processor transforms a decoded buffer at a fixed pipeline point. A nil
// return is logged and treated as "no change": the input buffer proceeds
// unmodified. Processors must not mutate their input.
type Processor interface {
	Process(buf *imaging.Buffer) *imaging.Buffer
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(buf *imaging.Buffer) *imaging.Buffer

func (f ProcessorFunc) Process(buf *imaging.Buffer) *imaging.Buffer { return f(buf) }

// Options controls a single request's path through the pipeline. The zero
// value disables caching and every optional stage; see DefaultOptions for
// the engine-level default.
type Options struct {
	// DelayBeforeLoading is waited out after the pause gate and before any
	// work happens. Zero disables the delay.
	DelayBeforeLoading time.Duration

	// CacheInMemory publishes the processed buffer to the memory cache.
	CacheInMemory bool

	// CacheOnDisc persists the fetched bytes to the disc cache before
	// decoding.
	CacheOnDisc bool

	// Scale selects how the decode honors the target size. ScaleNone
	// falls back to the engine default.
	Scale imaging.ScaleMode

	// PreProcessor runs on the freshly decoded buffer before it is cached
	// in memory.
	PreProcessor Processor

	// PostProcessor runs on the buffer (fresh or memory-cached) right
	// before dispatch.
	PostProcessor Processor

	// DiscCacheProcessor runs on the sized re-encode written to the disc
	// cache. It never affects the buffer delivered to the target.
	DiscCacheProcessor Processor

	// PlaceholderOnFail names a fallback resource shown on terminal
	// failure when the target implements PlaceholderDisplayer.
	PlaceholderOnFail string

	// Extra is passed through to the fetcher (for example HTTP headers).
	Extra map[string]any
}
