// Package imaging defines the decoded image buffer type and the decode and
// encode contracts used by the load pipeline. Decoding is built on the
// standard library image codecs (JPEG, PNG, GIF) with integer sample-step
// downscaling toward a target size.
package imaging

import (
	"context"
	"errors"
	"image"
	"io"
)

// ErrUnusable marks a decode attempt that produced no usable image: the
// bytes were readable but did not parse into an image with positive
// dimensions.
var ErrUnusable = errors.New("imaging: decoded result is unusable")

// ErrTooLarge marks an image whose pixel count exceeds the decoder's budget.
// Decoding it would risk exhausting process memory, so it is refused before
// allocation.
var ErrTooLarge = errors.New("imaging: image exceeds pixel budget")

// Buffer is a decoded image plus its source format. Buffers are immutable
// once constructed; processors return new buffers rather than mutating.
type Buffer struct {
	Image  image.Image
	Format string // "jpeg", "png", "gif"
}

// Width returns the pixel width, or 0 for a nil image.
func (b *Buffer) Width() int {
	if b == nil || b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dx()
}

// Height returns the pixel height, or 0 for a nil image.
func (b *Buffer) Height() int {
	if b == nil || b.Image == nil {
		return 0
	}
	return b.Image.Bounds().Dy()
}

// Usable reports whether the buffer holds an image with positive dimensions.
func (b *Buffer) Usable() bool {
	return b != nil && b.Image != nil && b.Width() > 0 && b.Height() > 0
}

// ByteSize estimates the in-memory footprint (4 bytes per pixel), used for
// memory cache accounting.
func (b *Buffer) ByteSize() int64 {
	if b == nil || b.Image == nil {
		return 0
	}
	return int64(b.Width()) * int64(b.Height()) * 4
}

// TargetSize is the sizing hint for a decode: the dimensions the consumer
// will display at. A zero value means "intrinsic size".
type TargetSize struct {
	Width  int
	Height int
}

// IsZero reports whether no sizing hint was given.
func (s TargetSize) IsZero() bool {
	return s.Width <= 0 && s.Height <= 0
}

// ScaleMode selects how a decoded image is reduced toward the target size.
type ScaleMode int

const (
	// ScaleNone decodes at intrinsic size.
	ScaleNone ScaleMode = iota

	// ScaleSampleFit downscales by an integer sample step until the image
	// fits inside the target. Fast, approximate.
	ScaleSampleFit

	// ScaleExactFit sample-steps and then resizes exactly to fit inside the
	// target, preserving aspect ratio.
	ScaleExactFit
)

func (m ScaleMode) String() string {
	switch m {
	case ScaleNone:
		return "none"
	case ScaleSampleFit:
		return "sample-fit"
	case ScaleExactFit:
		return "exact-fit"
	default:
		return "unknown"
	}
}

// ParseScaleMode maps a config/query string to a ScaleMode.
func ParseScaleMode(s string) (ScaleMode, bool) {
	switch s {
	case "", "sample-fit":
		return ScaleSampleFit, true
	case "none":
		return ScaleNone, true
	case "exact-fit":
		return ScaleExactFit, true
	default:
		return ScaleNone, false
	}
}

// Source supplies the bytes for one decode attempt. Each Open returns a
// fresh stream; the decoder owns closing it.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open implements Source.
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// DecodeSpec carries everything one decode needs.
type DecodeSpec struct {
	// Key identifies the request in logs.
	Key string

	// Source supplies the encoded bytes.
	Source Source

	// TargetSize is the sizing hint; zero means intrinsic size.
	TargetSize TargetSize

	// Scale selects the downscale policy toward TargetSize.
	Scale ScaleMode
}

// Decoder turns an encoded byte source into a Buffer.
//
// Errors: source open/read failures are returned as-is (transport errors);
// parse failures and empty results are wrapped in ErrUnusable; refusing an
// oversized image returns ErrTooLarge.
type Decoder interface {
	Decode(ctx context.Context, spec DecodeSpec) (*Buffer, error)
}

// EncodeOptions carries format-specific encoding parameters.
type EncodeOptions struct {
	Format  string // "jpeg" or "png"; empty uses the buffer's source format
	Quality int    // JPEG quality 1-100; 0 = default
}

// Encoder serializes a Buffer, used by the disc-cache recompress path.
type Encoder interface {
	Encode(w io.Writer, buf *Buffer, opts EncodeOptions) error
}
