package imaging

import (
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
)

// DefaultJPEGQuality is used when EncodeOptions.Quality is zero.
const DefaultJPEGQuality = 85

// StdEncoder serializes buffers with the standard library codecs.
type StdEncoder struct{}

// NewStdEncoder returns a StdEncoder.
func NewStdEncoder() *StdEncoder {
	return &StdEncoder{}
}

// Encode implements Encoder. An empty Format falls back to the buffer's
// source format, then to JPEG.
func (e *StdEncoder) Encode(w io.Writer, buf *Buffer, opts EncodeOptions) error {
	if !buf.Usable() {
		return fmt.Errorf("%w: cannot encode", ErrUnusable)
	}

	format := opts.Format
	if format == "" {
		format = buf.Format
	}

	switch format {
	case "png":
		return png.Encode(w, buf.Image)
	case "gif":
		return gif.Encode(w, buf.Image, nil)
	default:
		quality := opts.Quality
		if quality <= 0 {
			quality = DefaultJPEGQuality
		}
		return jpeg.Encode(w, buf.Image, &jpeg.Options{Quality: quality})
	}
}

// ContentType maps a buffer format to its MIME type for HTTP delivery.
func ContentType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
