package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	// Register the stdlib codecs with image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pixload/pixload/internal/logger"
)

// DefaultMaxPixels is the decode pixel budget when none is configured
// (64 megapixels, ~256MB decoded).
const DefaultMaxPixels = 64 << 20

// StdDecoder decodes JPEG/PNG/GIF via the standard library and downscales
// toward the target size by integer sample stepping.
type StdDecoder struct {
	// MaxPixels is the largest width*height this decoder will decode.
	// Zero means DefaultMaxPixels.
	MaxPixels int64
}

// NewStdDecoder returns a StdDecoder with the default pixel budget.
func NewStdDecoder() *StdDecoder {
	return &StdDecoder{MaxPixels: DefaultMaxPixels}
}

// Decode implements Decoder.
func (d *StdDecoder) Decode(ctx context.Context, spec DecodeSpec) (*Buffer, error) {
	if spec.Source == nil {
		return nil, fmt.Errorf("%w: no source", ErrUnusable)
	}

	rc, err := spec.Source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	// Stdlib decoders need the stream twice (config probe, then decode),
	// so buffer the encoded bytes. Encoded images are small relative to
	// their decoded form; the pixel budget below bounds the real cost.
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}

	budget := d.MaxPixels
	if budget <= 0 {
		budget = DefaultMaxPixels
	}
	if int64(cfg.Width)*int64(cfg.Height) > budget {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnusable, err)
	}

	buf := &Buffer{Image: img, Format: format}
	if !buf.Usable() {
		return nil, fmt.Errorf("%w: empty image", ErrUnusable)
	}

	if spec.Scale == ScaleNone || spec.TargetSize.IsZero() {
		return buf, nil
	}

	scaled := downscale(buf.Image, spec.TargetSize, spec.Scale)
	if scaled != buf.Image {
		logger.Debug("downscaled image",
			"key", spec.Key,
			"from", fmt.Sprintf("%dx%d", buf.Width(), buf.Height()),
			"to", fmt.Sprintf("%dx%d", scaled.Bounds().Dx(), scaled.Bounds().Dy()),
			"mode", spec.Scale.String())
	}
	return &Buffer{Image: scaled, Format: format}, nil
}

// sampleStep returns the smallest integer step at which the image fits
// inside the target.
func sampleStep(w, h int, target TargetSize) int {
	step := 1
	for {
		fitW := target.Width <= 0 || (w+step-1)/step <= target.Width
		fitH := target.Height <= 0 || (h+step-1)/step <= target.Height
		if fitW && fitH {
			return step
		}
		step++
	}
}

func downscale(img image.Image, target TargetSize, mode ScaleMode) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	step := sampleStep(w, h, target)
	if step > 1 {
		img = subsample(img, step)
		b = img.Bounds()
		w, h = b.Dx(), b.Dy()
	}

	if mode != ScaleExactFit {
		return img
	}

	// Exact fit-inside resize, preserving aspect ratio.
	dw, dh := fitInside(w, h, target)
	if dw == w && dh == h {
		return img
	}
	return resizeNearest(img, dw, dh)
}

// fitInside computes the largest dimensions <= target with the same aspect
// ratio as (w, h). Unset target axes are unconstrained.
func fitInside(w, h int, target TargetSize) (int, int) {
	tw, th := target.Width, target.Height
	if tw <= 0 {
		tw = w
	}
	if th <= 0 {
		th = h
	}
	if w <= tw && h <= th {
		return w, h
	}

	scaleW := float64(tw) / float64(w)
	scaleH := float64(th) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	return dw, dh
}

// subsample picks every step-th pixel. Cheap and good enough for thumbnail
// reduction; exact-fit callers refine with resizeNearest afterwards.
func subsample(img image.Image, step int) image.Image {
	b := img.Bounds()
	dw := (b.Dx() + step - 1) / step
	dh := (b.Dy() + step - 1) / step

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		srcY := b.Min.Y + y*step
		for x := 0; x < dw; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*step, srcY))
		}
	}
	return dst
}

func resizeNearest(img image.Image, dw, dh int) image.Image {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	for y := 0; y < dh; y++ {
		srcY := b.Min.Y + y*sh/dh
		for x := 0; x < dw; x++ {
			dst.Set(x, y, img.At(b.Min.X+x*sw/dw, srcY))
		}
	}
	return dst
}
