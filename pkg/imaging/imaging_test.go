package imaging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
)

// encodePNG renders a w x h test image to PNG bytes.
func encodePNG(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func bytesSource(data []byte) Source {
	return SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func TestDecode_IntrinsicSize(t *testing.T) {
	d := NewStdDecoder()
	buf, err := d.Decode(context.Background(), DecodeSpec{
		Key:    "test",
		Source: bytesSource(encodePNG(t, 40, 30)),
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if buf.Width() != 40 || buf.Height() != 30 {
		t.Errorf("got %dx%d, want 40x30", buf.Width(), buf.Height())
	}
	if buf.Format != "png" {
		t.Errorf("format = %q, want png", buf.Format)
	}
}

func TestDecode_SampleFit(t *testing.T) {
	d := NewStdDecoder()
	buf, err := d.Decode(context.Background(), DecodeSpec{
		Key:        "test",
		Source:     bytesSource(encodePNG(t, 100, 80)),
		TargetSize: TargetSize{Width: 50, Height: 50},
		Scale:      ScaleSampleFit,
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if buf.Width() > 50 || buf.Height() > 50 {
		t.Errorf("sample-fit result %dx%d exceeds target", buf.Width(), buf.Height())
	}
	if !buf.Usable() {
		t.Error("result should be usable")
	}
}

func TestDecode_ExactFitPreservesAspect(t *testing.T) {
	d := NewStdDecoder()
	buf, err := d.Decode(context.Background(), DecodeSpec{
		Key:        "test",
		Source:     bytesSource(encodePNG(t, 200, 100)),
		TargetSize: TargetSize{Width: 50, Height: 50},
		Scale:      ScaleExactFit,
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if buf.Width() != 50 || buf.Height() != 25 {
		t.Errorf("got %dx%d, want 50x25", buf.Width(), buf.Height())
	}
}

func TestDecode_GarbageIsUnusable(t *testing.T) {
	d := NewStdDecoder()
	_, err := d.Decode(context.Background(), DecodeSpec{
		Key:    "test",
		Source: bytesSource([]byte("definitely not an image")),
	})
	if !errors.Is(err, ErrUnusable) {
		t.Errorf("err = %v, want ErrUnusable", err)
	}
}

func TestDecode_PixelBudget(t *testing.T) {
	d := &StdDecoder{MaxPixels: 100} // tiny budget
	_, err := d.Decode(context.Background(), DecodeSpec{
		Key:    "test",
		Source: bytesSource(encodePNG(t, 20, 20)),
	})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestDecode_SourceErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("connection reset")
	d := NewStdDecoder()
	_, err := d.Decode(context.Background(), DecodeSpec{
		Key: "test",
		Source: SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
			return nil, sentinel
		}),
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want the source error unwrapped", err)
	}
	if errors.Is(err, ErrUnusable) {
		t.Error("transport errors must not classify as decode errors")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	d := NewStdDecoder()
	e := NewStdEncoder()

	orig, err := d.Decode(context.Background(), DecodeSpec{
		Key:    "test",
		Source: bytesSource(encodePNG(t, 16, 16)),
	})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	var out bytes.Buffer
	if err := e.Encode(&out, orig, EncodeOptions{Format: "jpeg", Quality: 90}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	back, err := d.Decode(context.Background(), DecodeSpec{
		Key:    "test",
		Source: bytesSource(out.Bytes()),
	})
	if err != nil {
		t.Fatalf("re-Decode failed: %v", err)
	}
	if back.Width() != 16 || back.Height() != 16 {
		t.Errorf("round trip changed dimensions: %dx%d", back.Width(), back.Height())
	}
	if back.Format != "jpeg" {
		t.Errorf("format = %q, want jpeg", back.Format)
	}
}

func TestBuffer_Usable(t *testing.T) {
	var nilBuf *Buffer
	if nilBuf.Usable() {
		t.Error("nil buffer must not be usable")
	}
	if (&Buffer{}).Usable() {
		t.Error("empty buffer must not be usable")
	}
	empty := &Buffer{Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}
	if empty.Usable() {
		t.Error("zero-dimension buffer must not be usable")
	}
}

func TestParseScaleMode(t *testing.T) {
	if m, ok := ParseScaleMode(""); !ok || m != ScaleSampleFit {
		t.Errorf("empty should default to sample-fit, got %v %v", m, ok)
	}
	if _, ok := ParseScaleMode("stretch"); ok {
		t.Error("unknown mode should not parse")
	}
}
