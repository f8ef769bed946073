package fetch

import (
	"context"
	"io"
	"time"
)

// DeniedFetcher refuses every fetch without attempting any I/O. The engine
// swaps it in when the network mode is DENIED.
type DeniedFetcher struct{}

// Open implements Fetcher.
func (DeniedFetcher) Open(_ context.Context, _ string, _ map[string]any) (io.ReadCloser, int64, error) {
	return nil, 0, ErrNetworkDenied
}

// DefaultFlakyChunk is the read chunk the flaky decorator allows between
// pauses when none is configured.
const DefaultFlakyChunk = 4096

// FlakyFetcher throttles another fetcher's streams. The engine swaps it in
// when the network mode is DEGRADED, so large transfers back off instead of
// saturating a bad link.
type FlakyFetcher struct {
	Inner Fetcher

	// ChunkSize is how many bytes flow between pauses. Zero means
	// DefaultFlakyChunk.
	ChunkSize int

	// Pause is how long to sleep between chunks. Zero disables sleeping
	// and only chunks the reads.
	Pause time.Duration
}

// Open implements Fetcher.
func (f *FlakyFetcher) Open(ctx context.Context, uri string, extra map[string]any) (io.ReadCloser, int64, error) {
	rc, size, err := f.Inner.Open(ctx, uri, extra)
	if err != nil {
		return nil, 0, err
	}

	chunk := f.ChunkSize
	if chunk <= 0 {
		chunk = DefaultFlakyChunk
	}

	return &throttledReader{ctx: ctx, rc: rc, chunk: chunk, pause: f.Pause}, size, nil
}

type throttledReader struct {
	ctx   context.Context
	rc    io.ReadCloser
	chunk int
	pause time.Duration
}

func (r *throttledReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if len(p) > r.chunk {
		p = p[:r.chunk]
	}
	n, err := r.rc.Read(p)
	if r.pause > 0 && n > 0 {
		select {
		case <-time.After(r.pause):
		case <-r.ctx.Done():
			return n, r.ctx.Err()
		}
	}
	return n, err
}

func (r *throttledReader) Close() error {
	return r.rc.Close()
}
