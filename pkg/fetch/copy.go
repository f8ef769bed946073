package fetch

import (
	"context"
	"io"
)

// copyBufferSize matches the chunking used for progress reporting.
const copyBufferSize = 32 * 1024

// ProgressFunc receives copy progress. total is -1 when the stream length
// is unknown.
type ProgressFunc func(done, total int64)

// Copy streams src into dst in fixed-size chunks, checking ctx between
// chunks and reporting progress after each one. It returns the byte count
// copied so far even on error, so partial writes can be cleaned up.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var done int64

	for {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return done, err
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
		}
		if readErr == io.EOF {
			return done, nil
		}
		if readErr != nil {
			return done, readErr
		}
	}
}
