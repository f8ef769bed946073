package fetch

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
)

// FileFetcher serves file:// URIs and plain paths from the local filesystem.
// Decoding straight from the disc cache goes through here.
type FileFetcher struct{}

// Open implements the per-scheme strategy contract.
func (f *FileFetcher) Open(ctx context.Context, uri string, _ map[string]any) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	path := FilePath(uri)
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, err
	}

	return file, info.Size(), nil
}

// FilePath strips the file:// scheme from a URI, if present.
func FilePath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	if u, err := url.Parse(uri); err == nil && u.Path != "" {
		return u.Path
	}
	return strings.TrimPrefix(uri, "file://")
}

// FileURI wraps a filesystem path as a file:// URI.
func FileURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	return "file://" + path
}
