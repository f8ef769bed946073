// Package fetch provides the byte-stream fetch strategies for the load
// pipeline: HTTP(S), local files and S3 objects behind one scheme-dispatching
// Fetcher, plus the denied and flaky decorators the engine swaps in when the
// network mode changes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrNetworkDenied is returned by the denied strategy without attempting
// any I/O.
var ErrNetworkDenied = errors.New("fetch: network access denied")

// ErrUnsupportedScheme is returned for URIs no strategy handles.
var ErrUnsupportedScheme = errors.New("fetch: unsupported URI scheme")

// Fetcher opens a byte stream for a URI.
//
// The returned size is the total stream length in bytes, or -1 when unknown
// (used for progress reporting). extra carries caller-supplied opaque data;
// strategies ignore keys they do not recognize.
type Fetcher interface {
	Open(ctx context.Context, uri string, extra map[string]any) (io.ReadCloser, int64, error)
}

// BaseFetcher dispatches to a per-scheme strategy. Strategies left nil
// reject their scheme with ErrUnsupportedScheme.
type BaseFetcher struct {
	HTTP *HTTPFetcher
	File *FileFetcher
	S3   *S3Fetcher
}

// NewBaseFetcher returns a BaseFetcher with HTTP and file strategies wired
// with defaults. S3 stays nil until configured.
func NewBaseFetcher() *BaseFetcher {
	return &BaseFetcher{
		HTTP: NewHTTPFetcher(HTTPConfig{}),
		File: &FileFetcher{},
	}
}

// Open implements Fetcher.
func (f *BaseFetcher) Open(ctx context.Context, uri string, extra map[string]any) (io.ReadCloser, int64, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch: parse uri %q: %w", uri, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if f.HTTP == nil {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
		}
		return f.HTTP.Open(ctx, uri, extra)
	case "file", "":
		if f.File == nil {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
		}
		return f.File.Open(ctx, uri, extra)
	case "s3":
		if f.S3 == nil {
			return nil, 0, fmt.Errorf("%w: s3 fetcher not configured", ErrUnsupportedScheme)
		}
		return f.S3.Open(ctx, uri, extra)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}
