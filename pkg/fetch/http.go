package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultHTTPTimeout bounds a whole HTTP fetch when no timeout is
// configured. The pipeline itself imposes no stage timeouts, so this is the
// only thing standing between a dead server and an indefinitely blocked
// same-key lock queue.
const DefaultHTTPTimeout = 30 * time.Second

const defaultUserAgent = "pixload/1.0"

// HTTPConfig configures the HTTP strategy.
type HTTPConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// HTTPFetcher fetches http:// and https:// URIs with net/http.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// StatusError reports a non-2xx response. It classifies as an I/O failure.
type StatusError struct {
	URI  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: %s returned status %d", e.URI, e.Code)
}

// NewHTTPFetcher builds an HTTPFetcher, applying defaults for unset fields.
func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: ua,
	}
}

// Open implements the per-scheme strategy contract.
//
// Recognized extra keys: "headers" (map[string]string) merged into the
// request headers.
func (f *HTTPFetcher) Open(ctx context.Context, uri string, extra map[string]any) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	if extra != nil {
		if headers, ok := extra["headers"].(map[string]string); ok {
			for k, v := range headers {
				req.Header.Set(k, v)
			}
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, 0, &StatusError{URI: uri, Code: resp.StatusCode}
	}

	return resp.Body, resp.ContentLength, nil
}
