package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixload/pixload/pkg/cache/disc"
	"github.com/pixload/pixload/pkg/cache/memory"
	"github.com/pixload/pixload/pkg/engine"
	"github.com/pixload/pixload/pkg/fetch"
)

// stubFetcher serves fixed bytes per URI and counts opens.
type stubFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	opens map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{data: make(map[string][]byte), opens: make(map[string]int)}
}

func (f *stubFetcher) serve(uri string, data []byte) {
	f.mu.Lock()
	f.data[uri] = data
	f.mu.Unlock()
}

func (f *stubFetcher) openCount(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[uri]
}

func (f *stubFetcher) Open(_ context.Context, uri string, _ map[string]any) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens[uri]++
	data, ok := f.data[uri]
	if !ok {
		return nil, 0, &fetch.StatusError{URI: uri, Code: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func newTestRouter(t *testing.T) (http.Handler, *stubFetcher) {
	t.Helper()
	f := newStubFetcher()
	eng := engine.New(engine.Config{Workers: 2}, engine.Deps{
		MemoryCache: memory.New(1<<20, nil),
		DiscCache:   disc.New(t.TempDir(), ""),
		Fetcher:     f,
	})
	t.Cleanup(eng.Stop)
	return NewRouter(eng, 5*time.Second), f
}

func doRequest(router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestGetImage(t *testing.T) {
	router, f := newTestRouter(t)
	f.serve("http://img/a.png", pngBytes(t, 8, 8))

	rec := doRequest(router, "GET", "/v1/image?src=http://img/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if tier := rec.Header().Get("X-Pixload-Tier"); tier != "network" {
		t.Errorf("tier = %q, want network", tier)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("response is not a decodable PNG: %v", err)
	}

	// Same request again: served from memory without a second fetch.
	rec = doRequest(router, "GET", "/v1/image?src=http://img/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second request status = %d", rec.Code)
	}
	if tier := rec.Header().Get("X-Pixload-Tier"); tier != "memory" {
		t.Errorf("second request tier = %q, want memory", tier)
	}
	if n := f.openCount("http://img/a.png"); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}
}

func TestGetImageResized(t *testing.T) {
	router, f := newTestRouter(t)
	f.serve("http://img/big.png", pngBytes(t, 64, 32))

	rec := doRequest(router, "GET", "/v1/image?src=http://img/big.png&w=16&h=16&scale=exact-fit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > 16 || b.Dy() > 16 {
		t.Errorf("resized image is %dx%d, want within 16x16", b.Dx(), b.Dy())
	}
}

func TestGetImageValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name   string
		target string
	}{
		{"missing src", "/v1/image"},
		{"bad width", "/v1/image?src=http://img/a.png&w=abc"},
		{"negative height", "/v1/image?src=http://img/a.png&h=-5"},
		{"bad scale", "/v1/image?src=http://img/a.png&scale=stretch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := doRequest(router, "GET", tc.target, nil); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetImageFetchFailure(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, "GET", "/v1/image?src=http://img/missing.png", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestGetImageUndecodable(t *testing.T) {
	router, f := newTestRouter(t)
	f.serve("http://img/garbage.bin", []byte("not an image at all"))

	rec := doRequest(router, "GET", "/v1/image?src=http://img/garbage.bin", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestAdminPauseResumeStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	if rec := doRequest(router, "POST", "/v1/admin/pause", nil); rec.Code != http.StatusOK {
		t.Fatalf("pause status = %d", rec.Code)
	}

	rec := doRequest(router, "GET", "/v1/admin/status", nil)
	var status map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["paused"] != true {
		t.Errorf("status.paused = %v, want true", status["paused"])
	}
	if status["network_mode"] != "normal" {
		t.Errorf("status.network_mode = %v, want normal", status["network_mode"])
	}

	if rec := doRequest(router, "POST", "/v1/admin/resume", nil); rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d", rec.Code)
	}
	rec = doRequest(router, "GET", "/v1/admin/status", nil)
	status = nil
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["paused"] != false {
		t.Errorf("status.paused = %v after resume, want false", status["paused"])
	}
}

func TestAdminNetworkMode(t *testing.T) {
	router, f := newTestRouter(t)
	f.serve("http://img/a.png", pngBytes(t, 8, 8))

	rec := doRequest(router, "PUT", "/v1/admin/network-mode", strings.NewReader(`{"mode":"denied"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("set mode status = %d", rec.Code)
	}

	rec = doRequest(router, "GET", "/v1/image?src=http://img/a.png", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("denied load status = %d, want 503", rec.Code)
	}

	rec = doRequest(router, "PUT", "/v1/admin/network-mode", strings.NewReader(`{"mode":"nope"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", rec.Code)
	}

	rec = doRequest(router, "PUT", "/v1/admin/network-mode", strings.NewReader(`{"mode":"normal"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("restore mode status = %d", rec.Code)
	}
	if rec := doRequest(router, "GET", "/v1/image?src=http://img/a.png", nil); rec.Code != http.StatusOK {
		t.Errorf("normal load status = %d, want 200", rec.Code)
	}
}

func TestAdminCacheRemoval(t *testing.T) {
	router, f := newTestRouter(t)
	f.serve("http://img/a.png", pngBytes(t, 8, 8))

	if rec := doRequest(router, "GET", "/v1/image?src=http://img/a.png", nil); rec.Code != http.StatusOK {
		t.Fatalf("initial load status = %d", rec.Code)
	}

	if rec := doRequest(router, "DELETE", "/v1/admin/cache/memory", nil); rec.Code != http.StatusNoContent {
		t.Errorf("memory clear status = %d, want 204", rec.Code)
	}
	if rec := doRequest(router, "DELETE", "/v1/admin/cache/disc?src=http://img/a.png", nil); rec.Code != http.StatusNoContent {
		t.Errorf("disc remove status = %d, want 204", rec.Code)
	}
	if rec := doRequest(router, "DELETE", "/v1/admin/cache/disc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("disc remove without src = %d, want 400", rec.Code)
	}

	// Both tiers dropped: the next load goes back to the source.
	rec := doRequest(router, "GET", "/v1/image?src=http://img/a.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d", rec.Code)
	}
	if tier := rec.Header().Get("X-Pixload-Tier"); tier != "network" {
		t.Errorf("reload tier = %q, want network", tier)
	}
	if n := f.openCount("http://img/a.png"); n != 2 {
		t.Errorf("fetch count = %d, want 2", n)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}
