package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pixload/pixload/internal/logger"
	"github.com/pixload/pixload/pkg/engine"
	"github.com/pixload/pixload/pkg/imaging"
)

type imageHandler struct {
	engine  *engine.Engine
	encoder imaging.Encoder
}

func newImageHandler(eng *engine.Engine) *imageHandler {
	return &imageHandler{engine: eng, encoder: imaging.NewStdEncoder()}
}

// Get serves GET /v1/image?src=<uri>&w=<px>&h=<px>&scale=<mode>.
//
// The image is loaded through the full pipeline, so repeated requests for
// the same src and size are served from cache. The tier that satisfied the
// request is reported in the X-Pixload-Tier header.
func (h *imageHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	src := q.Get("src")
	if src == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: src")
		return
	}

	width, err := intParam(q.Get("w"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid parameter: w")
		return
	}
	height, err := intParam(q.Get("h"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid parameter: h")
		return
	}

	req := &engine.Request{
		URI:        src,
		TargetSize: imaging.TargetSize{Width: width, Height: height},
	}

	if s := q.Get("scale"); s != "" {
		mode, ok := imaging.ParseScaleMode(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid parameter: scale")
			return
		}
		opts := h.engine.DefaultOptions()
		opts.Scale = mode
		req.Options = &opts
	}

	buf, tier, err := h.engine.Load(r.Context(), req)
	if err != nil {
		h.writeLoadError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", imaging.ContentType(buf.Format))
	w.Header().Set("X-Pixload-Tier", tier.String())
	if err := h.encoder.Encode(w, buf, imaging.EncodeOptions{Format: buf.Format}); err != nil {
		// Headers are gone; all we can do is log.
		logger.Error("failed to encode response image", "src", src, "error", err)
	}
}

// writeLoadError maps a pipeline outcome to an HTTP status.
func (h *imageHandler) writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Client gave up; nobody is reading the response.
		return
	}

	var reason engine.FailReason
	if errors.As(err, &reason) {
		switch reason.Kind {
		case engine.FailNetworkDenied:
			writeError(w, http.StatusServiceUnavailable, "network access is denied")
		case engine.FailIO:
			writeError(w, http.StatusBadGateway, "failed to fetch image")
		case engine.FailDecoding:
			writeError(w, http.StatusUnprocessableEntity, "source is not a decodable image")
		case engine.FailOutOfMemory:
			writeError(w, http.StatusRequestEntityTooLarge, "image exceeds the pixel budget")
		default:
			writeError(w, http.StatusInternalServerError, "image load failed")
		}
		return
	}

	switch {
	case errors.Is(err, engine.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "load queue is full")
	case errors.Is(err, engine.ErrLoadCancelled):
		writeError(w, http.StatusConflict, "load was cancelled")
	case errors.Is(err, engine.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
	default:
		writeError(w, http.StatusInternalServerError, "image load failed")
	}
}

type adminHandler struct {
	engine *engine.Engine
}

func newAdminHandler(eng *engine.Engine) *adminHandler {
	return &adminHandler{engine: eng}
}

func (h *adminHandler) Pause(w http.ResponseWriter, _ *http.Request) {
	h.engine.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *adminHandler) Resume(w http.ResponseWriter, _ *http.Request) {
	h.engine.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type networkModeRequest struct {
	Mode string `json:"mode"`
}

func (h *adminHandler) SetNetworkMode(w http.ResponseWriter, r *http.Request) {
	var req networkModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	mode, ok := engine.ParseNetworkMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid network mode: "+req.Mode)
		return
	}
	h.engine.SetNetworkMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"network_mode": mode.String()})
}

func (h *adminHandler) Status(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"paused":       h.engine.Paused(),
		"network_mode": h.engine.NetworkMode().String(),
		"in_flight":    h.engine.InFlight(),
	}
	if mem := h.engine.MemoryCache(); mem != nil {
		status["memory_cache"] = map[string]any{
			"entries": mem.Len(),
			"bytes":   mem.Bytes(),
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *adminHandler) ClearMemoryCache(w http.ResponseWriter, _ *http.Request) {
	mem := h.engine.MemoryCache()
	if mem == nil {
		writeError(w, http.StatusNotFound, "memory cache is not enabled")
		return
	}
	mem.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *adminHandler) RemoveDiscEntry(w http.ResponseWriter, r *http.Request) {
	dc := h.engine.DiscCache()
	if dc == nil {
		writeError(w, http.StatusNotFound, "disc cache is not enabled")
		return
	}
	src := r.URL.Query().Get("src")
	if src == "" {
		writeError(w, http.StatusBadRequest, "missing required parameter: src")
		return
	}
	if err := dc.Remove(src); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove disc entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
