package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/pixload/pixload/internal/logger"
	"github.com/pixload/pixload/pkg/fetch"
	"github.com/pixload/pixload/pkg/imaging"
)

// task carries one request through the load pipeline on a worker goroutine.
// Every exit path ends in exactly one terminal outcome: a display dispatch,
// a cancel, a fail, or silence when the caller's context was cancelled.
type task struct {
	engine    *Engine
	ctx       context.Context
	id        string
	uri       string
	key       string
	size      imaging.TargetSize
	opts      *Options
	listener  Listener
	ref       TargetRef
	targetID  string
	submitted time.Time

	tier SourceTier

	// cached is set when Submit found a memory hit that still needs
	// post-processing; the task skips fetch and decode entirely.
	cached *imaging.Buffer

	log        *slog.Logger
	finishOnce sync.Once
}

func (t *task) run() {
	if t.cached != nil {
		t.runPostProcessOnly()
		return
	}

	if err := t.engine.awaitResume(t.ctx); err != nil {
		t.log.Debug("task interrupted at pause gate", "error", err)
		t.finish()
		return
	}
	if t.checkNotActual() {
		return
	}

	if d := t.opts.DelayBeforeLoading; d > 0 {
		t.log.Debug("delay before loading", "delay", d)
		select {
		case <-time.After(d):
		case <-t.ctx.Done():
			t.log.Debug("task interrupted during delay")
			t.finish()
			return
		}
		if t.checkNotActual() {
			return
		}
	}

	lock := t.engine.keyLockFor(t.key)
	if lock.inUse() {
		t.log.Debug("image is already loading, waiting")
	}
	if err := lock.acquire(t.ctx); err != nil {
		t.log.Debug("task interrupted waiting for key lock")
		t.finish()
		return
	}

	buf, ok := t.loadLocked(lock)
	if !ok {
		return
	}

	if t.interrupted() {
		t.log.Debug("task interrupted before display")
		t.finish()
		return
	}
	if t.checkNotActual() {
		return
	}
	t.dispatchDisplay(buf)
}

// loadLocked runs the stages that must be serialized per cache key. It
// reports ok=false when a terminal outcome already fired.
func (t *task) loadLocked(lock *keyLock) (*imaging.Buffer, bool) {
	defer lock.release()

	// A newer request may have superseded this one while it queued for
	// the lock.
	if t.checkNotActual() {
		return nil, false
	}

	var buf *imaging.Buffer
	if t.engine.mem != nil {
		if hit, ok := t.engine.mem.Get(t.key); ok {
			// Another task loaded the same key while this one waited.
			t.log.Debug("got image from memory cache after waiting")
			t.tier = TierMemoryCache
			buf = hit
		}
	}

	if buf == nil {
		buf = t.tryLoad()
		if buf == nil {
			return nil, false
		}
		if t.interrupted() {
			t.log.Debug("task interrupted after load")
			t.finish()
			return nil, false
		}
		if t.checkNotActual() {
			return nil, false
		}

		if pre := t.opts.PreProcessor; pre != nil {
			t.log.Debug("pre-process image")
			if processed := pre.Process(buf); processed.Usable() {
				buf = processed
			} else {
				t.log.Error("pre-processor returned no image, keeping original")
			}
		}
		if t.opts.CacheInMemory && t.engine.mem != nil {
			t.log.Debug("cache image in memory")
			t.engine.mem.Put(t.key, buf)
		}
	}

	if post := t.opts.PostProcessor; post != nil {
		t.log.Debug("post-process image")
		if processed := post.Process(buf); processed.Usable() {
			buf = processed
		} else {
			t.log.Error("post-processor returned no image, keeping original")
		}
	}
	return buf, true
}

// runPostProcessOnly handles a memory hit that still needs post-processing:
// no pause gate, no delay, no fetch.
func (t *task) runPostProcessOnly() {
	if t.checkNotActual() {
		return
	}

	buf := t.cached
	if post := t.opts.PostProcessor; post != nil {
		t.log.Debug("post-process cached image")
		if processed := post.Process(buf); processed.Usable() {
			buf = processed
		} else {
			t.log.Error("post-processor returned no image, keeping original")
		}
	}

	if t.interrupted() {
		t.finish()
		return
	}
	t.dispatchDisplay(buf)
}

// tryLoad acquires a usable buffer from the disc cache or the remote source.
// On failure it classifies the error and fires the terminal outcome itself,
// returning nil.
func (t *task) tryLoad() *imaging.Buffer {
	buf, err := t.loadTiers()
	if err != nil {
		if t.interrupted() {
			t.log.Debug("task interrupted during load", "error", err)
			t.finish()
			return nil
		}
		kind := ClassifyError(err)
		t.log.Warn("image load failed", "kind", kind.String(), "error", err)
		if kind == FailIO && t.engine.disc != nil {
			// A truncated or corrupt cache entry must not poison the
			// next attempt.
			_ = t.engine.disc.Remove(t.uri)
		}
		t.fireFail(FailReason{Kind: kind, Cause: err})
		return nil
	}
	return buf
}

func (t *task) loadTiers() (*imaging.Buffer, error) {
	e := t.engine

	if e.disc != nil {
		if path, ok := e.disc.Lookup(t.uri); ok {
			t.log.Debug("load image from disc cache", "path", path)
			t.tier = TierDiscCache
			buf, err := t.decode(fileSource(path))
			if err == nil && buf.Usable() {
				return buf, nil
			}
			if err != nil && !errors.Is(err, imaging.ErrUnusable) {
				return nil, err
			}
			// The cached bytes no longer decode. Fall through to a
			// fresh fetch.
			t.log.Warn("disc cache entry is unusable, refetching", "path", path)
		}
	}

	t.log.Debug("load image from source")
	t.tier = TierNetwork
	if t.checkNotActual() {
		return nil, nil
	}

	src := t.sourceForFetch()
	if t.checkNotActual() {
		return nil, nil
	}
	buf, err := t.decode(src)
	if err != nil {
		return nil, err
	}
	if !buf.Usable() {
		return nil, fmt.Errorf("source %s: %w", t.uri, imaging.ErrUnusable)
	}
	return buf, nil
}

// sourceForFetch decides where the final decode reads from. With disc
// caching on, the bytes are persisted first and decoded from the cache file;
// if persisting fails the decode falls back to streaming straight from the
// source.
func (t *task) sourceForFetch() imaging.Source {
	e := t.engine
	if t.opts.CacheOnDisc && e.disc != nil {
		path, err := t.cacheOnDisc()
		if err == nil {
			t.log.Debug("image cached on disc", "path", path)
			return fileSource(path)
		}
		if !errors.Is(err, errSuperseded) {
			t.log.Warn("disc cache write failed, decoding directly from source", "error", err)
		}
	}
	return t.remoteSource()
}

// errSuperseded means the target was rebound while the bytes streamed in; the
// staged file is discarded and the next actuality gate ends the task.
var errSuperseded = errors.New("load superseded by a newer request")

// cacheOnDisc persists the image to the disc cache and returns the committed
// path. A sized recompress is attempted first when configured; any failure
// there falls back to copying the raw bytes.
func (t *task) cacheOnDisc() (string, error) {
	e := t.engine
	staged := e.disc.StagingFor(t.uri)

	if e.cfg.DiscCacheWidth > 0 || e.cfg.DiscCacheHeight > 0 {
		if t.recompressToDisc(staged) {
			return t.commitStaged(staged)
		}
		e.disc.Discard(staged)
	}

	if err := t.downloadTo(staged); err != nil {
		e.disc.Discard(staged)
		return "", err
	}
	return t.commitStaged(staged)
}

// commitStaged promotes the staged file unless the task went stale while the
// bytes streamed in. A superseded task must not write to the cache tiers.
func (t *task) commitStaged(staged string) (string, error) {
	if t.stale() {
		t.engine.disc.Discard(staged)
		return "", errSuperseded
	}
	return t.engine.disc.Commit(t.uri, staged)
}

// recompressToDisc decodes the source bounded to the configured disc
// dimensions, runs the disc cache processor, and encodes the result to the
// staged file. Any failure reports false so the caller copies raw bytes
// instead.
func (t *task) recompressToDisc(staged string) bool {
	e := t.engine

	buf, err := e.decoder.Decode(t.ctx, imaging.DecodeSpec{
		Key:        t.key,
		Source:     t.remoteSource(),
		TargetSize: imaging.TargetSize{Width: e.cfg.DiscCacheWidth, Height: e.cfg.DiscCacheHeight},
		Scale:      imaging.ScaleSampleFit,
	})
	if err != nil || !buf.Usable() {
		t.log.Debug("sized disc recompress unavailable, copying raw bytes", "error", err)
		return false
	}

	if p := t.opts.DiscCacheProcessor; p != nil {
		processed := p.Process(buf)
		if !processed.Usable() {
			t.log.Error("disc cache processor returned no image")
			return false
		}
		buf = processed
	}

	f, err := os.Create(staged)
	if err != nil {
		t.log.Warn("cannot stage disc cache file", "path", staged, "error", err)
		return false
	}
	encErr := e.encoder.Encode(f, buf, imaging.EncodeOptions{Format: "jpeg", Quality: e.cfg.DiscCacheQuality})
	closeErr := f.Close()
	if encErr != nil || closeErr != nil {
		t.log.Warn("disc recompress encode failed", "encode_error", encErr, "close_error", closeErr)
		return false
	}
	return true
}

// downloadTo streams the remote bytes into the staged file, reporting
// progress to the listener when it asks for it.
func (t *task) downloadTo(staged string) error {
	rc, total, err := t.engine.currentFetcher().Open(t.ctx, t.uri, t.opts.Extra)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(staged)
	if err != nil {
		return err
	}

	n, copyErr := fetch.Copy(t.ctx, f, rc, total, t.progressFunc())
	closeErr := f.Close()

	if t.engine.metrics != nil && n > 0 {
		t.engine.metrics.ObserveFetchedBytes(n)
	}
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// progressFunc builds the copy progress callback, or nil when the listener
// does not observe progress. Progress for a superseded or interrupted task
// is dropped without stopping the copy.
func (t *task) progressFunc() fetch.ProgressFunc {
	pl, ok := t.listener.(ProgressListener)
	if !ok {
		return nil
	}
	return func(done, total int64) {
		if t.interrupted() || t.stale() {
			return
		}
		t.engine.dispatch.post(func() {
			target, live := t.ref.Resolve()
			if !live {
				return
			}
			pl.OnProgress(t.uri, target, done, total)
		})
	}
}

func (t *task) decode(src imaging.Source) (*imaging.Buffer, error) {
	return t.engine.decoder.Decode(t.ctx, imaging.DecodeSpec{
		Key:        t.key,
		Source:     src,
		TargetSize: t.size,
		Scale:      t.engine.scaleFor(t.opts),
	})
}

func (t *task) remoteSource() imaging.Source {
	return imaging.SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		rc, _, err := t.engine.currentFetcher().Open(ctx, t.uri, t.opts.Extra)
		return rc, err
	})
}

func fileSource(path string) imaging.Source {
	return imaging.SourceFunc(func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	})
}

// checkNotActual verifies the target is still live and still expects this
// task's key. When it is not, the cancel outcome fires and the task must
// stop.
func (t *task) checkNotActual() bool {
	target, live := t.ref.Resolve()
	if !live {
		t.log.Debug("target was collected, task cancelled")
		t.fireCancel("collected")
		return true
	}
	expected, bound := t.engine.expectedKey(target.ID())
	if !bound || expected != t.key {
		t.log.Debug("target was reused for another image, task cancelled")
		t.fireCancel("reused")
		return true
	}
	return false
}

// stale is checkNotActual without firing any outcome.
func (t *task) stale() bool {
	target, live := t.ref.Resolve()
	if !live {
		return true
	}
	expected, bound := t.engine.expectedKey(target.ID())
	return !bound || expected != t.key
}

func (t *task) interrupted() bool {
	return t.ctx.Err() != nil
}

// fireCancel ends the task as cancelled. External context cancellation
// suppresses the callback entirely.
func (t *task) fireCancel(cause string) {
	if t.interrupted() {
		t.log.Debug("task interrupted, suppressing callbacks")
		t.finish()
		return
	}
	if m := t.engine.metrics; m != nil {
		m.ObserveCancellation(cause)
	}
	if !t.engine.dispatch.post(func() {
		target, _ := t.ref.Resolve()
		t.listener.OnCancelled(t.uri, target)
		t.finish()
	}) {
		t.finish()
	}
}

// fireFail ends the task as failed. External context cancellation suppresses
// the callback entirely.
func (t *task) fireFail(reason FailReason) {
	if t.interrupted() {
		t.finish()
		return
	}
	if m := t.engine.metrics; m != nil {
		m.ObserveFailure(reason.Kind)
	}
	if !t.engine.dispatch.post(func() {
		target, _ := t.ref.Resolve()
		if t.opts.PlaceholderOnFail != "" {
			if pd, ok := target.(PlaceholderDisplayer); ok {
				pd.DisplayPlaceholder(t.opts.PlaceholderOnFail)
			}
		}
		t.listener.OnFailed(t.uri, target, reason)
		t.finish()
	}) {
		t.finish()
	}
}

// dispatchDisplay hands the buffer to the dispatch goroutine, which
// re-checks actuality right before display so a target reused after the
// worker finished still ends as cancelled.
func (t *task) dispatchDisplay(buf *imaging.Buffer) {
	tier := t.tier
	if !t.engine.dispatch.post(func() {
		if t.interrupted() {
			t.finish()
			return
		}

		target, live := t.ref.Resolve()
		if !live {
			t.log.Debug("target collected before display")
			if m := t.engine.metrics; m != nil {
				m.ObserveCancellation("collected")
			}
			t.listener.OnCancelled(t.uri, nil)
			t.finish()
			return
		}
		expected, bound := t.engine.expectedKey(target.ID())
		if !bound || expected != t.key {
			t.log.Debug("target reused before display")
			if m := t.engine.metrics; m != nil {
				m.ObserveCancellation("reused")
			}
			t.listener.OnCancelled(t.uri, target)
			t.finish()
			return
		}

		if d, ok := target.(Displayer); ok {
			d.Display(buf, tier)
		}
		t.engine.unbind(target.ID(), t.key)
		if m := t.engine.metrics; m != nil {
			m.ObserveLoad(tier, time.Since(t.submitted))
		}
		t.log.Debug("image displayed", "tier", tier.String(), "duration_ms", logger.Duration(t.submitted))
		t.finish()
	}) {
		t.finish()
	}
}

// finish marks the terminal outcome exactly once.
func (t *task) finish() {
	t.finishOnce.Do(t.engine.trackEnd)
}
