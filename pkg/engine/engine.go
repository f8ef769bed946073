// Package engine coordinates image loads: it owns the worker pool, the
// target-to-key binding table, per-key locks, the pause gate and the network
// mode, and runs each request through the load pipeline before handing the
// result to the dispatch goroutine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pixload/pixload/internal/logger"
	"github.com/pixload/pixload/pkg/cache/disc"
	"github.com/pixload/pixload/pkg/cache/memory"
	"github.com/pixload/pixload/pkg/fetch"
	"github.com/pixload/pixload/pkg/imaging"
)

// NetworkMode selects how the engine reaches remote sources.
type NetworkMode int32

const (
	// NetworkNormal fetches directly.
	NetworkNormal NetworkMode = iota

	// NetworkDenied refuses every remote fetch; only cached content loads.
	NetworkDenied

	// NetworkDegraded throttles remote streams for slow or unreliable
	// links.
	NetworkDegraded
)

func (m NetworkMode) String() string {
	switch m {
	case NetworkDenied:
		return "denied"
	case NetworkDegraded:
		return "degraded"
	default:
		return "normal"
	}
}

// ParseNetworkMode maps a config/API string to a NetworkMode.
func ParseNetworkMode(s string) (NetworkMode, bool) {
	switch s {
	case "", "normal":
		return NetworkNormal, true
	case "denied":
		return NetworkDenied, true
	case "degraded":
		return NetworkDegraded, true
	default:
		return NetworkNormal, false
	}
}

// Config tunes the engine. Zero values get sensible defaults in New.
type Config struct {
	// Workers is the size of the load worker pool.
	Workers int

	// QueueSize bounds the pending task queue; Submit fails fast with
	// ErrQueueFull beyond it.
	QueueSize int

	// DefaultOptions applies to requests that carry no Options.
	DefaultOptions *Options

	// DefaultScale applies when neither the request options nor the
	// engine say otherwise.
	DefaultScale imaging.ScaleMode

	// DiscCacheWidth/Height bound the sized re-encode written to the disc
	// cache. Zero disables recompression; raw bytes are copied instead.
	DiscCacheWidth  int
	DiscCacheHeight int

	// DiscCacheQuality is the JPEG quality for disc recompression.
	DiscCacheQuality int

	// DegradedChunkSize and DegradedPause tune the throttled fetcher used
	// in NetworkDegraded mode.
	DegradedChunkSize int
	DegradedPause     time.Duration
}

// Deps carries the engine's collaborators. MemoryCache, DiscCache and
// Metrics may be nil; nil Fetcher, Decoder or Encoder get defaults.
type Deps struct {
	MemoryCache *memory.Cache
	DiscCache   *disc.Cache
	Fetcher     fetch.Fetcher
	Decoder     imaging.Decoder
	Encoder     imaging.Encoder
	Metrics     Metrics
}

// Engine is the load coordinator. Create with New, release with Stop.
type Engine struct {
	cfg     Config
	mem     *memory.Cache
	disc    *disc.Cache
	fetcher fetch.Fetcher
	decoder imaging.Decoder
	encoder imaging.Encoder
	metrics Metrics

	dispatch *dispatcher

	netMode atomic.Int32

	// bindings maps a target ID to the cache key it currently expects.
	// A task whose key no longer matches is stale and cancels itself.
	bindMu   sync.RWMutex
	bindings map[string]string

	// keyLocks serializes pipeline work per cache key so identical
	// concurrent requests collapse into one fetch.
	lockMu   sync.Mutex
	keyLocks map[string]*keyLock

	pauseMu sync.Mutex
	paused  bool
	resume  chan struct{}

	tasks    chan *task
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	inFlight atomic.Int64
}

const (
	defaultWorkers   = 3
	defaultQueueSize = 64
)

// New creates and starts an engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.DefaultOptions == nil {
		cfg.DefaultOptions = &Options{CacheInMemory: true, CacheOnDisc: true}
	}
	if cfg.DefaultScale == imaging.ScaleNone {
		cfg.DefaultScale = imaging.ScaleSampleFit
	}
	if deps.Fetcher == nil {
		deps.Fetcher = fetch.NewBaseFetcher()
	}
	if deps.Decoder == nil {
		deps.Decoder = &imaging.StdDecoder{}
	}
	if deps.Encoder == nil {
		deps.Encoder = &imaging.StdEncoder{}
	}

	e := &Engine{
		cfg:      cfg,
		mem:      deps.MemoryCache,
		disc:     deps.DiscCache,
		fetcher:  deps.Fetcher,
		decoder:  deps.Decoder,
		encoder:  deps.Encoder,
		metrics:  deps.Metrics,
		dispatch: newDispatcher(cfg.QueueSize),
		bindings: make(map[string]string),
		keyLocks: make(map[string]*keyLock),
		tasks:    make(chan *task, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}

	logger.Info("engine started",
		"workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
		"memory_cache", e.mem != nil,
		"disc_cache", e.disc != nil)
	return e
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case t := <-e.tasks:
			t.run()
		}
	}
}

// Submit queues a load. It returns quickly: a memory-cache hit with no
// post-processing dispatches directly, anything else goes to the worker
// pool. Outcomes arrive through the request's listener and target.
func (e *Engine) Submit(ctx context.Context, req *Request) error {
	if err := req.validate(); err != nil {
		return err
	}
	select {
	case <-e.stopCh:
		return ErrStopped
	default:
	}

	target, live := req.Target.Resolve()
	if !live {
		// Nothing to display into. Terminal from the start.
		e.postCancel(req.URI, req.Target, listenerOrNop(req.Listener), "collected")
		return nil
	}

	size := req.TargetSize
	if size.IsZero() {
		size = target.Size()
	}
	key := req.Key
	if key == "" {
		key = CacheKey(req.URI, size)
	}

	t := &task{
		engine:    e,
		ctx:       ctx,
		id:        uuid.NewString(),
		uri:       req.URI,
		key:       key,
		size:      size,
		opts:      e.optionsFor(req),
		listener:  listenerOrNop(req.Listener),
		ref:       req.Target,
		targetID:  target.ID(),
		submitted: time.Now(),
	}
	t.log = logger.With("task", t.id, "uri", t.uri)

	e.bind(t.targetID, key)
	e.dispatch.post(func() {
		resolved, _ := t.ref.Resolve()
		t.listener.OnStarted(t.uri, resolved)
	})

	// Memory fast path: a hit with no post-processing skips the pipeline
	// entirely.
	if e.mem != nil {
		if buf, ok := e.mem.Get(key); ok && t.opts.PostProcessor == nil {
			logger.Debug("memory cache hit on submit", "key", key)
			t.tier = TierMemoryCache
			e.trackStart()
			t.dispatchDisplay(buf)
			return nil
		} else if ok {
			t.cached = buf
			t.tier = TierMemoryCache
		}
	}

	select {
	case e.tasks <- t:
		e.trackStart()
		return nil
	default:
		e.unbind(t.targetID, key)
		return fmt.Errorf("%w: %d tasks pending", ErrQueueFull, len(e.tasks))
	}
}

// Load runs a request synchronously and returns the delivered buffer. The
// request's Target and Listener fields are ignored; cancellation comes from
// ctx.
func (e *Engine) Load(ctx context.Context, req *Request) (*imaging.Buffer, SourceTier, error) {
	if req == nil || req.URI == "" {
		return nil, TierNetwork, errNoURI
	}

	st := &syncTarget{id: uuid.NewString(), size: req.TargetSize, done: make(chan syncResult, 1)}

	sub := *req
	sub.Target = NewRef(st)
	sub.Listener = st
	if err := e.Submit(ctx, &sub); err != nil {
		return nil, TierNetwork, err
	}

	select {
	case res := <-st.done:
		return res.buf, res.tier, res.err
	case <-ctx.Done():
		return nil, TierNetwork, ctx.Err()
	}
}

// CancelTarget drops any pending or running load bound to the target. The
// in-flight task notices the missing binding at its next gate and ends as
// cancelled.
func (e *Engine) CancelTarget(t Target) {
	if t == nil {
		return
	}
	e.bindMu.Lock()
	delete(e.bindings, t.ID())
	e.bindMu.Unlock()
}

// Pause holds every task at the pipeline entry gate until Resume.
func (e *Engine) Pause() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if !e.paused {
		e.paused = true
		e.resume = make(chan struct{})
		logger.Info("engine paused")
	}
}

// Resume releases all tasks waiting at the pause gate.
func (e *Engine) Resume() {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	if e.paused {
		e.paused = false
		close(e.resume)
		e.resume = nil
		logger.Info("engine resumed")
	}
}

// Paused reports whether the pause gate is closed.
func (e *Engine) Paused() bool {
	e.pauseMu.Lock()
	defer e.pauseMu.Unlock()
	return e.paused
}

// awaitResume blocks while the engine is paused. Tasks that arrive during a
// pause and tasks already past the gate behave identically: nothing proceeds
// until Resume.
func (e *Engine) awaitResume(ctx context.Context) error {
	for {
		e.pauseMu.Lock()
		paused, ch := e.paused, e.resume
		e.pauseMu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return ErrStopped
		}
	}
}

// SetNetworkMode switches the fetch strategy for subsequent resource
// acquisitions. In-flight streams are not interrupted.
func (e *Engine) SetNetworkMode(m NetworkMode) {
	e.netMode.Store(int32(m))
	logger.Info("network mode changed", "mode", m.String())
}

// NetworkMode returns the current mode.
func (e *Engine) NetworkMode() NetworkMode {
	return NetworkMode(e.netMode.Load())
}

// currentFetcher resolves the fetcher for the mode at acquisition time.
func (e *Engine) currentFetcher() fetch.Fetcher {
	switch e.NetworkMode() {
	case NetworkDenied:
		return fetch.DeniedFetcher{}
	case NetworkDegraded:
		return &fetch.FlakyFetcher{
			Inner:     e.fetcher,
			ChunkSize: e.cfg.DegradedChunkSize,
			Pause:     e.cfg.DegradedPause,
		}
	default:
		return e.fetcher
	}
}

// Stop shuts the engine down: workers drain, the dispatch queue flushes, and
// further Submits fail with ErrStopped. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.Resume() // unblock tasks parked at the pause gate
		e.wg.Wait()
		e.dispatch.close()
		logger.Info("engine stopped")
	})
}

// DefaultOptions returns a copy of the engine-level default request options,
// for callers that need to override a single field.
func (e *Engine) DefaultOptions() Options {
	return *e.cfg.DefaultOptions
}

// MemoryCache exposes the memory tier for cache administration. May be nil.
func (e *Engine) MemoryCache() *memory.Cache { return e.mem }

// DiscCache exposes the disc tier for cache administration. May be nil.
func (e *Engine) DiscCache() *disc.Cache { return e.disc }

// InFlight returns the number of tasks between submit and terminal outcome.
func (e *Engine) InFlight() int64 { return e.inFlight.Load() }

func (e *Engine) optionsFor(req *Request) *Options {
	if req.Options != nil {
		return req.Options
	}
	return e.cfg.DefaultOptions
}

func (e *Engine) scaleFor(opts *Options) imaging.ScaleMode {
	if opts.Scale != imaging.ScaleNone {
		return opts.Scale
	}
	return e.cfg.DefaultScale
}

func listenerOrNop(l Listener) Listener {
	if l == nil {
		return NopListener{}
	}
	return l
}

// bind records that targetID now expects key. Any older task bound to the
// same target becomes stale.
func (e *Engine) bind(targetID, key string) {
	e.bindMu.Lock()
	e.bindings[targetID] = key
	e.bindMu.Unlock()
}

// unbind clears the binding only if it still points at key.
func (e *Engine) unbind(targetID, key string) {
	e.bindMu.Lock()
	if e.bindings[targetID] == key {
		delete(e.bindings, targetID)
	}
	e.bindMu.Unlock()
}

// expectedKey returns the key targetID currently expects.
func (e *Engine) expectedKey(targetID string) (string, bool) {
	e.bindMu.RLock()
	key, ok := e.bindings[targetID]
	e.bindMu.RUnlock()
	return key, ok
}

// keyLock is a one-slot semaphore. Unlike a mutex, a queued waiter can give
// up when its context ends.
type keyLock struct {
	sem chan struct{}
}

func (e *Engine) keyLockFor(key string) *keyLock {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	l, ok := e.keyLocks[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		e.keyLocks[key] = l
	}
	return l
}

func (l *keyLock) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *keyLock) release() {
	<-l.sem
}

// inUse reports whether some task currently holds the lock. Logging only.
func (l *keyLock) inUse() bool {
	return len(l.sem) > 0
}

func (e *Engine) trackStart() {
	n := e.inFlight.Add(1)
	if e.metrics != nil {
		e.metrics.SetInFlight(n)
	}
}

func (e *Engine) trackEnd() {
	n := e.inFlight.Add(-1)
	if e.metrics != nil {
		e.metrics.SetInFlight(n)
	}
}

func (e *Engine) postCancel(uri string, ref TargetRef, l Listener, cause string) {
	e.dispatch.post(func() {
		target, _ := ref.Resolve()
		l.OnCancelled(uri, target)
	})
	if e.metrics != nil {
		e.metrics.ObserveCancellation(cause)
	}
}

// syncTarget adapts the asynchronous pipeline to the synchronous Load call.
type syncTarget struct {
	id   string
	size imaging.TargetSize
	once sync.Once
	done chan syncResult
}

type syncResult struct {
	buf  *imaging.Buffer
	tier SourceTier
	err  error
}

func (s *syncTarget) ID() string               { return s.id }
func (s *syncTarget) Size() imaging.TargetSize { return s.size }

func (s *syncTarget) Display(buf *imaging.Buffer, tier SourceTier) {
	s.once.Do(func() { s.done <- syncResult{buf: buf, tier: tier} })
}

func (s *syncTarget) OnStarted(string, Target) {}

func (s *syncTarget) OnCancelled(string, Target) {
	s.once.Do(func() { s.done <- syncResult{err: ErrLoadCancelled} })
}

func (s *syncTarget) OnFailed(_ string, _ Target, reason FailReason) {
	s.once.Do(func() { s.done <- syncResult{err: reason} })
}
