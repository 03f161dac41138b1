package loader

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cache"
	"github.com/forgekit/assetcore/cmn"
	"github.com/forgekit/assetcore/compress"
	"github.com/forgekit/assetcore/process"
	"github.com/forgekit/assetcore/registry"
	"github.com/forgekit/assetcore/source"
)

// Config tunes the dispatcher's worker pool and retry policy (spec §4.G,
// §7 "Recoverable errors ... retried with exponential backoff up to a
// configured cap").
type Config struct {
	Workers          int
	RetryCap         int
	RetryBackoffBase time.Duration
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func (c Config) retryCap() int {
	if c.RetryCap > 0 {
		return c.RetryCap
	}
	return 3
}

func (c Config) retryBackoff() time.Duration {
	if c.RetryBackoffBase > 0 {
		return c.RetryBackoffBase
	}
	return 50 * time.Millisecond
}

// inflight tracks the set of promises waiting on one (id, quality) load so
// concurrent requests coalesce into a single execution (spec §4.G, §5).
type inflight struct {
	promises []*Promise
}

// Stats mirrors the dispatcher-side counters the manager facade aggregates
// (spec §4.H "Statistics aggregation: loads, cache hits/misses, ...").
type Stats struct {
	Loaded    uint64
	Failed    uint64
	Coalesced uint64
	Deferred  uint64
}

// Dispatcher is the worker-pool load dispatcher from spec §4.G, grounded on
// the teacher's fs/mpather/jogger.go JoggerGroup: a fixed pool of
// errgroup-managed workers draining a shared, mutex+cond-guarded queue,
// with a StopCh-style shutdown signal.
type Dispatcher struct {
	reg      *registry.Registry
	src      *source.Dispatcher
	pipeline *process.Pipeline
	cache    *cache.TwoLevel
	cfg      Config

	mtx      sync.Mutex
	cond     *sync.Cond
	queue    requestQueue
	inFlight map[string]*inflight
	versions map[asset.ID]uint64

	// sem bounds concurrent in-flight loadInternal calls independent of the
	// number of spawned worker goroutines, so a config hot-reload can
	// shrink/grow effective concurrency via SetWorkers without restarting
	// the pool.
	sem *cmn.DynSemaphore

	stopping atomic.Bool
	stopCh   *cmn.StopCh
	wg       *errgroup.Group

	loaded    atomic.Uint64
	failed    atomic.Uint64
	coalesced atomic.Uint64
	deferred  atomic.Uint64
}

func New(reg *registry.Registry, src *source.Dispatcher, pipeline *process.Pipeline, c *cache.TwoLevel, cfg Config) *Dispatcher {
	d := &Dispatcher{
		reg:      reg,
		src:      src,
		pipeline: pipeline,
		cache:    c,
		cfg:      cfg,
		inFlight: make(map[string]*inflight),
		versions: make(map[asset.ID]uint64),
		sem:      cmn.NewDynSemaphore(cfg.workers()),
		stopCh:   cmn.NewStopCh(),
	}
	d.cond = sync.NewCond(&d.mtx)
	return d
}

// Start launches cfg.Workers goroutines (default hw concurrency), grounded
// on JoggerGroup.Run's errgroup.Go fan-out.
func (d *Dispatcher) Start() {
	var ctx context.Context
	d.wg, ctx = errgroup.WithContext(context.Background())
	n := d.cfg.workers()
	for i := 0; i < n; i++ {
		d.wg.Go(func() error { return d.workerLoop(ctx) })
	}
}

// Stop stops accepting new submissions, cancels everything still queued,
// and joins workers within grace — per spec §5's shutdown sequence, ending
// with a final gc().
func (d *Dispatcher) Stop(grace time.Duration) error {
	d.stopping.Store(true)

	d.mtx.Lock()
	for d.queue.Len() > 0 {
		req := heap.Pop(&d.queue).(*Request)
		req.promise.complete(nil, cmn.NewError(cmn.ErrCancelled, "loader: shutdown: %q cancelled before service", req.Path))
	}
	d.stopCh.Close()
	d.cond.Broadcast()
	d.mtx.Unlock()

	tg := cmn.NewTimeoutGroup()
	tg.Add(1)
	var joinErr error
	go func() {
		joinErr = d.wg.Wait()
		tg.Done()
	}()
	if !tg.WaitTimeout(grace) {
		return cmn.NewError(cmn.ErrTimeout, "loader: stop: workers did not join within %s", grace)
	}
	d.reg.Gc()
	return joinErr
}

// SetWorkers resizes the dispatcher's effective concurrency cap in place,
// for a config hot-reload that changes worker_threads without restarting
// the worker pool.
func (d *Dispatcher) SetWorkers(n int) { d.sem.SetSize(n) }

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Loaded:    d.loaded.Load(),
		Failed:    d.failed.Load(),
		Coalesced: d.coalesced.Load(),
		Deferred:  d.deferred.Load(),
	}
}

// BatchItem is one element of a LoadBatch call (spec §4.H load_batch).
type BatchItem struct {
	Path     string
	Type     asset.Type
	Priority int
	Flags    asset.Flags
	Quality  asset.Quality
}

// Submit enqueues a load and returns its Promise immediately — the async
// half of spec §4.H's load/load_async pair. A path already Loaded resolves
// the promise immediately with a fresh handle; no redundant work is queued.
func (d *Dispatcher) Submit(ctx context.Context, path string, t asset.Type, priority int, flags asset.Flags, quality asset.Quality) *Promise {
	if d.stopping.Load() {
		p := newPromise()
		p.complete(nil, cmn.NewError(cmn.ErrCancelled, "loader: rejecting submission during shutdown: %q", path))
		return p
	}

	id := d.reg.Register(path, t)
	if st, ok := d.reg.State(id); ok && st == asset.StateLoaded {
		p := newPromise()
		if h, ok := d.reg.Get(id); ok {
			p.complete(h, nil)
		} else {
			p.complete(nil, cmn.Internal("loader: id %d reports Loaded with no resident asset", id))
		}
		return p
	}

	if ctx == nil {
		ctx = context.Background()
	}
	d.reg.SetState(id, asset.StateQueued)
	req := &Request{
		ID:          id,
		Path:        path,
		Type:        t,
		Priority:    priority,
		Flags:       flags,
		Quality:     quality,
		RequestTime: time.Now(),
		Ctx:         ctx,
		promise:     newPromise(),
	}
	d.push(req)
	return req.promise
}

// Load is the blocking variant of spec §4.H's load().
func (d *Dispatcher) Load(ctx context.Context, path string, t asset.Type, priority int, flags asset.Flags, quality asset.Quality) (*asset.Handle, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return d.Submit(ctx, path, t, priority, flags, quality).Wait(ctx)
}

// LoadAsync is an alias for Submit kept for symmetry with spec §4.H's
// load_async naming.
func (d *Dispatcher) LoadAsync(ctx context.Context, path string, t asset.Type, priority int, flags asset.Flags, quality asset.Quality) *Promise {
	return d.Submit(ctx, path, t, priority, flags, quality)
}

// LoadWithCallback is spec §4.H's load_with_callback: never blocks the
// caller's goroutine.
func (d *Dispatcher) LoadWithCallback(ctx context.Context, path string, t asset.Type, priority int, flags asset.Flags, quality asset.Quality, cb func(*asset.Handle, error)) {
	d.Submit(ctx, path, t, priority, flags, quality).Callback(cb)
}

// LoadBatch submits len(items) independent requests and returns their
// promises in the same order (spec §4.G: "internally this just submits N
// requests").
func (d *Dispatcher) LoadBatch(ctx context.Context, items []BatchItem) []*Promise {
	promises := make([]*Promise, len(items))
	for i, it := range items {
		promises[i] = d.Submit(ctx, it.Path, it.Type, it.Priority, it.Flags, it.Quality)
	}
	return promises
}

// Reload forces a fresh read + reprocess of an already-registered id,
// bypassing the two-level cache, for spec §4.H's reload() ("force
// reprocess and reinstall; atomic swap of payload").
func (d *Dispatcher) Reload(ctx context.Context, id asset.ID, priority int, flags asset.Flags, quality asset.Quality) *Promise {
	if d.stopping.Load() {
		p := newPromise()
		p.complete(nil, cmn.NewError(cmn.ErrCancelled, "loader: rejecting reload during shutdown: id %d", id))
		return p
	}
	meta, ok := d.reg.Metadata(id)
	if !ok {
		p := newPromise()
		p.complete(nil, cmn.NewError(cmn.ErrUnknownID, "loader: reload: unknown id %d", id))
		return p
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req := &Request{
		ID:          id,
		Path:        meta.Path,
		Type:        meta.Type,
		Priority:    priority,
		Flags:       flags,
		Quality:     quality,
		RequestTime: time.Now(),
		Ctx:         ctx,
		Force:       true,
		promise:     newPromise(),
	}
	d.push(req)
	return req.promise
}

func (d *Dispatcher) push(req *Request) {
	d.mtx.Lock()
	heap.Push(&d.queue, req)
	d.cond.Signal()
	d.mtx.Unlock()
}

func (d *Dispatcher) pop() (*Request, bool) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	for d.queue.Len() == 0 {
		if d.stopCh.IsStopped() {
			return nil, false
		}
		d.cond.Wait()
	}
	req := heap.Pop(&d.queue).(*Request)
	return req, true
}

func (d *Dispatcher) workerLoop(ctx context.Context) error {
	for {
		req, ok := d.pop()
		if !ok {
			return nil
		}
		d.service(req)
	}
}

func inflightKey(id asset.ID, q asset.Quality) string {
	return fmt.Sprintf("%d|%d", id, q)
}

// service implements the worker loop body from spec §4.G's pseudocode:
// coalesce into an in-flight load if one exists, else drive load_internal
// to completion (possibly deferring on missing dependencies) and publish
// the result to every attached promise.
func (d *Dispatcher) service(req *Request) {
	if req.Ctx != nil && req.Ctx.Err() != nil {
		req.promise.complete(nil, cmn.NewError(cmn.ErrCancelled, "loader: %q cancelled before service", req.Path))
		return
	}

	key := inflightKey(req.ID, req.Quality)
	d.mtx.Lock()
	infl, exists := d.inFlight[key]
	if exists && !req.resumed {
		infl.promises = append(infl.promises, req.promise)
		d.mtx.Unlock()
		d.coalesced.Inc()
		return
	}
	if !exists {
		infl = &inflight{promises: []*Promise{req.promise}}
		d.inFlight[key] = infl
	}
	d.mtx.Unlock()

	d.reg.SetState(req.ID, asset.StateLoading)
	d.sem.Acquire()
	a, err, deferredLoad := d.loadInternal(req)
	d.sem.Release()
	if deferredLoad {
		d.deferred.Inc()
		req.resumed = true
		req.RequestTime = time.Now()
		d.push(req)
		return
	}

	d.mtx.Lock()
	delete(d.inFlight, key)
	waiters := infl.promises
	d.mtx.Unlock()

	if err != nil {
		d.failed.Inc()
		d.reg.SetState(req.ID, asset.StateError)
		d.reg.NotifyLoadCompleted(req.ID, err)
		for _, p := range waiters {
			p.complete(nil, err)
		}
		return
	}

	if instErr := d.reg.Install(req.ID, a); instErr != nil {
		d.failed.Inc()
		for _, p := range waiters {
			p.complete(nil, instErr)
		}
		return
	}
	_ = d.reg.SetCurrentQuality(req.ID, req.Quality)
	d.loaded.Inc()
	d.reg.NotifyLoadCompleted(req.ID, nil)
	if req.Force {
		d.reg.NotifyReloaded(req.ID, req.Path)
	}

	for _, p := range waiters {
		h, ok := d.reg.Get(req.ID)
		if !ok {
			p.complete(nil, cmn.Internal("loader: id %d vanished immediately after install", req.ID))
			continue
		}
		p.complete(h, nil)
	}
}

// loadInternal runs spec §4.G's load_internal: dependency check, two-level
// cache probe, source read + processor pipeline on miss, and Asset
// construction. deferredLoad==true means dependencies were missing and the
// caller must re-enqueue req (already done by the caller, service()).
func (d *Dispatcher) loadInternal(req *Request) (a *asset.Asset, err error, deferredLoad bool) {
	for _, dep := range d.missingDependencies(req.ID) {
		d.ensureDependencyEnqueued(dep, req.Priority+1)
	}
	if len(d.missingDependencies(req.ID)) > 0 {
		return nil, nil, true
	}

	var payloadBytes []byte
	var decoded interface{}
	var compressionKind string

	if cached, ok := d.cache.Get(req.ID, req.Type); ok && !req.Force {
		payloadBytes = cached
		if codec := compress.Detect(cached); codec != compress.None {
			compressionKind = codec.String()
		}
	} else {
		raw, rerr := d.readWithRetry(req)
		if rerr != nil {
			return nil, rerr, false
		}

		opts := process.Options{Quality: req.Quality, Compress: req.Flags.IsSet(asset.FlagCompressed)}
		result, perr := d.pipeline.Process(req.Ctx, raw, asset.Metadata{Path: req.Path, Type: req.Type}, opts)
		if perr != nil {
			return nil, perr, false
		}
		if !result.Success {
			return nil, cmn.NewError(cmn.ErrDecode, "loader: processing %q: %s", req.Path, result.ErrorMessage), false
		}

		payloadBytes = result.OutputBytes
		decoded = result.Decoded
		if req.Flags.IsSet(asset.FlagCompressed) {
			if comp, cerr := compress.Compress(compress.Zstd, payloadBytes, 0); cerr == nil {
				payloadBytes = comp
				compressionKind = compress.Zstd.String()
			}
		}
		// Cache-write failure is non-fatal to the load itself; the asset is
		// still usable, just not durable until the next successful write.
		_ = d.cache.Put(req.ID, payloadBytes, req.Type, req.Flags.IsSet(asset.FlagCacheable))
	}

	d.mtx.Lock()
	d.versions[req.ID]++
	version := d.versions[req.ID]
	d.mtx.Unlock()

	a = &asset.Asset{
		State:   asset.StateLoaded,
		Version: version,
		Payloads: map[asset.Quality]*asset.Payload{
			req.Quality: {Bytes: payloadBytes, Decoded: decoded, CompressionKind: compressionKind},
		},
		MemoryUsage: int64(len(payloadBytes)),
	}
	return a, nil, false
}

func (d *Dispatcher) missingDependencies(id asset.ID) []asset.ID {
	meta, ok := d.reg.Metadata(id)
	if !ok {
		return nil
	}
	var missing []asset.ID
	for _, dep := range meta.Dependencies {
		state, ok := d.reg.State(dep)
		// Only Loaded satisfies the dependency. A dependency in Streaming
		// counts as missing; no component in this module sets
		// StateStreaming.
		if !ok || state != asset.StateLoaded {
			missing = append(missing, dep)
		}
	}
	return missing
}

// ensureDependencyEnqueued submits dep at priority (req.Priority+1 per spec
// §4.G step 1) only when it is Unloaded; a dependency in any other state
// (Queued, Loading, Loaded, Stale, Error, ...) is left as is, avoiding
// duplicate submissions from repeated deferral of the same dependent.
func (d *Dispatcher) ensureDependencyEnqueued(dep asset.ID, priority int) {
	state, ok := d.reg.State(dep)
	if !ok || state != asset.StateUnloaded {
		return
	}
	meta, ok := d.reg.Metadata(dep)
	if !ok {
		return
	}
	d.reg.SetState(dep, asset.StateQueued)
	req := &Request{
		ID:          dep,
		Path:        meta.Path,
		Type:        meta.Type,
		Priority:    priority,
		Quality:     meta.CurrentQuality,
		RequestTime: time.Now(),
		Ctx:         context.Background(),
		promise:     newPromise(),
	}
	d.push(req)
}

// readWithRetry implements spec §7's recoverable-error retry policy:
// ChecksumMismatch and IoError get exponential backoff up to cfg.RetryCap;
// everything else (DecodeError, WouldCreateCycle, ...) surfaces immediately.
func (d *Dispatcher) readWithRetry(req *Request) ([]byte, error) {
	backoff := d.cfg.retryBackoff()
	retryCap := d.cfg.retryCap()
	var lastErr error
	for attempt := 0; attempt <= retryCap; attempt++ {
		data, err := d.src.ReadAll(req.Path)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == retryCap {
			return nil, err
		}
		time.Sleep(backoff)
		backoff *= 2
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	return errors.Is(err, cmn.ErrIO) || errors.Is(err, cmn.ErrChecksumMismatch)
}
