package stream

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
	"github.com/forgekit/assetcore/loader"
	"github.com/forgekit/assetcore/registry"
)

// Config tunes the Controller's worker pool and eviction watermarks. Spec
// §5: "Streaming runs its own worker pool (configurable, default 4)."
type Config struct {
	Workers        int
	HighWatermark  float64 // fraction of MemBudget that triggers eviction, default 0.9
	LowWatermark   float64 // fraction of MemBudget eviction stops at, default 0.75
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return 4
}

func (c Config) highWatermark() float64 {
	if c.HighWatermark > 0 {
		return c.HighWatermark
	}
	return 0.9
}

func (c Config) lowWatermark() float64 {
	if c.LowWatermark > 0 {
		return c.LowWatermark
	}
	return 0.75
}

// Stats aggregates the streaming statistics spec §4.I names.
type Stats struct {
	QualityUpgrades   uint64
	QualityDowngrades uint64
}

// Controller runs the per-frame streaming control loop from spec §4.I,
// grounded on the loader.Dispatcher's own mutex+cond-guarded priority
// queue and errgroup worker pool (same shape, a distinct instance so
// rendering-frame-driven updates never contend with asset-load workers).
type Controller struct {
	reg    *registry.Registry
	ld     *loader.Dispatcher
	table  *Table
	budget *BudgetManager
	cfg    Config

	mtx     sync.Mutex
	cond    *sync.Cond
	records map[asset.ID]*Record
	queue   upgradeQueue

	stopCh *cmn.StopCh
	wg     *errgroup.Group

	sampler *diskBandwidthSampler

	upgrades   atomic.Uint64
	downgrades atomic.Uint64
}

func New(reg *registry.Registry, ld *loader.Dispatcher, table *Table, budget *BudgetManager, cfg Config) *Controller {
	c := &Controller{
		reg:     reg,
		ld:      ld,
		table:   table,
		budget:  budget,
		cfg:     cfg,
		records: make(map[asset.ID]*Record),
		stopCh:  cmn.NewStopCh(),
	}
	c.cond = sync.NewCond(&c.mtx)
	return c
}

// Start launches the upgrade worker pool and the disk-bandwidth sampler
// that feeds BudgetManager.SetBandwidthBudget.
func (c *Controller) Start() {
	var ctx context.Context
	c.wg, ctx = errgroup.WithContext(context.Background())
	for i := 0; i < c.cfg.workers(); i++ {
		c.wg.Go(func() error { return c.workerLoop(ctx) })
	}
	c.sampler = newDiskBandwidthSampler(c.budget)
	c.sampler.start()
}

func (c *Controller) Stop(grace time.Duration) error {
	c.sampler.stop()

	c.mtx.Lock()
	for c.queue.Len() > 0 {
		heap.Pop(&c.queue)
	}
	c.stopCh.Close()
	c.cond.Broadcast()
	c.mtx.Unlock()

	tg := cmn.NewTimeoutGroup()
	tg.Add(1)
	var joinErr error
	go func() {
		joinErr = c.wg.Wait()
		tg.Done()
	}()
	if !tg.WaitTimeout(grace) {
		return cmn.NewError(cmn.ErrTimeout, "stream: stop: workers did not join within %s", grace)
	}
	return joinErr
}

func (c *Controller) Stats() Stats {
	return Stats{QualityUpgrades: c.upgrades.Load(), QualityDowngrades: c.downgrades.Load()}
}

// Track begins streaming management of id at the given initial quality and
// priority; a no-op if id is already tracked.
func (c *Controller) Track(id asset.ID, priority Priority, initial asset.Quality) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, ok := c.records[id]; ok {
		return
	}
	c.records[id] = &Record{ID: id, CurrentQuality: initial, TargetQuality: initial, Priority: priority}
}

func (c *Controller) Untrack(id asset.ID) {
	c.mtx.Lock()
	delete(c.records, id)
	c.mtx.Unlock()
}

// UpdateDistance reports a changed distance for an already-tracked asset;
// the next Update(dt) call recomputes its target quality.
func (c *Controller) UpdateDistance(id asset.ID, d float64) {
	c.mtx.Lock()
	if r, ok := c.records[id]; ok {
		r.Distance = d
	}
	c.mtx.Unlock()
}

// Update runs one iteration of the control loop (spec §4.I steps 1-4),
// invoked by the host once per rendered frame with the frame's dt.
func (c *Controller) Update(dt time.Duration) {
	c.budget.ResetFrameBudget()

	c.mtx.Lock()
	records := make([]*Record, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, r)
	}
	c.mtx.Unlock()

	for _, r := range records {
		c.stepRecord(r)
	}

	c.enforceWatermarks()
}

// stepRecord implements step 1-2 of the control loop for one record:
// recompute target via LOD+hysteresis, and if it calls for an upgrade and
// the budget admits it, enqueue the upgrade.
func (c *Controller) stepRecord(r *Record) {
	c.mtx.Lock()
	target := c.table.TargetQuality(r.CurrentQuality, r.Distance)
	r.TargetQuality = target
	upgrade := target > r.CurrentQuality
	c.mtx.Unlock()

	if !upgrade {
		return
	}
	if !c.budget.Admit(r.EstimatedBytes, r.EstimatedTimeMs) {
		return
	}

	c.mtx.Lock()
	r.RequestTime = time.Now()
	heap.Push(&c.queue, r)
	c.cond.Signal()
	c.mtx.Unlock()
}

func (c *Controller) workerLoop(ctx context.Context) error {
	for {
		r, ok := c.pop()
		if !ok {
			return nil
		}
		c.serviceUpgrade(ctx, r)
	}
}

func (c *Controller) pop() (*Record, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	for c.queue.Len() == 0 {
		if c.stopCh.IsStopped() {
			return nil, false
		}
		c.cond.Wait()
	}
	return heap.Pop(&c.queue).(*Record), true
}

// serviceUpgrade drives one queued upgrade through the loader. It goes
// through Reload rather than Load: the asset is typically already Loaded
// at a lower quality, and Load's "already Loaded" short-circuit (loader
// §4.G) would hand back the existing handle without reprocessing at the
// new quality. Reload forces the read+pipeline to run again and performs
// the atomic payload swap + version bump itself (spec §4.I step 2), so
// here we just update the record's CurrentQuality and the upgrade counter,
// then fire the completion callback if one was registered.
func (c *Controller) serviceUpgrade(ctx context.Context, r *Record) {
	if _, ok := c.reg.Metadata(r.ID); !ok {
		return
	}
	h, err := c.ld.Reload(ctx, r.ID, int(r.Priority), 0, r.TargetQuality).Wait(ctx)

	c.mtx.Lock()
	if err == nil {
		r.CurrentQuality = r.TargetQuality
		c.upgrades.Inc()
	}
	cb := r.CompletionCallback
	c.mtx.Unlock()

	if cb != nil {
		cb(h, err)
	}
}

// enforceWatermarks implements step 3: when resident memory exceeds the
// high watermark, evict the lowest-priority tails of Loaded assets
// (downgrade quality, or drop entirely once at the floor) until back under
// the low watermark.
func (c *Controller) enforceWatermarks() {
	used := c.residentBytes()
	highWM := int64(float64(c.budget.memBudget) * c.cfg.highWatermark())
	lowWM := int64(float64(c.budget.memBudget) * c.cfg.lowWatermark())
	if c.budget.memBudget <= 0 || used <= highWM {
		return
	}

	for _, id := range c.lowestPriorityResident() {
		if used <= lowWM {
			break
		}
		freed := c.downgradeOrEvict(id)
		used -= freed
	}
}

func (c *Controller) residentBytes() int64 {
	var total int64
	for _, id := range c.reg.AllIDs() {
		if st, ok := c.reg.State(id); !ok || st != asset.StateLoaded {
			continue
		}
		h, ok := c.reg.Get(id)
		if !ok {
			continue
		}
		total += h.Asset().MemoryUsage
		h.Release()
	}
	return total
}

// lowestPriorityResident returns tracked, resident asset ids ordered by
// ascending streaming priority (the "Low-priority tails" spec §4.I names
// first for eviction).
func (c *Controller) lowestPriorityResident() []asset.ID {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	ids := make([]asset.ID, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && c.records[ids[j]].Priority < c.records[ids[j-1]].Priority; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// downgradeOrEvict drops one quality step if the record is above Low,
// otherwise releases the registry's hold on it entirely. Returns the
// estimated bytes freed (the evicted/downgraded asset's resident size).
func (c *Controller) downgradeOrEvict(id asset.ID) int64 {
	h, ok := c.reg.Get(id)
	if !ok {
		return 0
	}
	defer h.Release()
	freed := h.Asset().MemoryUsage

	c.mtx.Lock()
	r, tracked := c.records[id]
	c.mtx.Unlock()

	if tracked && r.CurrentQuality > asset.QualityLow {
		c.mtx.Lock()
		r.CurrentQuality--
		c.mtx.Unlock()
		c.downgrades.Inc()
		_ = c.reg.SetCurrentQuality(id, r.CurrentQuality)
		return freed
	}

	c.reg.Release(id)
	c.downgrades.Inc()
	return freed
}
