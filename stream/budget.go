package stream

import (
	"sync"
	"time"

	"github.com/lufia/iostat"

	"github.com/forgekit/assetcore/cmn"
)

// BudgetManager tracks the three per-frame ceilings spec §4.I names:
// memory, bandwidth, and time. reset_frame_budget() is called once per
// frame boundary by the Controller; Admit commits an estimate against
// whatever headroom remains.
type BudgetManager struct {
	mtx sync.Mutex

	memBudget int64
	bwBudget  int64 // bytes/sec, resampled by diskBandwidthSampler when one is attached
	timeBudgetMs float64

	memUsed  int64
	bwUsed   int64
	timeUsed float64
}

func NewBudgetManager(memBudget, bwBudget int64, timeBudgetMs float64) *BudgetManager {
	return &BudgetManager{memBudget: memBudget, bwBudget: bwBudget, timeBudgetMs: timeBudgetMs}
}

// ResetFrameBudget zeroes the per-frame counters; the host calls this
// exactly once per frame boundary (spec §4.I).
func (b *BudgetManager) ResetFrameBudget() {
	b.mtx.Lock()
	b.memUsed, b.bwUsed, b.timeUsed = 0, 0, 0
	b.mtx.Unlock()
}

// SetBandwidthBudget overrides the bytes/sec ceiling, called by an attached
// diskBandwidthSampler as measured throughput changes.
func (b *BudgetManager) SetBandwidthBudget(bytesPerSec int64) {
	b.mtx.Lock()
	b.bwBudget = bytesPerSec
	b.mtx.Unlock()
}

// Admit reports whether (estimatedBytes, estimatedTimeMs) fits the
// remaining frame budget across all three dimensions, and if so commits the
// estimate against memUsed/bwUsed/timeUsed (spec §4.I: "A request is
// admitted only if its (estimated_bytes, estimated_time) fits the
// remaining budget").
func (b *BudgetManager) Admit(estimatedBytes int64, estimatedTimeMs float64) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.memBudget > 0 && b.memUsed+estimatedBytes > b.memBudget {
		return false
	}
	if b.bwBudget > 0 && b.bwUsed+estimatedBytes > b.bwBudget {
		return false
	}
	if b.timeBudgetMs > 0 && b.timeUsed+estimatedTimeMs > b.timeBudgetMs {
		return false
	}
	b.memUsed += estimatedBytes
	b.bwUsed += estimatedBytes
	b.timeUsed += estimatedTimeMs
	return true
}

// Remaining reports the unused headroom across all three budgets.
func (b *BudgetManager) Remaining() (mem, bw int64, timeMs float64) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.memBudget - b.memUsed, b.bwBudget - b.bwUsed, b.timeBudgetMs - b.timeUsed
}

const (
	diskSampleInterval = 50 * time.Millisecond
	diskApplyInterval  = time.Second
)

// diskBandwidthSampler feeds real disk-throughput samples into a
// BudgetManager's bandwidth ceiling, grounded on dsort/mem_watcher.go's
// dual-ticker memoryWatcher: a fast ticker refreshes the raw counters
// (watchReserved's role), a slow ticker turns the accumulated delta into a
// measured bytes/sec rate and applies it (watchExcess's role). Using two
// tickers rather than one avoids conflating "read the counters often
// enough to not miss a burst" with "decide something only every second."
type diskBandwidthSampler struct {
	budget *BudgetManager

	sampleTicker *time.Ticker
	applyTicker  *time.Ticker
	stopCh       *cmn.StopCh
	wg           sync.WaitGroup

	mtx         sync.Mutex
	lastBytes   uint64
	accumBytes  uint64
	haveBase    bool
}

// newDiskBandwidthSampler attaches a sampler to b; call start() to begin
// polling and stop() to tear down. A read failure (no disk stats available
// on this platform) simply leaves the budget's configured bwBudget alone.
func newDiskBandwidthSampler(b *BudgetManager) *diskBandwidthSampler {
	return &diskBandwidthSampler{
		budget:       b,
		sampleTicker: time.NewTicker(diskSampleInterval),
		applyTicker:  time.NewTicker(diskApplyInterval),
		stopCh:       cmn.NewStopCh(),
	}
}

func (s *diskBandwidthSampler) start() {
	s.wg.Add(2)
	go s.runSample()
	go s.runApply()
}

func (s *diskBandwidthSampler) runSample() {
	defer s.wg.Done()
	for {
		select {
		case <-s.sampleTicker.C:
			s.refresh()
		case <-s.stopCh.Listen():
			return
		}
	}
}

func (s *diskBandwidthSampler) refresh() {
	stats, err := iostat.ReadDriveStats()
	if err != nil || len(stats) == 0 {
		return
	}
	var total uint64
	for _, d := range stats {
		total += d.ReadBytes + d.WriteBytes
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if !s.haveBase {
		s.lastBytes = total
		s.haveBase = true
		return
	}
	if total >= s.lastBytes {
		s.accumBytes += total - s.lastBytes
	}
	s.lastBytes = total
}

func (s *diskBandwidthSampler) runApply() {
	defer s.wg.Done()
	for {
		select {
		case <-s.applyTicker.C:
			s.mtx.Lock()
			measured := s.accumBytes
			s.accumBytes = 0
			s.mtx.Unlock()
			if measured > 0 {
				s.budget.SetBandwidthBudget(int64(measured))
			}
		case <-s.stopCh.Listen():
			return
		}
	}
}

func (s *diskBandwidthSampler) stop() {
	s.sampleTicker.Stop()
	s.applyTicker.Stop()
	s.stopCh.Close()
	s.wg.Wait()
}
