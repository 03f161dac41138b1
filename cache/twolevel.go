package cache

import (
	"sync/atomic"
	"time"

	"github.com/forgekit/assetcore/asset"
)

// TwoLevel composes a Memory cache over a Disk cache: reads check memory
// first, then disk (promoting disk hits into memory); a memory eviction may
// optionally demote into disk when the entry's Cacheable flag is set (spec
// §4.E).
type TwoLevel struct {
	Mem  *Memory
	Disk *Disk

	memHits, diskHits, misses atomic.Uint64
}

func NewTwoLevel(mem *Memory, disk *Disk) *TwoLevel {
	return &TwoLevel{Mem: mem, Disk: disk}
}

// Get reads memory -> disk -> miss, promoting a disk hit to memory.
func (tl *TwoLevel) Get(id asset.ID, t asset.Type) ([]byte, bool) {
	if data, ok := tl.Mem.Get(id); ok {
		tl.memHits.Add(1)
		return data, true
	}
	if data, ok := tl.Disk.Get(id); ok {
		tl.diskHits.Add(1)
		_ = tl.Mem.Put(id, data, t) // promote; TooLarge on promote is non-fatal, entry stays disk-only
		return data, true
	}
	tl.misses.Add(1)
	return nil, false
}

// Put fills both the memory cache and, if demote is true, the disk cache —
// used on a fresh processor result where the content should be durable
// immediately rather than waiting for a memory eviction to demote it.
func (tl *TwoLevel) Put(id asset.ID, data []byte, t asset.Type, demoteToDisk bool) error {
	if err := tl.Mem.Put(id, data, t); err != nil {
		// TooLarge for memory doesn't block a disk-only cache fill.
		if demoteToDisk {
			return tl.Disk.Put(id, data, t)
		}
		return err
	}
	if demoteToDisk {
		return tl.Disk.Put(id, data, t)
	}
	return nil
}

// DemoteOnEvict is called by whatever observes a memory eviction (the
// Memory cache itself has no Cacheable-flag context, so the manager/loader
// calls this explicitly after a Put reports eviction) to persist an evicted
// entry to disk before it's lost.
func (tl *TwoLevel) DemoteOnEvict(e *asset.CacheEntry) error {
	return tl.Disk.Put(e.ID, e.Bytes, e.Type)
}

func (tl *TwoLevel) Remove(id asset.ID) {
	tl.Mem.Remove(id)
	tl.Disk.Remove(id)
}

func (tl *TwoLevel) Cleanup(maxAge time.Duration) int { return tl.Disk.Cleanup(maxAge) }

// CombinedStats returns hit/miss counts split by level plus the memory
// cache's own eviction/byte counters (spec §4.E: "Combined statistics
// expose memory hits, disk hits, misses").
type CombinedStats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	Memory     Stats
}

func (tl *TwoLevel) Stats() CombinedStats {
	return CombinedStats{
		MemoryHits: int64(tl.memHits.Load()),
		DiskHits:   int64(tl.diskHits.Load()),
		Misses:     int64(tl.misses.Load()),
		Memory:     tl.Mem.Stats(),
	}
}
