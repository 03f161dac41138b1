package cache

import (
	"sync"
	"time"

	xxhash "github.com/OneOfOne/xxhash"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

// Stats are the combined hit/miss/eviction counters exposed by both cache
// levels and by the two-level composition (spec §4.E).
type Stats struct {
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	BytesStored  int64
	BytesEvicted int64
}

// shardCount buckets the memory cache's entries across N independently
// locked shards, keyed by xxhash of the AssetId — grounded on spec §4.E's
// "concurrent map with striping" note in §5, using the teacher's own
// candidate fast-hash library for bucket selection.
const shardCount = 16

type shard struct {
	mtx     sync.Mutex
	entries map[asset.ID]*asset.CacheEntry
}

// Memory is the in-memory, size-bounded cache with a pluggable eviction
// policy (spec §4.E). Budget and policy choice apply per-shard, proportional
// to shardCount, which keeps the Σ entry.size == size_used invariant true
// globally while avoiding a single global lock.
type Memory struct {
	shards     [shardCount]*shard
	policies   [shardCount]Policy
	budget     int64 // per-shard budget = total budget / shardCount
	policyName string

	statsMtx sync.Mutex
	stats    Stats
}

func NewMemory(budgetBytes int64, policyName string) *Memory {
	m := &Memory{budget: budgetBytes / shardCount, policyName: policyName}
	if m.budget == 0 {
		m.budget = budgetBytes // degrade gracefully for tiny test budgets
	}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[asset.ID]*asset.CacheEntry)}
		m.policies[i] = NewPolicy(policyName)
	}
	return m
}

func (m *Memory) shardFor(id asset.ID) (*shard, Policy) {
	h := xxhash.New64()
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	_, _ = h.Write(b)
	idx := h.Sum64() % shardCount
	return m.shards[idx], m.policies[idx]
}

func (m *Memory) sizeUsed(s *shard) int64 {
	var n int64
	for _, e := range s.entries {
		n += e.Size
	}
	return n
}

// Put inserts bytes under id, evicting by policy until the shard's budget
// is satisfied. Rejects TooLarge if size(bytes) alone exceeds the budget.
func (m *Memory) Put(id asset.ID, data []byte, t asset.Type) error {
	return m.putEntry(id, &asset.CacheEntry{
		ID: id, Bytes: data, Size: int64(len(data)), Type: t,
		CreationTime: time.Now(), LastAccess: time.Now(),
	})
}

// PutCompressed stores already-compressed bytes tagged with codec.
func (m *Memory) PutCompressed(id asset.ID, data []byte, t asset.Type, codec string) error {
	return m.putEntry(id, &asset.CacheEntry{
		ID: id, Bytes: data, Size: int64(len(data)), Type: t, CompressionKind: codec,
		CreationTime: time.Now(), LastAccess: time.Now(),
	})
}

func (m *Memory) putEntry(id asset.ID, e *asset.CacheEntry) error {
	s, p := m.shardFor(id)
	if e.Size > m.budget {
		return cmn.NewError(cmn.ErrTooLarge, "cache: entry %d (%d bytes) exceeds shard budget %d", id, e.Size, m.budget)
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if old, exists := s.entries[id]; exists {
		m.recordEvicted(old.Size)
		delete(s.entries, id)
		p.OnRemove(id)
	}

	for m.sizeUsed(s)+e.Size > m.budget {
		victim, ok := p.Victim()
		if !ok {
			break
		}
		if v, exists := s.entries[victim]; exists {
			m.recordEvicted(v.Size)
			delete(s.entries, victim)
		}
		p.OnRemove(victim)
	}

	s.entries[id] = e
	p.OnPut(id, e)
	m.statsMtx.Lock()
	m.stats.BytesStored += e.Size
	m.statsMtx.Unlock()
	return nil
}

func (m *Memory) recordEvicted(size int64) {
	m.statsMtx.Lock()
	m.stats.Evictions++
	m.stats.BytesEvicted += size
	m.statsMtx.Unlock()
}

// Get returns the cached bytes for id, touching policy metadata and
// recording a hit/miss.
func (m *Memory) Get(id asset.ID) ([]byte, bool) {
	s, p := m.shardFor(id)
	s.mtx.Lock()
	e, ok := s.entries[id]
	if ok {
		e.AccessCount++
		e.LastAccess = time.Now()
		p.OnGet(id)
	}
	s.mtx.Unlock()

	m.statsMtx.Lock()
	if ok {
		m.stats.Hits++
	} else {
		m.stats.Misses++
	}
	m.statsMtx.Unlock()

	if !ok {
		return nil, false
	}
	return e.Bytes, true
}

// Entry returns the full CacheEntry for id without touching stats, used by
// the two-level cache's demote path.
func (m *Memory) Entry(id asset.ID) (*asset.CacheEntry, bool) {
	s, _ := m.shardFor(id)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	e, ok := s.entries[id]
	return e, ok
}

func (m *Memory) Remove(id asset.ID) {
	s, p := m.shardFor(id)
	s.mtx.Lock()
	if e, ok := s.entries[id]; ok {
		delete(s.entries, id)
		p.OnRemove(id)
		m.statsMtx.Lock()
		m.stats.BytesEvicted += e.Size
		m.statsMtx.Unlock()
	}
	s.mtx.Unlock()
}

func (m *Memory) Clear() {
	for i := range m.shards {
		m.shards[i].mtx.Lock()
		m.shards[i].entries = make(map[asset.ID]*asset.CacheEntry)
		m.shards[i].mtx.Unlock()
		m.policies[i] = NewPolicy(m.policyName)
	}
}

// TrimTo evicts entries (by policy, per shard round-robin) until total
// bytes used is <= size.
func (m *Memory) TrimTo(size int64) {
	for m.SizeUsed() > size {
		evictedAny := false
		for i := range m.shards {
			s, p := m.shards[i], m.policies[i]
			s.mtx.Lock()
			if victim, ok := p.Victim(); ok {
				if e, exists := s.entries[victim]; exists {
					delete(s.entries, victim)
					m.recordEvicted(e.Size)
					evictedAny = true
				}
				p.OnRemove(victim)
			}
			s.mtx.Unlock()
			if m.SizeUsed() <= size {
				break
			}
		}
		if !evictedAny {
			break
		}
	}
}

func (m *Memory) SizeUsed() int64 {
	var total int64
	for _, s := range m.shards {
		s.mtx.Lock()
		total += m.sizeUsed(s)
		s.mtx.Unlock()
	}
	return total
}

func (m *Memory) Stats() Stats {
	m.statsMtx.Lock()
	defer m.statsMtx.Unlock()
	return m.stats
}
