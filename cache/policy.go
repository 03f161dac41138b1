package cache

import (
	"container/list"
	"math/rand"

	"github.com/forgekit/assetcore/asset"
)

// Policy is the pluggable eviction strategy for the memory cache. Every
// method is called with the cache's mutex already held by the caller, so
// implementations need no locking of their own.
type Policy interface {
	Name() string
	OnPut(id asset.ID, e *asset.CacheEntry)
	OnGet(id asset.ID)
	OnRemove(id asset.ID)
	// Victim returns an eviction candidate, or ok=false if the policy has
	// nothing tracked.
	Victim() (id asset.ID, ok bool)
}

func NewPolicy(name string) Policy {
	switch name {
	case "lfu":
		return newLFUPolicy()
	case "fifo":
		return newFIFOPolicy()
	case "random":
		return newRandomPolicy()
	case "largest":
		return newLargestFirstPolicy()
	case "lru":
		fallthrough
	default:
		return newLRUPolicy()
	}
}

//////////////
// lruPolicy //
//////////////

type lruPolicy struct {
	order *list.List
	elems map[asset.ID]*list.Element
}

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{order: list.New(), elems: make(map[asset.ID]*list.Element)}
}

func (p *lruPolicy) Name() string { return "lru" }

func (p *lruPolicy) OnPut(id asset.ID, e *asset.CacheEntry) {
	if el, ok := p.elems[id]; ok {
		p.order.MoveToFront(el)
		return
	}
	p.elems[id] = p.order.PushFront(id)
}

func (p *lruPolicy) OnGet(id asset.ID) {
	if el, ok := p.elems[id]; ok {
		p.order.MoveToFront(el)
	}
}

func (p *lruPolicy) OnRemove(id asset.ID) {
	if el, ok := p.elems[id]; ok {
		p.order.Remove(el)
		delete(p.elems, id)
	}
}

func (p *lruPolicy) Victim() (asset.ID, bool) {
	back := p.order.Back()
	if back == nil {
		return asset.Invalid, false
	}
	return back.Value.(asset.ID), true
}

///////////////
// fifoPolicy //
///////////////

type fifoPolicy struct {
	order *list.List
	elems map[asset.ID]*list.Element
}

func newFIFOPolicy() *fifoPolicy {
	return &fifoPolicy{order: list.New(), elems: make(map[asset.ID]*list.Element)}
}

func (p *fifoPolicy) Name() string { return "fifo" }

func (p *fifoPolicy) OnPut(id asset.ID, e *asset.CacheEntry) {
	if _, ok := p.elems[id]; ok {
		return
	}
	p.elems[id] = p.order.PushBack(id)
}

func (p *fifoPolicy) OnGet(asset.ID) {}

func (p *fifoPolicy) OnRemove(id asset.ID) {
	if el, ok := p.elems[id]; ok {
		p.order.Remove(el)
		delete(p.elems, id)
	}
}

func (p *fifoPolicy) Victim() (asset.ID, bool) {
	front := p.order.Front()
	if front == nil {
		return asset.Invalid, false
	}
	return front.Value.(asset.ID), true
}

//////////////
// lfuPolicy //
//////////////

type lfuPolicy struct {
	freq map[asset.ID]uint64
}

func newLFUPolicy() *lfuPolicy { return &lfuPolicy{freq: make(map[asset.ID]uint64)} }

func (p *lfuPolicy) Name() string { return "lfu" }

func (p *lfuPolicy) OnPut(id asset.ID, e *asset.CacheEntry) {
	if _, ok := p.freq[id]; !ok {
		p.freq[id] = 0
	}
}

func (p *lfuPolicy) OnGet(id asset.ID) { p.freq[id]++ }

func (p *lfuPolicy) OnRemove(id asset.ID) { delete(p.freq, id) }

func (p *lfuPolicy) Victim() (asset.ID, bool) {
	var (
		victim asset.ID
		min    uint64
		found  bool
	)
	for id, f := range p.freq {
		if !found || f < min {
			victim, min, found = id, f, true
		}
	}
	return victim, found
}

/////////////////
// randomPolicy //
/////////////////

type randomPolicy struct {
	ids map[asset.ID]struct{}
}

func newRandomPolicy() *randomPolicy { return &randomPolicy{ids: make(map[asset.ID]struct{})} }

func (p *randomPolicy) Name() string { return "random" }

func (p *randomPolicy) OnPut(id asset.ID, e *asset.CacheEntry) { p.ids[id] = struct{}{} }
func (p *randomPolicy) OnGet(asset.ID)                         {}
func (p *randomPolicy) OnRemove(id asset.ID)                   { delete(p.ids, id) }

func (p *randomPolicy) Victim() (asset.ID, bool) {
	if len(p.ids) == 0 {
		return asset.Invalid, false
	}
	n := rand.Intn(len(p.ids))
	i := 0
	for id := range p.ids {
		if i == n {
			return id, true
		}
		i++
	}
	return asset.Invalid, false
}

////////////////////////
// largestFirstPolicy //
////////////////////////

type largestFirstPolicy struct {
	sizes map[asset.ID]int64
}

func newLargestFirstPolicy() *largestFirstPolicy {
	return &largestFirstPolicy{sizes: make(map[asset.ID]int64)}
}

func (p *largestFirstPolicy) Name() string { return "largest" }

func (p *largestFirstPolicy) OnPut(id asset.ID, e *asset.CacheEntry) { p.sizes[id] = e.Size }
func (p *largestFirstPolicy) OnGet(asset.ID)                        {}
func (p *largestFirstPolicy) OnRemove(id asset.ID)                  { delete(p.sizes, id) }

func (p *largestFirstPolicy) Victim() (asset.ID, bool) {
	var (
		victim  asset.ID
		largest int64 = -1
		found   bool
	)
	for id, sz := range p.sizes {
		if sz > largest {
			victim, largest, found = id, sz, true
		}
	}
	return victim, found
}
