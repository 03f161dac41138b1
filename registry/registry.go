// Package registry is the identity/state/dependency authority for the asset
// pipeline: it owns every Asset, its reference count, its state machine, and
// the dependency graph over AssetIds (spec §4.B).
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package registry

import (
	"path/filepath"
	"strings"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

// Observer receives state-change, reload, and load-completion notifications.
// Per spec §4.B/§5, these fire after the registry lock is released, in
// registration order; observers must not block (spec §6).
type Observer interface {
	OnStateChange(id asset.ID, old, new asset.State)
	OnAssetReloaded(id asset.ID, path string)
	OnLoadCompleted(id asset.ID, err error)
}

type entry struct {
	meta  asset.Metadata
	a     *asset.Asset
	state asset.State
}

// Registry is the single authority for asset identity, lifecycle, and
// dependencies. Concurrency model is unchanged from the teacher's own
// listener-registration idiom (cluster/map.go's Smap listeners): a single
// sync.RWMutex guards the maps, and observer callbacks fire after Unlock to
// avoid reentrancy deadlocks.
type Registry struct {
	mtx       sync.RWMutex
	byID      map[asset.ID]*entry
	byPath    map[string]asset.ID
	deps      *asset.DependencyGraph
	observers []Observer

	// unrefFilter is an approximate set of ids whose ref_count has been
	// observed at 0 (written by Get and ReleaseRef; Acquire does not touch
	// it). Nothing reads it: UnreferencedSet always runs its exact
	// RWMutex-guarded scan, so the filter never affects any result.
	unrefFilter *cuckoo.Filter
	unrefMtx    sync.Mutex
}

func New() *Registry {
	return &Registry{
		byID:        make(map[asset.ID]*entry),
		byPath:      make(map[string]asset.ID),
		deps:        asset.NewDependencyGraph(),
		unrefFilter: cuckoo.NewFilter(1 << 16),
	}
}

// RegisterObserver adds o to the notification list; Unreg is not needed for
// process lifetime use, but ClearObservers resets the list for tests.
func (r *Registry) RegisterObserver(o Observer) {
	r.mtx.Lock()
	r.observers = append(r.observers, o)
	r.mtx.Unlock()
}

func (r *Registry) ClearObservers() {
	r.mtx.Lock()
	r.observers = nil
	r.mtx.Unlock()
}

// Register assigns (or returns the existing) AssetId for path. Idempotent:
// a second call for the same path returns the existing id without
// reinstalling (spec §4.B).
func (r *Registry) Register(path string, t asset.Type) asset.ID {
	r.mtx.Lock()
	if id, ok := r.byPath[path]; ok {
		r.mtx.Unlock()
		return id
	}
	id := asset.FromPath(path)
	// Guard against an FNV-1a collision across distinct paths: prefer the
	// first registrant, never silently overwrite.
	for {
		if e, exists := r.byID[id]; !exists || e.meta.Path == path {
			break
		}
		id++
		if id == asset.Invalid {
			id = 1
		}
	}
	r.byID[id] = &entry{
		meta: asset.Metadata{
			ID:               id,
			Type:             t,
			Path:             path,
			Name:             filepath.Base(path),
			CustomProperties: make(map[string]string),
		},
		state: asset.StateUnloaded,
	}
	r.byPath[path] = id
	r.mtx.Unlock()
	return id
}

// Install transitions an Unloaded/Queued/Loading/Stale/Error id to Loaded with the given
// asset payload. Fails WrongState if id is not in a permitted predecessor
// state.
func (r *Registry) Install(id asset.ID, a *asset.Asset) error {
	r.mtx.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mtx.Unlock()
		return cmn.NewError(cmn.ErrUnknownID, "registry: install: unknown id %d", id)
	}
	switch e.state {
	case asset.StateUnloaded, asset.StateQueued, asset.StateLoading, asset.StateStale, asset.StateError:
	default:
		r.mtx.Unlock()
		return cmn.NewError(cmn.ErrWrongState, "registry: install: id %d in state %s", id, e.state)
	}
	old := e.state
	a.Metadata = e.meta
	a.State = asset.StateLoaded
	e.a = a
	e.state = asset.StateLoaded
	r.mtx.Unlock()

	r.notifyStateChange(id, old, asset.StateLoaded)
	return nil
}

// SetState transitions id to new, notifying observers after the lock is
// released.
func (r *Registry) SetState(id asset.ID, new asset.State) error {
	r.mtx.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mtx.Unlock()
		return cmn.NewError(cmn.ErrUnknownID, "registry: set_state: unknown id %d", id)
	}
	old := e.state
	e.state = new
	if e.a != nil {
		e.a.State = new
	}
	r.mtx.Unlock()

	if old != new {
		r.notifyStateChange(id, old, new)
	}
	return nil
}

func (r *Registry) notifyStateChange(id asset.ID, old, new asset.State) {
	r.mtx.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mtx.RUnlock()
	for _, o := range observers {
		o.OnStateChange(id, old, new)
	}
}

func (r *Registry) notifyReloaded(id asset.ID, path string) {
	r.mtx.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mtx.RUnlock()
	for _, o := range observers {
		o.OnAssetReloaded(id, path)
	}
}

func (r *Registry) notifyLoadCompleted(id asset.ID, err error) {
	r.mtx.RLock()
	observers := append([]Observer(nil), r.observers...)
	r.mtx.RUnlock()
	for _, o := range observers {
		o.OnLoadCompleted(id, err)
	}
}

// NotifyReloaded and NotifyLoadCompleted are exported so the loader package
// (which drives reload/load completion) can publish through the same
// registration-ordered fan-out the registry already maintains.
func (r *Registry) NotifyReloaded(id asset.ID, path string)    { r.notifyReloaded(id, path) }
func (r *Registry) NotifyLoadCompleted(id asset.ID, err error) { r.notifyLoadCompleted(id, err) }

// Get returns a ref-counted Handle to id, or ok=false if unknown or never
// installed.
func (r *Registry) Get(id asset.ID) (*asset.Handle, bool) {
	r.mtx.Lock()
	e, ok := r.byID[id]
	if !ok || e.a == nil {
		r.mtx.Unlock()
		return nil, false
	}
	e.a.RefCount++
	a := e.a
	r.mtx.Unlock()
	r.unrefObserve(id, a.RefCount)
	return asset.NewHandle(id, a, r), true
}

func (r *Registry) FindByPath(path string) (asset.ID, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	id, ok := r.byPath[path]
	return id, ok
}

func (r *Registry) FindByType(t asset.Type) []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var out []asset.ID
	for id, e := range r.byID {
		if e.meta.Type == t {
			out = append(out, id)
		}
	}
	return out
}

// AllIDs returns every registered id, loaded or not — used by the manager
// facade for memory_usage()/asset_count() sweeps that must see every
// resident entry regardless of path shape (filepath.Match's "*" doesn't
// cross path separators, so it can't stand in for "every id").
func (r *Registry) AllIDs() []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	out := make([]asset.ID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}

// FindByPattern matches registered paths against a glob pattern
// (path/filepath.Match semantics).
func (r *Registry) FindByPattern(pattern string) []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var out []asset.ID
	for path, id := range r.byPath {
		if ok, _ := filepath.Match(pattern, path); ok {
			out = append(out, id)
		}
	}
	return out
}

// Acquire increments id's reference count without returning a Handle. No
// package in this module calls it.
func (r *Registry) Acquire(id asset.ID) error {
	r.mtx.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mtx.Unlock()
		return cmn.NewError(cmn.ErrUnknownID, "registry: acquire: unknown id %d", id)
	}
	if e.a != nil {
		e.a.RefCount++
	}
	r.mtx.Unlock()
	return nil
}

// ReleaseRef implements asset.Releaser; Release below 0 is a programming
// error and asserts (spec §4.B).
func (r *Registry) ReleaseRef(id asset.ID) {
	r.mtx.Lock()
	e, ok := r.byID[id]
	if !ok {
		r.mtx.Unlock()
		return
	}
	if e.a != nil {
		cmn.Assert(e.a.RefCount > 0, "registry: release of id %d below zero ref_count", id)
		e.a.RefCount--
	}
	refCount := int64(-1)
	if e.a != nil {
		refCount = e.a.RefCount
	}
	r.mtx.Unlock()
	r.unrefObserve(id, refCount)
}

func (r *Registry) unrefObserve(id asset.ID, refCount int64) {
	if refCount != 0 {
		return
	}
	r.unrefMtx.Lock()
	r.unrefFilter.InsertUnique(idBytes(id))
	r.unrefMtx.Unlock()
}

// Release is the public-facing alias used by Manager.unload.
func (r *Registry) Release(id asset.ID) { r.ReleaseRef(id) }

// AddDependency inserts edge a->b ("a depends on b"); fails WouldCreateCycle
// if b transitively depends on a.
func (r *Registry) AddDependency(a, b asset.ID) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.byID[a]; !ok {
		return cmn.NewError(cmn.ErrUnknownID, "registry: add_dependency: unknown id %d", a)
	}
	if _, ok := r.byID[b]; !ok {
		return cmn.NewError(cmn.ErrDependencyMissing, "registry: add_dependency: unknown dependency %d", b)
	}
	if r.deps.WouldCreateCycle(a, b) {
		return cmn.NewError(cmn.ErrWouldCreateCycle, "registry: add_dependency: %d -> %d would cycle", a, b)
	}
	r.deps.AddEdge(a, b)
	r.byID[a].meta.Dependencies = append(r.byID[a].meta.Dependencies, b)
	return nil
}

// TopologicalLoadOrder orders ids so every dependency precedes its
// dependent (Kahn's algorithm; spec §4.B).
func (r *Registry) TopologicalLoadOrder(ids []asset.ID) []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.deps.TopologicalOrder(ids)
}

// TransitiveDependents is used by the hot-reload cascade.
func (r *Registry) TransitiveDependents(id asset.ID) []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.deps.TransitiveDependents(id)
}

// SetCurrentQuality records which quality level a completed load installed,
// both on the resident metadata and (if present) the live Asset — called by
// the loader once a load_internal pass picks a payload quality (spec §4.G
// step 4).
func (r *Registry) SetCurrentQuality(id asset.ID, q asset.Quality) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return cmn.NewError(cmn.ErrUnknownID, "registry: set_current_quality: unknown id %d", id)
	}
	e.meta.CurrentQuality = q
	if e.a != nil {
		e.a.Metadata.CurrentQuality = q
	}
	return nil
}

// MarkStale transitions id (and, per caller's choice, its dependents) to
// Stale.
func (r *Registry) MarkStale(id asset.ID) error {
	return r.SetState(id, asset.StateStale)
}

// DirtySet returns every id currently in Stale state.
func (r *Registry) DirtySet() []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var out []asset.ID
	for id, e := range r.byID {
		if e.state == asset.StateStale {
			out = append(out, id)
		}
	}
	return out
}

// UnreferencedSet returns every id with ref_count 0, no Persistent flag, and
// no Stale-pending reload: a candidate set for gc(). It is computed by an
// exact scan of every entry; the unrefFilter is not consulted.
func (r *Registry) UnreferencedSet() []asset.ID {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	var out []asset.ID
	for id, e := range r.byID {
		if e.a == nil {
			continue
		}
		if e.a.RefCount == 0 && !e.meta.Flags.IsSet(asset.FlagPersistent) && e.state != asset.StateStale {
			out = append(out, id)
		}
	}
	return out
}

// Gc drops every Asset whose ref_count == 0, flags don't include Persistent,
// and that has no Stale pending reload.
func (r *Registry) Gc() int {
	candidates := r.UnreferencedSet()
	r.mtx.Lock()
	defer r.mtx.Unlock()
	n := 0
	for _, id := range candidates {
		e, ok := r.byID[id]
		if !ok || e.a == nil || e.a.RefCount != 0 {
			continue
		}
		e.a = nil
		e.state = asset.StateUnloaded
		n++
	}
	return n
}

func (r *Registry) Metadata(id asset.ID) (asset.Metadata, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return asset.Metadata{}, false
	}
	return e.meta, true
}

func (r *Registry) State(id asset.ID) (asset.State, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return asset.StateUnloaded, false
	}
	return e.state, true
}

func (r *Registry) assetOf(id asset.ID) (*asset.Asset, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	e, ok := r.byID[id]
	if !ok || e.a == nil {
		return nil, false
	}
	return e.a, true
}

func idBytes(id asset.ID) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return b
}

func sanitizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
