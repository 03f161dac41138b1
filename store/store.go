// Package store implements the persistence layer (spec §4.K): a queryable
// record of assets, tags, dependencies, and load history, backed by either
// an in-memory buntdb instance (tests) or a Postgres-backed sqlx store
// (persisted). Both satisfy the same Store interface so callers never
// branch on backend.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/forgekit/assetcore/asset"
)

// SortKey names the columns a Query can order by (spec §4.K: "sort keys").
type SortKey int

const (
	SortByPath SortKey = iota
	SortBySize
	SortByLastModified
	SortByAccessCount
)

// Filter describes one Query call: every zero-valued field is "no
// constraint on this dimension" (spec §4.K: "filters (type, state, tags,
// path glob, size range, date range, dependency containment)").
type Filter struct {
	Types      []asset.Type
	States     []asset.State
	Tags       []string
	PathGlob   string
	MinSize    int64
	MaxSize    int64 // 0 means unbounded
	After      time.Time
	Before     time.Time
	DependsOn  asset.ID // records whose Dependencies contains this id; applied only when HasDependsOn is set
	HasDependsOn bool

	Sort    SortKey
	Desc    bool
	Offset  int
	Limit   int // 0 means unbounded
}

// Page is one Query result: the matching slice plus the unpaginated total,
// so callers can render "page 2 of N" without a second round-trip.
type Page struct {
	Records []asset.Record
	Total   int
}

// Store is the persistence contract spec §4.K names: CRUD by id/path,
// batch CRUD, filtered/paginated/sorted queries, tags, a dependency mirror
// of the registry's own graph (§4.B), and maintenance operations.
type Store interface {
	Create(ctx context.Context, r asset.Record) error
	Get(ctx context.Context, id asset.ID) (asset.Record, bool, error)
	GetByPath(ctx context.Context, path string) (asset.Record, bool, error)
	Update(ctx context.Context, r asset.Record) error
	Delete(ctx context.Context, id asset.ID) error

	CreateBatch(ctx context.Context, rs []asset.Record) error
	UpdateBatch(ctx context.Context, rs []asset.Record) error
	DeleteBatch(ctx context.Context, ids []asset.ID) error

	Query(ctx context.Context, f Filter) (Page, error)

	AddTag(ctx context.Context, id asset.ID, tag string) error
	RemoveTag(ctx context.Context, id asset.ID, tag string) error
	FindByTag(ctx context.Context, tag string) ([]asset.Record, error)

	AddDependency(ctx context.Context, a, b asset.ID) error
	RemoveDependency(ctx context.Context, a, b asset.ID) error
	Dependencies(ctx context.Context, id asset.ID) ([]asset.ID, error)
	Dependents(ctx context.Context, id asset.ID) ([]asset.ID, error)

	Optimize(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Backup(ctx context.Context, path string) error
	Restore(ctx context.Context, path string) error
	IntegrityCheck(ctx context.Context) error

	SchemaVersion(ctx context.Context) (int, error)
	UpdateSchema(ctx context.Context, target int) error

	Close() error
}

// Future is the Go stand-in for spec §4.K's async query/insert/update
// variants, the same one-shot multi-waiter shape as loader.Promise, kept
// as its own small type here rather than imported across packages since
// it carries a Store-specific result (a Page, an error, a Record) instead
// of an asset.Handle.
type Future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(val T, err error) {
	f.once.Do(func() {
		f.val, f.err = val, err
		close(f.done)
	})
}

func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Async wraps a Store to run its query/insert/update operations on a new
// goroutine per call, matching spec §4.K's "async variants of
// query/insert/update" without doubling the Store interface's method
// count.
type Async struct {
	s Store
}

func NewAsync(s Store) *Async { return &Async{s: s} }

func (a *Async) CreateAsync(ctx context.Context, r asset.Record) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() { f.complete(struct{}{}, a.s.Create(ctx, r)) }()
	return f
}

func (a *Async) UpdateAsync(ctx context.Context, r asset.Record) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() { f.complete(struct{}{}, a.s.Update(ctx, r)) }()
	return f
}

func (a *Async) QueryAsync(ctx context.Context, flt Filter) *Future[Page] {
	f := newFuture[Page]()
	go func() {
		p, err := a.s.Query(ctx, flt)
		f.complete(p, err)
	}()
	return f
}

func matchesFilter(r asset.Record, f Filter) bool {
	if len(f.Types) > 0 && !containsType(f.Types, r.Type) {
		return false
	}
	if len(f.States) > 0 && !containsState(f.States, r.State) {
		return false
	}
	if len(f.Tags) > 0 && !hasAllTags(r.Tags, f.Tags) {
		return false
	}
	if f.MinSize > 0 && r.SizeBytes < f.MinSize {
		return false
	}
	if f.MaxSize > 0 && r.SizeBytes > f.MaxSize {
		return false
	}
	if !f.After.IsZero() && r.LastModified.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && r.LastModified.After(f.Before) {
		return false
	}
	if f.HasDependsOn && !containsID(r.Dependencies, f.DependsOn) {
		return false
	}
	if f.PathGlob != "" {
		if ok, _ := filepath.Match(f.PathGlob, r.Path); !ok {
			return false
		}
	}
	return true
}

func containsType(types []asset.Type, t asset.Type) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsState(states []asset.State, s asset.State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func containsID(ids []asset.ID, id asset.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}
