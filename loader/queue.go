// Package loader implements the priority-ordered load dispatcher (spec
// §4.G): a min-heap request queue feeding a fixed worker pool, in-flight
// request coalescing, dependency-deferral, and future/callback completion.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package loader

import (
	"container/heap"
	"context"
	"time"

	"github.com/forgekit/assetcore/asset"
)

// Request is LoadRequest from spec §4.G. Ordering: higher Priority first,
// then earlier RequestTime — a max-heap on priority, tie-broken by age.
type Request struct {
	ID          asset.ID
	Path        string
	Type        asset.Type
	Priority    int
	Flags       asset.Flags
	Quality     asset.Quality
	RequestTime time.Time
	Ctx         context.Context
	Force       bool // bypass the two-level cache probe (used by Reload)

	promise *Promise
	resumed bool // true once re-pushed after a dependency-deferral (spec §4.G step 1)
	index   int  // heap.Interface bookkeeping
}

// requestQueue implements container/heap.Interface as a priority queue:
// Less reports "a is serviced before b" per spec §4.G's ordering rule.
type requestQueue []*Request

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].RequestTime.Before(q[j].RequestTime)
}

func (q requestQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *requestQueue) Push(x interface{}) {
	r := x.(*Request)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *requestQueue) Pop() interface{} {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}

var _ heap.Interface = (*requestQueue)(nil)
