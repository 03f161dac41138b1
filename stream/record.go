package stream

import (
	"time"

	"github.com/forgekit/assetcore/asset"
)

// Record is the per-asset streaming record (spec §4.I): the controller
// keeps one per actively-streamed asset, updated every frame.
type Record struct {
	ID               asset.ID
	TargetQuality    asset.Quality
	CurrentQuality   asset.Quality
	Priority         Priority
	Distance         float64
	RequestTime      time.Time
	CompletionCallback func(*asset.Handle, error)

	// Estimated cost of the next upgrade step, set by the controller before
	// admitting the request against the BudgetManager.
	EstimatedBytes   int64
	EstimatedTimeMs  float64

	index int // heap bookkeeping
}

// upgradeQueue orders pending upgrade requests by priority (descending),
// then by ascending distance (spec §4.I: "Ordering in the streaming queue:
// by priority then by ascending distance"), mirroring loader.requestQueue's
// container/heap.Interface shape.
type upgradeQueue []*Record

func (q upgradeQueue) Len() int { return len(q) }

func (q upgradeQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].Distance < q[j].Distance
}

func (q upgradeQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *upgradeQueue) Push(x interface{}) {
	r := x.(*Record)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *upgradeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}
