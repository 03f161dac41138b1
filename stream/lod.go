// Package stream implements the Streaming & LOD Controller (spec §4.I):
// distance/screen-driven quality selection with hysteresis, a per-frame
// budget manager, the streaming control loop, and an optional predictive
// preloader.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package stream

import "github.com/forgekit/assetcore/asset"

// LODEntry is one row of the LOD table (spec §4.I / §6's JSON-shaped
// config): the quality tier, the maximum distance and screen-size
// threshold at which it still applies, and the suffix used to resolve a
// quality-specific source path (e.g. "_lod2").
type LODEntry struct {
	Quality             asset.Quality
	MaxDistance         float64
	ScreenSizeThreshold float64
	QualitySuffix       string
}

// Table is an ordered LOD table plus the hysteresis factor that governs
// transitions between adjacent entries.
type Table struct {
	Entries    []LODEntry
	Hysteresis float64 // h, default 0.1
}

// NewTable builds a Table, defaulting Hysteresis to 0.1 (spec §4.I) when h
// is zero. Entries are sorted ascending by MaxDistance so the "smallest
// qualifying max_distance" rule in SelectQualityForDistance can stop at the
// first match.
func NewTable(entries []LODEntry, h float64) *Table {
	if h <= 0 {
		h = 0.1
	}
	sorted := append([]LODEntry(nil), entries...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].MaxDistance < sorted[j-1].MaxDistance; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Table{Entries: sorted, Hysteresis: h}
}

// SelectQualityForDistance returns the quality of the smallest entry whose
// MaxDistance >= d, or the lowest-detail entry's quality if d exceeds every
// threshold.
func (t *Table) SelectQualityForDistance(d float64) asset.Quality {
	if len(t.Entries) == 0 {
		return asset.QualityLow
	}
	for _, e := range t.Entries {
		if d <= e.MaxDistance {
			return e.Quality
		}
	}
	return t.Entries[len(t.Entries)-1].Quality
}

// SelectQualityForScreen returns the quality of the largest entry whose
// ScreenSizeThreshold <= s.
func (t *Table) SelectQualityForScreen(s float64) asset.Quality {
	if len(t.Entries) == 0 {
		return asset.QualityLow
	}
	best := t.Entries[0].Quality
	bestThreshold := -1.0
	for _, e := range t.Entries {
		if e.ScreenSizeThreshold <= s && e.ScreenSizeThreshold > bestThreshold {
			best = e.Quality
			bestThreshold = e.ScreenSizeThreshold
		}
	}
	return best
}

func (t *Table) entryFor(q asset.Quality) (LODEntry, bool) {
	for _, e := range t.Entries {
		if e.Quality == q {
			return e, true
		}
	}
	return LODEntry{}, false
}

// ShouldUpgrade reports whether distance d has fallen far enough below the
// boundary to justify moving up to target (spec §4.I: "upgrading requires
// distance to fall below max_distance*(1-h)"). The boundary is target's own
// max_distance: that is the tier being entered, so its threshold is what
// the dead-band is anchored to (worked example: LOD [(Low,100),(High,50)],
// h=0.1 — upgrading into High requires d < 50*0.9 == 45).
func (t *Table) ShouldUpgrade(current, target asset.Quality, d float64) bool {
	if target <= current {
		return false
	}
	e, ok := t.entryFor(target)
	if !ok {
		return true
	}
	return d < e.MaxDistance*(1-t.Hysteresis)
}

// ShouldDowngrade reports whether distance d has exceeded the current
// quality's threshold by enough margin to justify dropping to target
// ("downgrading requires it to exceed max_distance*(1+h)").
func (t *Table) ShouldDowngrade(current, target asset.Quality, d float64) bool {
	if target >= current {
		return false
	}
	e, ok := t.entryFor(current)
	if !ok {
		return true
	}
	return d > e.MaxDistance*(1+t.Hysteresis)
}

// TargetQuality folds SelectQualityForDistance through the hysteresis gate:
// it only reports a new target when the transition actually clears the
// dead-band around current, otherwise current is retained (spec §4.I
// invariant 9: "within that band, current quality is retained").
func (t *Table) TargetQuality(current asset.Quality, d float64) asset.Quality {
	candidate := t.SelectQualityForDistance(d)
	switch {
	case candidate > current && t.ShouldUpgrade(current, candidate, d):
		return candidate
	case candidate < current && t.ShouldDowngrade(current, candidate, d):
		return candidate
	default:
		return current
	}
}
