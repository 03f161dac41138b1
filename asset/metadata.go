package asset

import "time"

// Metadata is the per-asset record described in spec §3.
type Metadata struct {
	ID               ID
	Type             Type
	Path             string
	Name             string
	Version          uint64
	SizeBytes        int64
	LastModified     time.Time
	Flags            Flags
	CurrentQuality   Quality
	Dependencies     []ID
	CustomProperties map[string]string
}

// Record is the persistence view: Metadata plus cross-run analytics fields
// and the snapshot-at-write-time State/Tags a store query filters on
// (spec §4.K: "filters (type, state, tags, path glob, size range, date
// range, dependency containment)").
type Record struct {
	Metadata
	State           State
	Tags            []string
	AccessCount     uint64
	TotalLoadTime   time.Duration
	FileHash        string
	MimeType        string
	CompressedSize  int64
	CompressionKind string
	ErrorCount      uint64
}

// ErrorInfo captures the taxon/message of the most recent failed load
// attempt for an Asset, kept alongside the resident record for diagnostics.
type ErrorInfo struct {
	Taxon   string
	Message string
	When    time.Time
}

// Payload is the opaque byte buffer plus type-specific decoded fields
// produced by a processor (spec §3: "opaque byte buffer plus type-specific
// decoded fields (dimensions, sample rate, vertex/index tables, bytecode,
// etc.)"). Decoded is processor-defined (texture dims, mesh tables, ...);
// this package only carries the envelope.
//
// CompressionKind and Generation are the NEW fields SPEC_FULL.md §3 adds
// from original_source/asset_types.hpp: compression_kind records which
// compress.Codec the bytes are stored under (None if already decompressed).
// Generation is carried in the struct but no code path in this module sets
// or reads it, so it stays 0; no invariant depends on it.
type Payload struct {
	Bytes           []byte
	Decoded         interface{}
	CompressionKind string
	Generation      uint64
}

// Asset is a resident, typed, reference-counted representation of a
// processed source file (spec §3 "Asset (resident)").
type Asset struct {
	Metadata    Metadata
	State       State
	RefCount    int64
	Version     uint64
	Payloads    map[Quality]*Payload
	MemoryUsage int64
	LastModified time.Time
	Error       *ErrorInfo
}

// CurrentPayload returns the payload installed at the asset's current
// highest quality, or nil if none is installed yet.
func (a *Asset) CurrentPayload() *Payload {
	return a.Payloads[a.Metadata.CurrentQuality]
}
