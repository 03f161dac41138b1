package asset

import "time"

// CacheEntry is the unit stored by package cache, both in memory and (with
// an additional on-disk checksum) on disk (spec §3).
type CacheEntry struct {
	ID              ID
	Bytes           []byte
	Size            int64
	LastAccess      time.Time
	CreationTime    time.Time
	AccessCount     uint64
	Type            Type
	CompressionKind string
	ContentHash     string

	// Checksum is populated for disk entries only: CRC32 of Bytes, verified
	// on every read per spec §4.E/§6's sidecar format.
	Checksum uint32
}
