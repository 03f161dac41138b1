// Package jsp implements atomic, checksummed JSON persistence for small
// metadata files, used for the persistence store's backup/restore snapshots
// (spec §4.K). The disk cache's `.meta` sidecars use their own fixed binary
// layout (package cache), not this envelope. Grounded on the teacher's
// cmn/jsp/file.go (Save/Load: write to a temp file, fsync, rename into
// place, verify checksum on read and discard silently on mismatch) but
// trimmed down to what this domain actually needs — no bucket metadata
// versioning, no multi-format (raw/gzip/msgpack) envelope, just JSON+CRC32.
package jsp

import (
	"hash/crc32"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/golang/glog"

	"github.com/forgekit/assetcore/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope wraps the encoded payload with a checksum of its own bytes, the
// way the teacher's jsp envelope wraps content with a cksum field ahead of
// the payload.
type envelope struct {
	Checksum uint32          `json:"checksum"`
	Payload  jsoniter.RawMessage `json:"payload"`
}

// Save atomically writes v as JSON to path: marshal, compute a CRC32 of the
// payload bytes, write envelope+payload to a sibling temp file, fsync, then
// rename over path. Mirrors the teacher's "write-tmp, fsync, rename" shape
// so a crash mid-write never leaves a half-written file at the real path.
func Save(path string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return cmn.NewError(cmn.ErrDecode, "jsp: marshal %s: %v", path, err)
	}
	env := envelope{Checksum: crc32.ChecksumIEEE(payload), Payload: payload}
	data, err := json.Marshal(&env)
	if err != nil {
		return cmn.NewError(cmn.ErrDecode, "jsp: marshal envelope %s: %v", path, err)
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, filepath.Base(path)+".tmp."+cmn.GenTie())

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "jsp: create tmp %s: %v", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "jsp: write tmp %s: %v", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "jsp: fsync tmp %s: %v", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "jsp: close tmp %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "jsp: rename %s -> %s: %v", tmp, path, err)
	}
	if glog.V(4) {
		glog.Infof("jsp: saved %s (%d bytes)", path, len(payload))
	}
	return nil
}

// Load reads and decodes path, verifying the payload checksum. A checksum
// mismatch is reported as cmn.ErrChecksumMismatch rather than silently
// discarded, since callers here (store backups) need to
// know a file is corrupt rather than fall back to a fresh/empty value
// unnoticed.
func Load(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cmn.NewError(cmn.ErrNotFound, "jsp: %s", path)
		}
		return cmn.NewError(cmn.ErrIO, "jsp: read %s: %v", path, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return cmn.NewError(cmn.ErrDecode, "jsp: unmarshal envelope %s: %v", path, err)
	}
	if crc32.ChecksumIEEE(env.Payload) != env.Checksum {
		glog.Errorf("jsp: checksum mismatch for %s", path)
		return cmn.NewError(cmn.ErrChecksumMismatch, "jsp: %s", path)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return cmn.NewError(cmn.ErrDecode, "jsp: unmarshal payload %s: %v", path, err)
	}
	return nil
}

// Exists reports whether path names a regular file, used by callers that
// need to distinguish "no sidecar yet" from a read error.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
