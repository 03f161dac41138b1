package cache

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

const (
	metaMagic   = "AMET"
	metaVersion = uint32(1)
	metaSize    = 4 + 4 + 8 + 4 + 8 + 8 + 4 // magic+version+id+type+size+ctime+checksum
)

// Disk is the content-addressed on-disk cache level (spec §4.E/§6): each
// entry is a pair of files, `<id_hex>.bin` (raw bytes) and `<id_hex>.meta`
// (fixed binary sidecar with a CRC32 checksum of the .bin contents).
type Disk struct {
	dir string
}

func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "disk cache: mkdir %s: %v", dir, err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) binPath(id asset.ID) string  { return filepath.Join(d.dir, fmt.Sprintf("%016x.bin", uint64(id))) }
func (d *Disk) metaPath(id asset.ID) string { return filepath.Join(d.dir, fmt.Sprintf("%016x.meta", uint64(id))) }

// Put writes bytes to <id_hex>.bin and a .meta sidecar, both via
// temp-file-then-rename for atomicity (spec §4.E: "Writes are atomic").
func (d *Disk) Put(id asset.ID, data []byte, t asset.Type) error {
	now := time.Now()
	checksum := crc32.ChecksumIEEE(data)

	if err := d.atomicWrite(d.binPath(id), data); err != nil {
		return err
	}
	meta := encodeMeta(id, t, int64(len(data)), now, checksum)
	if err := d.atomicWrite(d.metaPath(id), meta); err != nil {
		return err
	}
	return nil
}

func (d *Disk) atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp." + cmn.GenTie()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return cmn.NewError(cmn.ErrIO, "disk cache: create %s: %v", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "disk cache: write %s: %v", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "disk cache: fsync %s: %v", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "disk cache: close %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return cmn.NewError(cmn.ErrIO, "disk cache: rename %s -> %s: %v", tmp, path, err)
	}
	return nil
}

// Get reads id's bytes, verifying the sidecar checksum. A mismatch deletes
// the corrupt entry and reports a miss (spec §4.E/§7: ChecksumMismatch
// "auto-recovery: delete and treat as miss").
func (d *Disk) Get(id asset.ID) ([]byte, bool) {
	metaBytes, err := os.ReadFile(d.metaPath(id))
	if err != nil {
		return nil, false
	}
	m, err := decodeMeta(metaBytes)
	if err != nil {
		glog.Warningf("disk cache: corrupt meta for %016x: %v", uint64(id), err)
		d.removeFiles(id)
		return nil, false
	}
	data, err := os.ReadFile(d.binPath(id))
	if err != nil {
		d.removeFiles(id)
		return nil, false
	}
	if crc32.ChecksumIEEE(data) != m.checksum {
		glog.Warningf("disk cache: checksum mismatch for %016x", uint64(id))
		d.removeFiles(id)
		return nil, false
	}
	return data, true
}

func (d *Disk) removeFiles(id asset.ID) {
	os.Remove(d.binPath(id))
	os.Remove(d.metaPath(id))
}

func (d *Disk) Remove(id asset.ID) { d.removeFiles(id) }

// Cleanup deletes entries whose .meta creation_time is older than maxAge.
func (d *Disk) Cleanup(maxAge time.Duration) (removed int) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	for _, de := range entries {
		if filepath.Ext(de.Name()) != ".meta" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, de.Name()))
		if err != nil {
			continue
		}
		m, err := decodeMeta(data)
		if err != nil {
			continue
		}
		if m.creationTime.Before(cutoff) {
			d.removeFiles(asset.ID(m.id))
			removed++
		}
	}
	return removed
}

// ValidationReport summarizes Validate's findings.
type ValidationReport struct {
	ChecksumFailures []asset.ID
	OrphanBin        []string
	OrphanMeta       []string
}

// Validate scans the cache directory for corrupted entries and orphan
// .bin/.meta pairs without repairing anything.
func (d *Disk) Validate() ValidationReport {
	var report ValidationReport
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return report
	}
	hasBin := make(map[string]bool)
	hasMeta := make(map[string]bool)
	for _, de := range entries {
		name := de.Name()
		switch filepath.Ext(name) {
		case ".bin":
			hasBin[name[:len(name)-4]] = true
		case ".meta":
			hasMeta[name[:len(name)-5]] = true
		}
	}
	for stem := range hasBin {
		if !hasMeta[stem] {
			report.OrphanBin = append(report.OrphanBin, stem+".bin")
		}
	}
	for stem := range hasMeta {
		if !hasBin[stem] {
			report.OrphanMeta = append(report.OrphanMeta, stem+".meta")
			continue
		}
		metaBytes, err := os.ReadFile(filepath.Join(d.dir, stem+".meta"))
		if err != nil {
			continue
		}
		m, err := decodeMeta(metaBytes)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, stem+".bin"))
		if err != nil || crc32.ChecksumIEEE(data) != m.checksum {
			report.ChecksumFailures = append(report.ChecksumFailures, asset.ID(m.id))
		}
	}
	return report
}

type diskMeta struct {
	id           uint64
	typ          asset.Type
	size         int64
	creationTime time.Time
	checksum     uint32
}

// encodeMeta serializes the fixed little-endian sidecar layout from spec
// §6: magic(4)="AMET" | version(u32) | id(u64) | type(u32) | size(u64) |
// creation_time(i64, unix nanos) | checksum(u32, CRC32 of .bin).
func encodeMeta(id asset.ID, t asset.Type, size int64, creation time.Time, checksum uint32) []byte {
	buf := make([]byte, metaSize)
	off := 0
	copy(buf[off:], metaMagic)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], metaVersion)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(id))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(t))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], uint64(size))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(creation.UnixNano()))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], checksum)
	return buf
}

func decodeMeta(b []byte) (diskMeta, error) {
	var m diskMeta
	if len(b) != metaSize {
		return m, cmn.NewError(cmn.ErrDecode, "disk cache: meta size %d, want %d", len(b), metaSize)
	}
	if string(b[:4]) != metaMagic {
		return m, cmn.NewError(cmn.ErrDecode, "disk cache: bad magic %q", b[:4])
	}
	off := 4
	version := binary.LittleEndian.Uint32(b[off:])
	off += 4
	if version != metaVersion {
		return m, cmn.NewError(cmn.ErrDecode, "disk cache: unsupported meta version %d", version)
	}
	m.id = binary.LittleEndian.Uint64(b[off:])
	off += 8
	m.typ = asset.Type(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	m.size = int64(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	m.creationTime = time.Unix(0, int64(binary.LittleEndian.Uint64(b[off:])))
	off += 8
	m.checksum = binary.LittleEndian.Uint32(b[off:])
	return m, nil
}
