//go:build unix

package source

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/forgekit/assetcore/cmn"
)

// MMapFS wraps LocalFS and additionally supports Map via a read-only shared
// mapping (spec §4.C optional capability), grounded on the "UseMemoryMap"
// load flag. Unix-only: golang.org/x/sys/unix.Mmap has no portable Windows
// equivalent in this package, so a non-unix build simply lacks Map support
// (OpenStream/ReadAll still work identically to LocalFS).
type MMapFS struct {
	*LocalFS
}

func NewMMapFS(root string) *MMapFS {
	return &MMapFS{LocalFS: NewLocalFS(root)}
}

func (m *MMapFS) Name() string { return "mmapfs" }

type mmapMapping struct {
	data []byte
}

func (mm *mmapMapping) Bytes() []byte { return mm.data }
func (mm *mmapMapping) Close() error  { return unix.Munmap(mm.data) }

func (m *MMapFS) Map(path string) (Mapping, error) {
	full := filepath.Join(m.Root, path)
	f, err := os.Open(full)
	if err != nil {
		return nil, translateOsErr(path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, translateOsErr(path, err)
	}
	if fi.Size() == 0 {
		return &mmapMapping{data: []byte{}}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "mmapfs: mmap %s: %v", path, err)
	}
	return &mmapMapping{data: data}, nil
}
