//go:build !unix

package source

import "github.com/forgekit/assetcore/cmn"

// MMapFS on non-unix platforms falls back to LocalFS's ordinary I/O; Map
// returns an explicit error rather than silently reading the whole file,
// since "memory mapping" has an observably different invariant (no double
// copy, OS page cache backed) that callers may depend on for large assets.
type MMapFS struct {
	*LocalFS
}

func NewMMapFS(root string) *MMapFS { return &MMapFS{LocalFS: NewLocalFS(root)} }

func (m *MMapFS) Name() string { return "mmapfs" }

func (m *MMapFS) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "mmapfs: memory mapping unsupported on this platform")
}
