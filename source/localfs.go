package source

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/forgekit/assetcore/cmn"
)

// LocalFS is the default source: reads relative to a root directory on the
// local filesystem, priority 0 (lowest, checked last unless it's the only
// source registered).
type LocalFS struct {
	Root     string
	priority int
}

func NewLocalFS(root string) *LocalFS { return &LocalFS{Root: root, priority: 0} }

func (l *LocalFS) Name() string  { return "localfs" }
func (l *LocalFS) Priority() int { return l.priority }

func (l *LocalFS) resolve(path string) string { return filepath.Join(l.Root, path) }

func (l *LocalFS) Exists(path string) bool {
	_, err := os.Stat(l.resolve(path))
	return err == nil
}

func (l *LocalFS) Size(path string) (int64, error) {
	fi, err := os.Stat(l.resolve(path))
	if err != nil {
		return 0, translateOsErr(path, err)
	}
	return fi.Size(), nil
}

func (l *LocalFS) Mtime(path string) (time.Time, error) {
	fi, err := os.Stat(l.resolve(path))
	if err != nil {
		return time.Time{}, translateOsErr(path, err)
	}
	return fi.ModTime(), nil
}

func (l *LocalFS) ReadAll(path string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, translateOsErr(path, err)
	}
	return data, nil
}

func (l *LocalFS) OpenStream(path string) (io.ReadCloser, error) {
	f, err := os.Open(l.resolve(path))
	if err != nil {
		return nil, translateOsErr(path, err)
	}
	return f, nil
}

func (l *LocalFS) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "localfs: memory mapping not supported, use source.MMapFS")
}

func translateOsErr(path string, err error) error {
	if os.IsNotExist(err) {
		return cmn.NewError(cmn.ErrNotFound, "source: %s: not found", path)
	}
	if os.IsPermission(err) {
		return cmn.NewError(cmn.ErrPermissionDenied, "source: %s: permission denied", path)
	}
	return cmn.NewError(cmn.ErrIO, "source: %s: %v", path, err)
}
