package source

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/colinmarc/hdfs/v2"

	"github.com/forgekit/assetcore/cmn"
)

// HDFSSource addresses assets as hdfs://namenode/path, priority 10.
type HDFSSource struct {
	client   *hdfs.Client
	priority int
}

func NewHDFSSource(namenode string) (*HDFSSource, error) {
	client, err := hdfs.New(namenode)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "hdfs source: connect %s: %v", namenode, err)
	}
	return &HDFSSource{client: client, priority: 10}, nil
}

func (h *HDFSSource) Name() string  { return "hdfs" }
func (h *HDFSSource) Priority() int { return h.priority }

func parseHDFS(path string) (string, bool) {
	rest := strings.TrimPrefix(path, "hdfs://")
	if rest == path {
		return "", false
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[idx:], true
	}
	return "/", true
}

func (h *HDFSSource) stat(path string) (os.FileInfo, bool) {
	p, ok := parseHDFS(path)
	if !ok {
		return nil, false
	}
	fi, err := h.client.Stat(p)
	if err != nil {
		return nil, false
	}
	return fi, true
}

func (h *HDFSSource) Exists(path string) bool {
	_, ok := h.stat(path)
	return ok
}

func (h *HDFSSource) Size(path string) (int64, error) {
	fi, ok := h.stat(path)
	if !ok {
		return 0, cmn.NewError(cmn.ErrNotFound, "hdfs source: %s: not found", path)
	}
	return fi.Size(), nil
}

func (h *HDFSSource) Mtime(path string) (time.Time, error) {
	fi, ok := h.stat(path)
	if !ok {
		return time.Time{}, cmn.NewError(cmn.ErrNotFound, "hdfs source: %s: not found", path)
	}
	return fi.ModTime(), nil
}

func (h *HDFSSource) ReadAll(path string) ([]byte, error) {
	p, ok := parseHDFS(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "hdfs source: %s: not an hdfs:// path", path)
	}
	f, err := h.client.Open(p)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "hdfs source: open %s: %v", path, err)
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "hdfs source: read %s: %v", path, err)
	}
	return buf.Bytes(), nil
}

func (h *HDFSSource) OpenStream(path string) (io.ReadCloser, error) {
	p, ok := parseHDFS(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "hdfs source: %s: not an hdfs:// path", path)
	}
	f, err := h.client.Open(p)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "hdfs source: open %s: %v", path, err)
	}
	return f, nil
}

func (h *HDFSSource) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "hdfs source: memory mapping not supported for network sources")
}
