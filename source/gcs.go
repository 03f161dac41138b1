package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/forgekit/assetcore/cmn"
)

// GCSSource addresses assets as gs://bucket/key, priority 10.
type GCSSource struct {
	client   *storage.Client
	priority int
}

func NewGCSSource(ctx context.Context) (*GCSSource, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "gcs source: new client: %v", err)
	}
	return &GCSSource{client: client, priority: 10}, nil
}

func (g *GCSSource) Name() string  { return "gcs" }
func (g *GCSSource) Priority() int { return g.priority }

func parseGCS(path string) (bucket, key string, ok bool) {
	rest := strings.TrimPrefix(path, "gs://")
	if rest == path {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (g *GCSSource) attrs(path string) (*storage.ObjectAttrs, bool) {
	bucket, key, ok := parseGCS(path)
	if !ok {
		return nil, false
	}
	attrs, err := g.client.Bucket(bucket).Object(key).Attrs(context.Background())
	if err != nil {
		return nil, false
	}
	return attrs, true
}

func (g *GCSSource) Exists(path string) bool {
	_, ok := g.attrs(path)
	return ok
}

func (g *GCSSource) Size(path string) (int64, error) {
	attrs, ok := g.attrs(path)
	if !ok {
		return 0, cmn.NewError(cmn.ErrNotFound, "gcs source: %s: not found", path)
	}
	return attrs.Size, nil
}

func (g *GCSSource) Mtime(path string) (time.Time, error) {
	attrs, ok := g.attrs(path)
	if !ok {
		return time.Time{}, cmn.NewError(cmn.ErrNotFound, "gcs source: %s: not found", path)
	}
	return attrs.Updated, nil
}

func (g *GCSSource) ReadAll(path string) ([]byte, error) {
	bucket, key, ok := parseGCS(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "gcs source: %s: not a gs:// path", path)
	}
	r, err := g.client.Bucket(bucket).Object(key).NewReader(context.Background())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, cmn.NewError(cmn.ErrNotFound, "gcs source: %s: not found", path)
		}
		return nil, cmn.NewError(cmn.ErrIO, "gcs source: new reader %s: %v", path, err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "gcs source: read %s: %v", path, err)
	}
	return buf.Bytes(), nil
}

func (g *GCSSource) OpenStream(path string) (io.ReadCloser, error) {
	bucket, key, ok := parseGCS(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "gcs source: %s: not a gs:// path", path)
	}
	r, err := g.client.Bucket(bucket).Object(key).NewReader(context.Background())
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "gcs source: new reader %s: %v", path, err)
	}
	return r, nil
}

func (g *GCSSource) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "gcs source: memory mapping not supported for network sources")
}
