package source

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/forgekit/assetcore/cmn"
)

// AzureBlobSource addresses assets as azblob://container/key, priority 10.
type AzureBlobSource struct {
	account    string
	pipeline   pipeline
	priority   int
}

// pipeline narrows azblob.Pipeline to what this source needs, so tests can
// substitute a fake without standing up real Azure credentials.
type pipeline = azblob.Pipeline

func NewAzureBlobSource(account, accountKey string) (*AzureBlobSource, error) {
	cred, err := azblob.NewSharedKeyCredential(account, accountKey)
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "azure blob source: credential: %v", err)
	}
	p := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	return &AzureBlobSource{account: account, pipeline: p, priority: 10}, nil
}

func (a *AzureBlobSource) Name() string  { return "azblob" }
func (a *AzureBlobSource) Priority() int { return a.priority }

func parseAzureBlob(path string) (container, key string, ok bool) {
	rest := strings.TrimPrefix(path, "azblob://")
	if rest == path {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (a *AzureBlobSource) blobURL(container, key string) azblob.BlobURL {
	u, _ := url.Parse("https://" + a.account + ".blob.core.windows.net/" + container)
	containerURL := azblob.NewContainerURL(*u, a.pipeline)
	return containerURL.NewBlobURL(key)
}

func (a *AzureBlobSource) props(path string) (*azblob.BlobGetPropertiesResponse, bool) {
	container, key, ok := parseAzureBlob(path)
	if !ok {
		return nil, false
	}
	resp, err := a.blobURL(container, key).GetProperties(context.Background(), azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, false
	}
	return resp, true
}

func (a *AzureBlobSource) Exists(path string) bool {
	_, ok := a.props(path)
	return ok
}

func (a *AzureBlobSource) Size(path string) (int64, error) {
	resp, ok := a.props(path)
	if !ok {
		return 0, cmn.NewError(cmn.ErrNotFound, "azure blob source: %s: not found", path)
	}
	return resp.ContentLength(), nil
}

func (a *AzureBlobSource) Mtime(path string) (time.Time, error) {
	resp, ok := a.props(path)
	if !ok {
		return time.Time{}, cmn.NewError(cmn.ErrNotFound, "azure blob source: %s: not found", path)
	}
	return resp.LastModified(), nil
}

func (a *AzureBlobSource) ReadAll(path string) ([]byte, error) {
	container, key, ok := parseAzureBlob(path)
	if !ok {
		return nil, cmn.NewError(cmn.ErrNotFound, "azure blob source: %s: not an azblob:// path", path)
	}
	ctx := context.Background()
	resp, err := a.blobURL(container, key).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "azure blob source: download %s: %v", path, err)
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "azure blob source: read body %s: %v", path, err)
	}
	return buf.Bytes(), nil
}

func (a *AzureBlobSource) OpenStream(path string) (io.ReadCloser, error) {
	data, err := a.ReadAll(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(newByteReader(data)), nil
}

func (a *AzureBlobSource) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "azure blob source: memory mapping not supported for network sources")
}
