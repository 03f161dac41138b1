package source

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/forgekit/assetcore/cmn"
)

// HTTPSource serves assets addressed as http(s):// URLs over a shared
// fasthttp client, priority 50 (checked ahead of LocalFS by default since a
// registered HTTP root is usually an intentional override).
type HTTPSource struct {
	BaseURL  string
	client   *fasthttp.Client
	priority int
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{BaseURL: strings.TrimSuffix(baseURL, "/"), client: &fasthttp.Client{}, priority: 50}
}

func (h *HTTPSource) Name() string  { return "http" }
func (h *HTTPSource) Priority() int { return h.priority }

func (h *HTTPSource) url(path string) string {
	return h.BaseURL + "/" + strings.TrimPrefix(path, "/")
}

func (h *HTTPSource) head(path string) (*fasthttp.Response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	req.Header.SetMethod(fasthttp.MethodHead)
	req.SetRequestURI(h.url(path))
	if err := h.client.Do(req, resp); err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, cmn.NewError(cmn.ErrIO, "http source: HEAD %s: %v", path, err)
	}
	return resp, nil
}

func (h *HTTPSource) Exists(path string) bool {
	resp, err := h.head(path)
	if err != nil {
		return false
	}
	ok := resp.StatusCode() == fasthttp.StatusOK
	fasthttp.ReleaseResponse(resp)
	return ok
}

func (h *HTTPSource) Size(path string) (int64, error) {
	resp, err := h.head(path)
	if err != nil {
		return 0, err
	}
	defer fasthttp.ReleaseResponse(resp)
	if resp.StatusCode() != fasthttp.StatusOK {
		return 0, cmn.NewError(cmn.ErrNotFound, "http source: %s: status %d", path, resp.StatusCode())
	}
	cl := resp.Header.Peek("Content-Length")
	n, _ := strconv.ParseInt(string(cl), 10, 64)
	return n, nil
}

func (h *HTTPSource) Mtime(path string) (time.Time, error) {
	resp, err := h.head(path)
	if err != nil {
		return time.Time{}, err
	}
	defer fasthttp.ReleaseResponse(resp)
	lm := string(resp.Header.Peek("Last-Modified"))
	if lm == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(fasthttp.HTTPDate, lm)
	if err != nil {
		return time.Time{}, cmn.NewError(cmn.ErrDecode, "http source: bad Last-Modified %q: %v", lm, err)
	}
	return t, nil
}

func (h *HTTPSource) ReadAll(path string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(h.url(path))
	if err := h.client.Do(req, resp); err != nil {
		return nil, cmn.NewError(cmn.ErrIO, "http source: GET %s: %v", path, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, cmn.NewError(cmn.ErrNotFound, "http source: %s: status %d", path, resp.StatusCode())
	}
	body := resp.Body()
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (h *HTTPSource) OpenStream(path string) (io.ReadCloser, error) {
	data, err := h.ReadAll(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(newByteReader(data)), nil
}

func (h *HTTPSource) Map(path string) (Mapping, error) {
	return nil, cmn.NewError(cmn.ErrIO, "http source: memory mapping not supported for network sources")
}
