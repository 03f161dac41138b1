package loader

import (
	"context"
	"sync"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cmn"
)

// Promise is the Go stand-in for spec §4.G/§4.H's Future<Handle>: a
// one-shot, multi-waiter completion value. Cancellation is modelled by the
// caller's context — a Promise whose originating Ctx is already Done when
// popped is skipped rather than serviced (spec §5: "a request whose promise
// is dropped before service is skipped when popped").
type Promise struct {
	once   sync.Once
	done   chan struct{}
	handle *asset.Handle
	err    error
}

func newPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

func (p *Promise) complete(h *asset.Handle, err error) {
	p.once.Do(func() {
		p.handle, p.err = h, err
		close(p.done)
	})
}

// Wait blocks until the promise settles or ctx is cancelled, whichever
// comes first.
func (p *Promise) Wait(ctx context.Context) (*asset.Handle, error) {
	select {
	case <-p.done:
		return p.handle, p.err
	case <-ctx.Done():
		return nil, cmn.NewError(cmn.ErrCancelled, "loader: wait cancelled: %v", ctx.Err())
	}
}

// Callback registers fn to run once the promise settles, on a goroutine of
// its own started by Callback (spec §4.H: load_with_callback "no blocking").
// Per spec §6, callbacks must not block — that obligation is the caller's.
func (p *Promise) Callback(fn func(*asset.Handle, error)) {
	go func() {
		<-p.done
		fn(p.handle, p.err)
	}()
}
