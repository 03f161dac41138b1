package asset

import "sync"

// Releaser is implemented by whatever owns reference-count bookkeeping for
// an Asset (the registry). A Handle calls back into it on Release so ref
// counting lives in one place regardless of how many Handles exist.
type Releaser interface {
	ReleaseRef(id ID)
}

// Handle is a shared, reference-counted reference to an Asset (spec §3).
// Acquisition increments the owning registry's ref_count; Release
// decrements it. Comparison/hashing are by identity — two Handles to the
// same Asset compare equal by their underlying ID, not by handle value.
type Handle struct {
	id       ID
	asset    *Asset
	owner    Releaser
	once     sync.Once
}

// NewHandle is called by the registry on every successful acquire.
func NewHandle(id ID, a *Asset, owner Releaser) *Handle {
	return &Handle{id: id, asset: a, owner: owner}
}

func (h *Handle) ID() ID       { return h.id }
func (h *Handle) Asset() *Asset { return h.asset }

// Release decrements the owning registry's ref_count exactly once per
// Handle, however many times Release is called — protects against
// double-release bugs at call sites that don't track handle lifetime
// precisely (defer plus an explicit release, for instance).
func (h *Handle) Release() {
	h.once.Do(func() {
		if h.owner != nil {
			h.owner.ReleaseRef(h.id)
		}
	})
}

// TypedHandle narrows a Handle's Asset.Payload.Decoded to T at construction,
// the Go analog of spec §3's compile-time-tagged TypedHandle<T>.
type TypedHandle[T any] struct {
	*Handle
	Data T
}

// NewTypedHandle narrows h by asserting its current payload's Decoded field
// is a T; callers arrange this at the point they know the asset's concrete
// type (e.g. right after a texture load).
func NewTypedHandle[T any](h *Handle) (TypedHandle[T], bool) {
	p := h.Asset().CurrentPayload()
	if p == nil {
		var zero T
		return TypedHandle[T]{Handle: h, Data: zero}, false
	}
	data, ok := p.Decoded.(T)
	return TypedHandle[T]{Handle: h, Data: data}, ok
}
