package source

import "bytes"

// newByteReader is a tiny helper shared by the network sources, whose
// OpenStream contract has no natural streaming primitive (the underlying
// SDKs return a byte slice or a Reader keyed to a download session) — we
// wrap the fully-read bytes in a bytes.Reader rather than inventing a
// partial-read protocol the spec doesn't require for these backends.
func newByteReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
