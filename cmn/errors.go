// Package cmn provides error taxonomy, configuration, and small utilities
// shared across the asset pipeline.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy, per spec: every error carries a human-readable message
// and enough context for logs. Most taxa are plain sentinel-wrapped values
// compared with errors.Is; Internal is the one taxon required to carry a
// stack, so it alone goes through github.com/pkg/errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrIO                = errors.New("io error")
	ErrDecode            = errors.New("decode error")
	ErrWrongState        = errors.New("wrong state")
	ErrWouldCreateCycle  = errors.New("would create cycle")
	ErrDependencyMissing = errors.New("dependency missing")
	ErrTooLarge          = errors.New("too large")
	ErrBudgetExceeded    = errors.New("budget exceeded")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrCancelled         = errors.New("cancelled")
	ErrTimeout           = errors.New("timeout")
	ErrUnknownID         = errors.New("unknown id")
	ErrPermissionDenied  = errors.New("permission denied")
)

// TaggedError wraps one of the sentinel errors above with a message and
// free-form context, the way a caller-facing programmatic error value
// should look: a stable tag plus human text.
type TaggedError struct {
	Tag     error
	Message string
	Context map[string]interface{}
}

func (e *TaggedError) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Tag, e.Message)
	}
	return fmt.Sprintf("%s: %s %v", e.Tag, e.Message, e.Context)
}

func (e *TaggedError) Unwrap() error { return e.Tag }

func NewError(tag error, format string, args ...interface{}) *TaggedError {
	return &TaggedError{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

func NewErrorCtx(tag error, ctx map[string]interface{}, format string, args ...interface{}) *TaggedError {
	return &TaggedError{Tag: tag, Message: fmt.Sprintf(format, args...), Context: ctx}
}

// Internal wraps a catch-all invariant violation with a stack context, per
// spec §7 ("Internal — catch-all invariant violation, must log a stack
// context"). Every other taxon above stays a plain sentinel.
func Internal(format string, args ...interface{}) error {
	return errors.WithStack(fmt.Errorf("internal: "+format, args...))
}

// Assert panics with an Internal-tagged message when cond is false. Mirrors
// the teacher's cmn.Assert/cmn.Assertf used to guard invariants that must
// never be reached in correct code (cluster/map.go's Snode.Validate, for
// instance, asserts on an unreachable DaemonType).
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(Internal(format, args...))
	}
}
