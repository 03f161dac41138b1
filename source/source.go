// Package source abstracts "bytes from a path" behind a single pluggable
// interface with filesystem, memory-mapped, and network backends (spec
// §4.C). Multiple sources register with integer priorities; dispatch picks
// the highest-priority source that claims Exists(path).
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package source

import (
	"io"
	"time"

	"github.com/forgekit/assetcore/cmn"
)

// Mapping is a read-only shared memory mapping returned by Source.Map; the
// caller must call Close to release it.
type Mapping interface {
	io.Closer
	Bytes() []byte
}

// Source is the pluggable file-source contract (spec §4.C). OpenStream and
// Map are optional: a source that can't support them returns
// cmn.ErrPermissionDenied-free io.ErrUnsupported… in practice we model
// "optional" as returning cmn.NewError(cmn.ErrIO, ...) with a clear message,
// since stdlib's ErrUnsupported isn't part of this error taxonomy.
type Source interface {
	Name() string
	Priority() int
	Exists(path string) bool
	Size(path string) (int64, error)
	Mtime(path string) (time.Time, error)
	ReadAll(path string) ([]byte, error)
	OpenStream(path string) (io.ReadCloser, error)
	Map(path string) (Mapping, error)
}

// Dispatcher holds a priority-ordered set of Sources and serves ReadAll/etc
// by picking the highest-priority Source that claims Exists(path).
type Dispatcher struct {
	sources []Source // kept sorted descending by Priority()
}

func NewDispatcher(sources ...Source) *Dispatcher {
	d := &Dispatcher{sources: append([]Source(nil), sources...)}
	d.resort()
	return d
}

func (d *Dispatcher) Register(s Source) {
	d.sources = append(d.sources, s)
	d.resort()
}

func (d *Dispatcher) resort() {
	for i := 1; i < len(d.sources); i++ {
		for j := i; j > 0 && d.sources[j].Priority() > d.sources[j-1].Priority(); j-- {
			d.sources[j], d.sources[j-1] = d.sources[j-1], d.sources[j]
		}
	}
}

func (d *Dispatcher) pick(path string) (Source, error) {
	for _, s := range d.sources {
		if s.Exists(path) {
			return s, nil
		}
	}
	return nil, cmn.NewError(cmn.ErrNotFound, "source: no registered source claims %q", path)
}

func (d *Dispatcher) Exists(path string) bool {
	_, err := d.pick(path)
	return err == nil
}

func (d *Dispatcher) Size(path string) (int64, error) {
	s, err := d.pick(path)
	if err != nil {
		return 0, err
	}
	return s.Size(path)
}

func (d *Dispatcher) Mtime(path string) (time.Time, error) {
	s, err := d.pick(path)
	if err != nil {
		return time.Time{}, err
	}
	return s.Mtime(path)
}

func (d *Dispatcher) ReadAll(path string) ([]byte, error) {
	s, err := d.pick(path)
	if err != nil {
		return nil, err
	}
	return s.ReadAll(path)
}

func (d *Dispatcher) OpenStream(path string) (io.ReadCloser, error) {
	s, err := d.pick(path)
	if err != nil {
		return nil, err
	}
	return s.OpenStream(path)
}

func (d *Dispatcher) Map(path string) (Mapping, error) {
	s, err := d.pick(path)
	if err != nil {
		return nil, err
	}
	return s.Map(path)
}
