// Package hotreload implements the Hot-Reload Controller (spec §4.J): a
// pluggable file watcher feeding a debounce+batch pipeline that cascades
// reloads across dependents in topological order, reinstalling the prior
// resident asset on reload failure, with an optional parity-protected
// on-disk backup of its bytes.
/*
 * Copyright (c) 2024, ForgeKit. All rights reserved.
 */
package hotreload

import (
	"github.com/fsnotify/fsnotify"

	"github.com/golang/glog"
)

// Kind is the FileChangeEvent taxonomy spec §4.J names.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "Created"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Moved:
		return "Moved"
	default:
		return "Unknown"
	}
}

// FileChangeEvent is the platform-independent event every Watcher
// implementation produces (spec §4.J).
type FileChangeEvent struct {
	Path      string
	Kind      Kind
	OldPath   string // set for Moved, the path the file was renamed from
}

// Watcher is the pluggable file-watching interface; the core pipeline
// doesn't depend on which platform implementation backs it.
type Watcher interface {
	Events() <-chan FileChangeEvent
	Errors() <-chan error
	Add(path string) error
	Close() error
}

// FsnotifyWatcher backs Watcher with github.com/fsnotify/fsnotify, the one
// real cross-platform Go file watcher in the retrieved pack — already an
// indirect dependency of the teacher's own toolchain, promoted to direct
// here.
type FsnotifyWatcher struct {
	w      *fsnotify.Watcher
	events chan FileChangeEvent
	errors chan error
	done   chan struct{}
}

func NewFsnotifyWatcher() (*FsnotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FsnotifyWatcher{
		w:      w,
		events: make(chan FileChangeEvent, 256),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}
	go fw.run()
	return fw, nil
}

func (fw *FsnotifyWatcher) run() {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.translate(ev)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
				glog.Warningf("hotreload: dropping watcher error, channel full: %v", err)
			}
		case <-fw.done:
			return
		}
	}
}

func (fw *FsnotifyWatcher) translate(ev fsnotify.Event) {
	var k Kind
	switch {
	case ev.Op&fsnotify.Create != 0:
		k = Created
	case ev.Op&fsnotify.Write != 0:
		k = Modified
	case ev.Op&fsnotify.Remove != 0:
		k = Deleted
	case ev.Op&fsnotify.Rename != 0:
		k = Moved
	default:
		return
	}
	out := FileChangeEvent{Path: ev.Name, Kind: k}
	if k == Moved {
		out.OldPath = ev.Name
	}
	select {
	case fw.events <- out:
	default:
		glog.Warningf("hotreload: dropping file event, channel full: %s", ev.Name)
	}
}

func (fw *FsnotifyWatcher) Events() <-chan FileChangeEvent { return fw.events }
func (fw *FsnotifyWatcher) Errors() <-chan error            { return fw.errors }
func (fw *FsnotifyWatcher) Add(path string) error           { return fw.w.Add(path) }

func (fw *FsnotifyWatcher) Close() error {
	close(fw.done)
	return fw.w.Close()
}
