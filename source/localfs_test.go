package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFSReadAll(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLocalFS(dir)
	if !l.Exists("a.txt") {
		t.Fatal("expected a.txt to exist")
	}
	data, err := l.ReadAll("a.txt")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
	if _, err := l.ReadAll("missing.txt"); err == nil {
		t.Fatal("expected NotFound error")
	}
}

func TestDispatcherPriorityOrder(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	os.WriteFile(filepath.Join(dirA, "x.txt"), []byte("from-a"), 0o644)
	os.WriteFile(filepath.Join(dirB, "x.txt"), []byte("from-b"), 0o644)

	low := NewLocalFS(dirA) // priority 0
	high := &priorityOverride{LocalFS: NewLocalFS(dirB), p: 99}

	d := NewDispatcher(low, high)
	data, err := d.ReadAll("x.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from-b" {
		t.Fatalf("expected higher-priority source to win, got %q", data)
	}
}

type priorityOverride struct {
	*LocalFS
	p int
}

func (p *priorityOverride) Priority() int { return p.p }
