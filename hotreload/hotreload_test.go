package hotreload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cache"
	"github.com/forgekit/assetcore/loader"
	"github.com/forgekit/assetcore/process"
	"github.com/forgekit/assetcore/registry"
	"github.com/forgekit/assetcore/source"
)

// fakeWatcher lets tests inject FileChangeEvents directly without touching
// the filesystem watcher backend.
type fakeWatcher struct {
	events chan FileChangeEvent
	errors chan error
	added  []string
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		events: make(chan FileChangeEvent, 16),
		errors: make(chan error, 4),
	}
}

func (f *fakeWatcher) Events() <-chan FileChangeEvent { return f.events }
func (f *fakeWatcher) Errors() <-chan error           { return f.errors }
func (f *fakeWatcher) Add(path string) error          { f.added = append(f.added, path); return nil }
func (f *fakeWatcher) Close() error                   { f.closed = true; return nil }

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newTestEnv(t *testing.T, root string) (*registry.Registry, *loader.Dispatcher) {
	t.Helper()
	reg := registry.New()
	src := source.NewDispatcher(source.NewLocalFS(root))
	pipeline := process.NewPipeline()
	pipeline.Register(asset.TypeBinary, process.NewBinaryProcessor())
	mem := cache.NewMemory(1<<20, "lru")
	disk, err := cache.NewDisk(filepath.Join(root, ".cache"))
	if err != nil {
		t.Fatalf("new disk cache: %v", err)
	}
	tl := cache.NewTwoLevel(mem, disk)
	ld := loader.New(reg, src, pipeline, tl, loader.Config{Workers: 2})
	ld.Start()
	t.Cleanup(func() { ld.Stop(time.Second) })
	return reg, ld
}

func TestControllerReloadsOnFileEvent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mesh.bin", []byte("v1"))
	reg, ld := newTestEnv(t, root)

	if _, err := ld.Load(context.Background(), "mesh.bin", asset.TypeBinary, 500, 0, asset.QualityHigh); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	w := newFakeWatcher()
	c := New(reg, ld, w, Config{DebouncePeriod: 10 * time.Millisecond, BatchPeriod: 10 * time.Millisecond})
	c.Start()
	t.Cleanup(func() { c.Stop() })

	writeFile(t, root, "mesh.bin", []byte("v2, longer now"))
	w.events <- FileChangeEvent{Path: "mesh.bin", Kind: Modified}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().SuccessfulReloads > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.Stats().SuccessfulReloads == 0 {
		t.Fatalf("expected a successful reload, stats = %+v", c.Stats())
	}
	if c.Stats().ReloadEvents == 0 {
		t.Fatal("expected reload_events to be counted")
	}
}

func TestControllerIgnoresFilteredExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes.txt", []byte("hello"))
	reg, ld := newTestEnv(t, root)

	w := newFakeWatcher()
	c := New(reg, ld, w, Config{
		DebouncePeriod:    5 * time.Millisecond,
		BatchPeriod:       5 * time.Millisecond,
		WatchedExtensions: []string{".bin"},
	})
	c.Start()
	t.Cleanup(func() { c.Stop() })

	w.events <- FileChangeEvent{Path: "notes.txt", Kind: Modified}
	time.Sleep(100 * time.Millisecond)

	if c.Stats().IgnoredEvents == 0 {
		t.Fatal("expected the .txt event to be ignored")
	}
	if c.Stats().ReloadEvents != 0 {
		t.Fatal("ignored event must not count as a reload event")
	}
}

func TestControllerCascadesToDependents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "base.bin", []byte("base-v1"))
	writeFile(t, root, "derived.bin", []byte("derived-v1"))
	reg, ld := newTestEnv(t, root)

	baseHandle, err := ld.Load(context.Background(), "base.bin", asset.TypeBinary, 500, 0, asset.QualityHigh)
	if err != nil {
		t.Fatalf("load base: %v", err)
	}
	derivedHandle, err := ld.Load(context.Background(), "derived.bin", asset.TypeBinary, 500, 0, asset.QualityHigh)
	if err != nil {
		t.Fatalf("load derived: %v", err)
	}
	if err := reg.AddDependency(derivedHandle.ID(), baseHandle.ID()); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	w := newFakeWatcher()
	c := New(reg, ld, w, Config{DebouncePeriod: 10 * time.Millisecond, BatchPeriod: 10 * time.Millisecond})
	c.Start()
	t.Cleanup(func() { c.Stop() })

	writeFile(t, root, "base.bin", []byte("base-v2, now different length"))
	w.events <- FileChangeEvent{Path: "base.bin", Kind: Modified}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().SuccessfulReloads >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.Stats().SuccessfulReloads < 2 {
		t.Fatalf("expected both base and its dependent to reload, stats = %+v", c.Stats())
	}
}

func TestBackupManagerReconstructsFromParityAfterCorruption(t *testing.T) {
	dir := t.TempDir()
	b := NewBackupManager(dir, true, 4, 2)

	original := []byte("this is the asset payload that must survive a torn backup write intact")
	if err := b.Save("asset-1", original); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Simulate losing the primary backup file entirely.
	if err := os.Remove(filepath.Join(dir, "asset-1.bak")); err != nil {
		t.Fatalf("remove .bak: %v", err)
	}
	// Also destroy one parity shard; reconstruction should still succeed as
	// long as at least dataShards (4) of the 6 total shards remain.
	if err := os.Remove(filepath.Join(dir, "asset-1.shard5")); err != nil {
		t.Fatalf("remove shard: %v", err)
	}

	got, err := b.Load("asset-1", len(original))
	if err != nil {
		t.Fatalf("load after corruption: %v", err)
	}
	if string(got) != string(original) {
		t.Fatalf("reconstructed payload mismatch: got %q, want %q", got, original)
	}
}

func TestBackupManagerFailsWhenTooManyShardsLost(t *testing.T) {
	dir := t.TempDir()
	b := NewBackupManager(dir, true, 4, 2)

	original := []byte("short payload")
	if err := b.Save("asset-2", original); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "asset-2.bak")); err != nil {
		t.Fatalf("remove .bak: %v", err)
	}
	// Destroy 3 of the 6 shards, leaving only 3 — below the 4 required.
	for _, i := range []int{0, 1, 2} {
		os.Remove(filepath.Join(dir, fmt.Sprintf("asset-2.shard%d", i)))
	}

	if _, err := b.Load("asset-2", len(original)); err == nil {
		t.Fatal("expected reconstruction to fail with too few surviving shards")
	}
}
