package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cache"
	"github.com/forgekit/assetcore/process"
	"github.com/forgekit/assetcore/registry"
	"github.com/forgekit/assetcore/source"
)

func newTestDispatcher(t *testing.T, root string) (*Dispatcher, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	src := source.NewDispatcher(source.NewLocalFS(root))
	pipeline := process.NewPipeline()
	pipeline.Register(asset.TypeBinary, process.NewBinaryProcessor())
	pipeline.Register(asset.TypeConfig, process.NewConfigProcessor())

	mem := cache.NewMemory(1<<20, "lru")
	disk, err := cache.NewDisk(filepath.Join(root, ".cache"))
	if err != nil {
		t.Fatalf("new disk cache: %v", err)
	}
	tl := cache.NewTwoLevel(mem, disk)

	d := New(reg, src, pipeline, tl, Config{Workers: 2})
	d.Start()
	t.Cleanup(func() { d.Stop(time.Second) })
	return d, reg
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadBlocking(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.bin", []byte("hello world"))
	d, _ := newTestDispatcher(t, root)

	h, err := d.Load(context.Background(), "a.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer h.Release()

	if h.Asset().State != asset.StateLoaded {
		t.Fatalf("state = %s, want Loaded", h.Asset().State)
	}
	payload := h.Asset().CurrentPayload()
	if payload == nil || string(payload.Bytes) != "hello world" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestLoadCoalescesDuplicateRequests(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.bin", []byte("shared content"))

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
	d := New(reg, src, pipeline, tl, Config{Workers: 2})
	t.Cleanup(func() { d.Stop(time.Second) })

	// Submit every duplicate before starting any worker so all n requests
	// are guaranteed to land in the queue together, making coalescing
	// deterministic rather than a race against how fast the first load
	// finishes.
	const n = 5
	promises := make([]*Promise, n)
	for i := 0; i < n; i++ {
		promises[i] = d.Submit(context.Background(), "b.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	}
	d.Start()

	for _, p := range promises {
		h, err := p.Wait(context.Background())
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		h.Release()
	}
	if d.Stats().Coalesced == 0 {
		t.Fatalf("expected at least one coalesced request among %d duplicates", n)
	}
}

func TestLoadBatchPreservesOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.bin", []byte("1"))
	writeFile(t, root, "two.bin", []byte("2"))
	writeFile(t, root, "three.bin", []byte("3"))
	d, _ := newTestDispatcher(t, root)

	items := []BatchItem{
		{Path: "one.bin", Type: asset.TypeBinary, Priority: 100, Quality: asset.QualityMedium},
		{Path: "two.bin", Type: asset.TypeBinary, Priority: 100, Quality: asset.QualityMedium},
		{Path: "three.bin", Type: asset.TypeBinary, Priority: 100, Quality: asset.QualityMedium},
	}
	promises := d.LoadBatch(context.Background(), items)
	want := []string{"1", "2", "3"}
	for i, p := range promises {
		h, err := p.Wait(context.Background())
		if err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		got := string(h.Asset().CurrentPayload().Bytes)
		if got != want[i] {
			t.Fatalf("item %d: got %q, want %q", i, got, want[i])
		}
		h.Release()
	}
}

func TestLoadDependencyOrdering(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "base.bin", []byte("base"))
	writeFile(t, root, "dependent.bin", []byte("dependent"))
	d, reg := newTestDispatcher(t, root)

	baseID := reg.Register("base.bin", asset.TypeBinary)
	depID := reg.Register("dependent.bin", asset.TypeBinary)
	if err := reg.AddDependency(depID, baseID); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	h, err := d.Load(context.Background(), "dependent.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("load dependent: %v", err)
	}
	defer h.Release()

	if st, _ := reg.State(baseID); st != asset.StateLoaded {
		t.Fatalf("base dependency state = %s, want Loaded", st)
	}
}

func TestSubmitRejectsAfterStop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "c.bin", []byte("x"))
	reg := registry.New()
	src := source.NewDispatcher(source.NewLocalFS(root))
	pipeline := process.NewPipeline()
	pipeline.Register(asset.TypeBinary, process.NewBinaryProcessor())
	mem := cache.NewMemory(1<<20, "lru")
	disk, _ := cache.NewDisk(filepath.Join(root, ".cache"))
	tl := cache.NewTwoLevel(mem, disk)

	d := New(reg, src, pipeline, tl, Config{Workers: 1})
	d.Start()
	if err := d.Stop(time.Second); err != nil {
		t.Fatalf("stop: %v", err)
	}

	p := d.Submit(context.Background(), "c.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	_, err := p.Wait(context.Background())
	if err == nil {
		t.Fatal("expected submission after stop to fail")
	}
}
