package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgekit/assetcore/asset"
	"github.com/forgekit/assetcore/cache"
	"github.com/forgekit/assetcore/cmn"
	"github.com/forgekit/assetcore/loader"
	"github.com/forgekit/assetcore/process"
	"github.com/forgekit/assetcore/registry"
	"github.com/forgekit/assetcore/source"
)

func newTestManager(t *testing.T, root string) *Manager {
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
	disp := loader.New(reg, src, pipeline, tl, loader.Config{Workers: 2})

	m := New(cmn.DefaultConfig(), reg, disp, pipeline, tl, src)
	m.Start()
	t.Cleanup(func() { m.Stop(time.Second) })
	return m
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestManagerLoadUnloadGc(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.bin", []byte("payload"))
	m := newTestManager(t, root)

	h, err := m.Load(context.Background(), "a.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !m.IsLoaded(h.ID()) {
		t.Fatalf("expected id %d loaded", h.ID())
	}
	if m.AssetCount() != 1 {
		t.Fatalf("asset_count = %d, want 1", m.AssetCount())
	}

	h.Release()
	if n := m.Gc(); n != 1 {
		t.Fatalf("gc() = %d, want 1", n)
	}
	if m.IsLoaded(h.ID()) {
		t.Fatal("expected id unloaded after gc")
	}
}

func TestManagerReload(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "r.bin", []byte("v1"))
	m := newTestManager(t, root)

	h1, err := m.Load(context.Background(), "r.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(h1.Asset().CurrentPayload().Bytes) != "v1" {
		t.Fatalf("unexpected v1 payload: %s", h1.Asset().CurrentPayload().Bytes)
	}

	writeFile(t, root, "r.bin", []byte("v2"))
	h2, err := m.Reload(context.Background(), h1.ID(), 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if string(h2.Asset().CurrentPayload().Bytes) != "v2" {
		t.Fatalf("unexpected v2 payload: %s", h2.Asset().CurrentPayload().Bytes)
	}
	if h2.Asset().Version <= h1.Asset().Version {
		t.Fatalf("version did not bump: %d -> %d", h1.Asset().Version, h2.Asset().Version)
	}
}

func TestManagerStatsAndMetrics(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "s.bin", []byte("abc"))
	m := newTestManager(t, root)
	metrics := m.EnableMetrics()
	if metrics == nil {
		t.Fatal("expected non-nil metrics")
	}

	h, err := m.Load(context.Background(), "s.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer h.Release()

	s := m.Stats()
	if s.Loads != 1 {
		t.Fatalf("loads = %d, want 1", s.Loads)
	}
	if s.BytesLoaded != 3 {
		t.Fatalf("bytes_loaded = %d, want 3", s.BytesLoaded)
	}
}

func TestManagerFactory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "f.bin", []byte("raw"))
	m := newTestManager(t, root)

	type marker struct{ tag string }
	m.RegisterFactory(asset.TypeBinary, func() *asset.Asset {
		return &asset.Asset{Payloads: map[asset.Quality]*asset.Payload{
			asset.QualityMedium: {Decoded: marker{tag: "default"}},
		}}
	})

	h, err := m.Load(context.Background(), "f.bin", asset.TypeBinary, 500, 0, asset.QualityMedium)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer h.Release()

	dec, ok := h.Asset().CurrentPayload().Decoded.(marker)
	if !ok || dec.tag != "default" {
		t.Fatalf("expected factory-supplied default decoded value, got %v", h.Asset().CurrentPayload().Decoded)
	}
}
