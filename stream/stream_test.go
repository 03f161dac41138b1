package stream

import (
	"context"
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

func testTable() *Table {
	return NewTable([]LODEntry{
		{Quality: asset.QualityHigh, MaxDistance: 50},
		{Quality: asset.QualityLow, MaxDistance: 100},
	}, 0.1)
}

// TestLODStaysWithinBand reproduces spec seed #5's first trace: distance
// 40,55,48,55,40 never leaves High, because downgrading out of High needs
// d > 50*1.1 == 55 strictly.
func TestLODStaysWithinBand(t *testing.T) {
	table := testTable()
	current := asset.QualityHigh
	for _, d := range []float64{40, 55, 48, 55, 40} {
		current = table.TargetQuality(current, d)
		if current != asset.QualityHigh {
			t.Fatalf("distance %v: quality = %v, want High", d, current)
		}
	}
}

// TestLODHysteresisDowngradeThenUpgrade follows spec seed #5's second trace
// literally through the stated formula: downgrading out of High requires
// d > 55 (60 qualifies), and upgrading back into High requires d < 45 (40
// qualifies) — so the band is re-entered, not stuck, once distance clears
// the upgrade threshold. The spec's own prose states "upgrade needs d < 45"
// for this scenario; we implement exactly that rule (see DESIGN.md for the
// discrepancy against the scenario's literal final "Low" in spec.md).
func TestLODHysteresisDowngradeThenUpgrade(t *testing.T) {
	table := testTable()
	current := asset.QualityHigh

	current = table.TargetQuality(current, 60)
	if current != asset.QualityLow {
		t.Fatalf("distance 60: quality = %v, want Low", current)
	}

	current = table.TargetQuality(current, 40)
	if current != asset.QualityHigh {
		t.Fatalf("distance 40: quality = %v, want High (d < 45 clears the upgrade band)", current)
	}
}

func TestBudgetManagerAdmitsWithinBudget(t *testing.T) {
	b := NewBudgetManager(1000, 500, 16.0)
	if !b.Admit(400, 4) {
		t.Fatal("expected first admit to succeed")
	}
	if b.Admit(700, 4) {
		t.Fatal("expected second admit to fail on mem budget (400+700 > 1000)")
	}
	b.ResetFrameBudget()
	if !b.Admit(400, 4) {
		t.Fatal("expected admit to succeed again after reset")
	}
}

func TestBudgetManagerRejectsOverBandwidth(t *testing.T) {
	b := NewBudgetManager(100000, 100, 1000)
	if !b.Admit(80, 1) {
		t.Fatal("expected admit within bandwidth budget to succeed")
	}
	if b.Admit(50, 1) {
		t.Fatal("expected admit exceeding bandwidth budget to fail")
	}
}

func newTestController(t *testing.T, root string) (*Controller, *registry.Registry, *loader.Dispatcher) {
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

	budget := NewBudgetManager(1<<30, 1<<30, 1000)
	ctl := New(reg, ld, testTable(), budget, Config{Workers: 2})
	ctl.Start()
	t.Cleanup(func() { ctl.Stop(time.Second) })

	return ctl, reg, ld
}

func writeFile(t *testing.T, root, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestControllerUpgradesWhenDistanceClosesIn(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tex.bin", []byte("texture-bytes"))
	ctl, reg, ld := newTestController(t, root)

	h, err := ld.Load(context.Background(), "tex.bin", asset.TypeBinary, 500, 0, asset.QualityLow)
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	defer h.Release()

	ctl.Track(h.ID(), PriorityNearby, asset.QualityLow)
	ctl.UpdateDistance(h.ID(), 40) // within High's band (< 45)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctl.Update(16 * time.Millisecond)
		if ctl.Stats().QualityUpgrades > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if ctl.Stats().QualityUpgrades == 0 {
		t.Fatal("expected at least one quality upgrade")
	}
	if st, _ := reg.State(h.ID()); st != asset.StateLoaded {
		t.Fatalf("expected id loaded after upgrade, got %v", st)
	}
}

func TestPredictiveStreamerEmitsBoundedHints(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "p1.bin", []byte("a"))
	writeFile(t, root, "p2.bin", []byte("b"))
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

	id1 := reg.Register("p1.bin", asset.TypeBinary)
	id2 := reg.Register("p2.bin", asset.TypeBinary)

	ps := NewPredictiveStreamer(reg, ld, PredictiveConfig{MaxPredictionsPerFrame: 1, ConfidenceThreshold: 0.1})
	t.Cleanup(ps.Stop)

	ps.RecordAccess(id1, Vector3{X: 0, Y: 0, Z: 0})
	ps.RecordAccess(id2, Vector3{X: 100, Y: 0, Z: 0})

	hints := ps.Update(context.Background(), Vector3{}, Vector3{}, 16*time.Millisecond)
	if len(hints) > 1 {
		t.Fatalf("expected at most 1 hint (MaxPredictionsPerFrame), got %d", len(hints))
	}

	// Same call again should not re-emit the same, already-hinted asset
	// thanks to the cuckoofilter dedup set.
	hints2 := ps.Update(context.Background(), Vector3{}, Vector3{}, 16*time.Millisecond)
	for _, h := range hints2 {
		if len(hints) > 0 && h.ID == hints[0].ID {
			t.Fatalf("expected recently-hinted asset %d to be deduped", h.ID)
		}
	}
}
