package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgekit/assetcore/asset"
)

func newMemStore(t *testing.T) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id asset.ID, path string, size int64, mod time.Time) asset.Record {
	return asset.Record{
		Metadata: asset.Metadata{
			ID:           id,
			Type:         asset.TypeBinary,
			Path:         path,
			Name:         filepath.Base(path),
			SizeBytes:    size,
			LastModified: mod,
		},
		State: asset.StateLoaded,
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	r := testRecord(1, "textures/hero.png", 1024, time.Now())

	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok, err := s.Get(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Path != r.Path {
		t.Fatalf("path = %q, want %q", got.Path, r.Path)
	}

	byPath, ok, err := s.GetByPath(ctx, "textures/hero.png")
	if err != nil || !ok || byPath.ID != r.ID {
		t.Fatalf("get by path failed: ok=%v err=%v rec=%+v", ok, err, byPath)
	}

	r.SizeBytes = 2048
	if err := s.Update(ctx, r); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ = s.Get(ctx, 1)
	if got.SizeBytes != 2048 {
		t.Fatalf("size after update = %d, want 2048", got.SizeBytes)
	}

	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, 1); ok {
		t.Fatal("expected record gone after delete")
	}
}

func TestMemoryStoreBatch(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	now := time.Now()
	rs := []asset.Record{
		testRecord(1, "a.bin", 100, now),
		testRecord(2, "b.bin", 200, now),
		testRecord(3, "c.bin", 300, now),
	}
	if err := s.CreateBatch(ctx, rs); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := s.DeleteBatch(ctx, []asset.ID{1, 2}); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	if _, ok, _ := s.Get(ctx, 1); ok {
		t.Fatal("expected id 1 deleted")
	}
	if _, ok, _ := s.Get(ctx, 3); !ok {
		t.Fatal("expected id 3 to survive the batch delete")
	}
}

func TestMemoryStoreQueryFiltersAndPagination(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		r := testRecord(asset.ID(i), filepath.Join("textures", string(rune('a'+i))+".png"), int64(i*100), base.Add(time.Duration(i)*time.Hour))
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	p, err := s.Query(ctx, Filter{MinSize: 250, Sort: SortBySize})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if p.Total != 3 { // sizes 300,400,500 qualify
		t.Fatalf("total = %d, want 3", p.Total)
	}
	if len(p.Records) != 3 || p.Records[0].SizeBytes != 300 {
		t.Fatalf("unexpected page: %+v", p.Records)
	}

	p, err = s.Query(ctx, Filter{Sort: SortBySize, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("paginated query: %v", err)
	}
	if p.Total != 5 || len(p.Records) != 2 {
		t.Fatalf("paginated page = %+v", p)
	}
	if p.Records[0].SizeBytes != 200 {
		t.Fatalf("first record after offset 1 = %d, want 200", p.Records[0].SizeBytes)
	}
}

func TestMemoryStoreTags(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	r := testRecord(1, "hero.png", 10, time.Now())
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.AddTag(ctx, 1, "hero"); err != nil {
		t.Fatalf("add tag: %v", err)
	}
	if err := s.AddTag(ctx, 1, "ui"); err != nil {
		t.Fatalf("add tag: %v", err)
	}

	found, err := s.FindByTag(ctx, "hero")
	if err != nil || len(found) != 1 {
		t.Fatalf("find by tag: %v / %+v", err, found)
	}

	if err := s.RemoveTag(ctx, 1, "hero"); err != nil {
		t.Fatalf("remove tag: %v", err)
	}
	found, _ = s.FindByTag(ctx, "hero")
	if len(found) != 0 {
		t.Fatalf("expected tag removed, found %+v", found)
	}
}

func TestMemoryStoreDependencies(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	base := testRecord(1, "base.bin", 10, time.Now())
	derived := testRecord(2, "derived.bin", 10, time.Now())
	if err := s.Create(ctx, base); err != nil {
		t.Fatalf("create base: %v", err)
	}
	if err := s.Create(ctx, derived); err != nil {
		t.Fatalf("create derived: %v", err)
	}

	if err := s.AddDependency(ctx, 2, 1); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	deps, err := s.Dependencies(ctx, 2)
	if err != nil || len(deps) != 1 || deps[0] != 1 {
		t.Fatalf("dependencies = %+v, err = %v", deps, err)
	}
	dependents, err := s.Dependents(ctx, 1)
	if err != nil || len(dependents) != 1 || dependents[0] != 2 {
		t.Fatalf("dependents = %+v, err = %v", dependents, err)
	}

	p, err := s.Query(ctx, Filter{DependsOn: 1, HasDependsOn: true})
	if err != nil || p.Total != 1 {
		t.Fatalf("query by depends_on: total=%d err=%v", p.Total, err)
	}

	if err := s.RemoveDependency(ctx, 2, 1); err != nil {
		t.Fatalf("remove dependency: %v", err)
	}
	deps, _ = s.Dependencies(ctx, 2)
	if len(deps) != 0 {
		t.Fatalf("expected dependency removed, got %+v", deps)
	}
}

func TestMemoryStoreBackupRestore(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, testRecord(1, "a.bin", 10, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.db")
	if err := s.Backup(ctx, path); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	fresh := newMemStore(t)
	if err := fresh.Restore(ctx, path); err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, ok, err := fresh.Get(ctx, 1)
	if err != nil || !ok || got.Path != "a.bin" {
		t.Fatalf("restored record mismatch: ok=%v err=%v rec=%+v", ok, err, got)
	}
}

func TestMemoryStoreIntegrityCheckAndMaintenance(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, testRecord(1, "a.bin", 10, time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.IntegrityCheck(ctx); err != nil {
		t.Fatalf("integrity check: %v", err)
	}
	if err := s.Optimize(ctx); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if err := s.Vacuum(ctx); err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	v, err := s.SchemaVersion(ctx)
	if err != nil || v != 1 {
		t.Fatalf("schema version = %d, err = %v", v, err)
	}
}

func TestAsyncQueryAndCreate(t *testing.T) {
	s := newMemStore(t)
	a := NewAsync(s)
	ctx := context.Background()

	if _, err := a.CreateAsync(ctx, testRecord(1, "a.bin", 10, time.Now())).Wait(ctx); err != nil {
		t.Fatalf("create async: %v", err)
	}
	p, err := a.QueryAsync(ctx, Filter{}).Wait(ctx)
	if err != nil || p.Total != 1 {
		t.Fatalf("query async: total=%d err=%v", p.Total, err)
	}
}

// TestSQLStoreSmoke exercises SQLStore's migration + CRUD path against a
// real Postgres instance. It's gated behind ASSETCORE_TEST_POSTGRES_DSN
// since nothing in this module stands up a Postgres server for CI; set
// that env var to a reachable postgres:// DSN to run it locally.
func TestSQLStoreSmoke(t *testing.T) {
	dsn := os.Getenv("ASSETCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set ASSETCORE_TEST_POSTGRES_DSN to run the SQLStore integration test")
	}
	ctx := context.Background()
	s, err := NewSQLStore(ctx, dsn)
	if err != nil {
		t.Fatalf("new sql store: %v", err)
	}
	defer s.Close()

	r := testRecord(1, "sql-smoke.bin", 10, time.Now())
	if err := s.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok, err := s.Get(ctx, 1)
	if err != nil || !ok || got.Path != r.Path {
		t.Fatalf("get: ok=%v err=%v rec=%+v", ok, err, got)
	}
	if err := s.Delete(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
