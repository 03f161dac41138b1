package cache

import (
	"os"
	"testing"
	"time"

	"github.com/forgekit/assetcore/asset"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory(1<<20, "lru")
	data := []byte("hello asset")
	if err := m.Put(1, data, asset.TypeConfig); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := m.Get(1)
	if !ok {
		t.Fatal("get: miss after put")
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestMemoryTooLarge(t *testing.T) {
	m := NewMemory(shardCount*10, "lru") // 10 bytes per shard
	big := make([]byte, 1024)
	if err := m.Put(1, big, asset.TypeBinary); err == nil {
		t.Fatal("expected TooLarge error")
	}
}

func TestMemoryZeroLengthPayload(t *testing.T) {
	m := NewMemory(1<<20, "lru")
	if err := m.Put(1, []byte{}, asset.TypeConfig); err != nil {
		t.Fatalf("put zero-length: %v", err)
	}
	got, ok := m.Get(1)
	if !ok || len(got) != 0 {
		t.Fatalf("zero-length payload not retrievable: %v %v", got, ok)
	}
	if m.SizeUsed() != 0 {
		t.Fatalf("size_used = %d, want 0", m.SizeUsed())
	}
}

func TestDiskRoundTripAndChecksum(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	if err != nil {
		t.Fatalf("new disk: %v", err)
	}
	data := []byte("persisted bytes")
	if err := d.Put(7, data, asset.TypeTexture); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok := d.Get(7)
	if !ok || string(got) != string(data) {
		t.Fatalf("disk round-trip failed: %v %v", got, ok)
	}

	// corrupt the .bin to simulate on-disk corruption
	if err := os.WriteFile(d.binPath(7), []byte("corrupted!!"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Get(7); ok {
		t.Fatal("expected miss after corruption, got hit")
	}
	if _, err := os.Stat(d.binPath(7)); !os.IsNotExist(err) {
		t.Fatal("corrupt entry should have been removed")
	}
}

func TestTwoLevelPromotion(t *testing.T) {
	dir := t.TempDir()
	disk, err := NewDisk(dir)
	if err != nil {
		t.Fatal(err)
	}
	mem := NewMemory(1<<20, "lru")
	tl := NewTwoLevel(mem, disk)

	data := []byte("disk-only content")
	if err := disk.Put(3, data, asset.TypeMesh); err != nil {
		t.Fatal(err)
	}
	if _, ok := mem.Get(3); ok {
		t.Fatal("memory should not have entry yet")
	}
	got, ok := tl.Get(3, asset.TypeMesh)
	if !ok || string(got) != string(data) {
		t.Fatalf("two-level disk hit failed")
	}
	if _, ok := mem.Get(3); !ok {
		t.Fatal("disk hit should have promoted into memory")
	}
	stats := tl.Stats()
	if stats.DiskHits != 1 {
		t.Fatalf("disk hits = %d, want 1", stats.DiskHits)
	}
}

func TestDiskCleanup(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDisk(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Put(1, []byte("old"), asset.TypeConfig); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if n := d.Cleanup(time.Millisecond); n != 1 {
		t.Fatalf("cleanup removed %d, want 1", n)
	}
	if _, ok := d.Get(1); ok {
		t.Fatal("expected entry removed by cleanup")
	}
}
