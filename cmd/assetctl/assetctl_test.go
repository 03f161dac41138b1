package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTestAsset(t *testing.T, root, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// TestCLILoadGc exercises the wired-together app end to end: load an asset
// through the pipeline, then run gc, checking that both commands succeed.
// Runs against the in-memory store (no --persistence flag, so the default
// config's "memory://" DSN is used).
func TestCLILoadGc(t *testing.T) {
	root := t.TempDir()
	writeTestAsset(t, root, "hero.bin", []byte("binary asset payload"))

	app := buildApp()
	args := []string{"assetctl", "--root", root, "load", "hero.bin", "--type", "binary"}
	if err := app.Run(args); err != nil {
		t.Fatalf("load command: %v", err)
	}

	if err := app.Run([]string{"assetctl", "--root", root, "gc"}); err != nil {
		t.Fatalf("gc command: %v", err)
	}
}

// TestOpenStoreSchemeSelection confirms the DSN-prefix dispatch assetctl
// relies on to pick MemoryStore vs SQLStore (SPEC_FULL.md §6).
func TestOpenStoreSchemeSelection(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, "")
	if err != nil {
		t.Fatalf("empty dsn: %v", err)
	}
	defer s.Close()
	if _, ok := s.(interface{ Close() error }); !ok {
		t.Fatal("expected a closable store")
	}

	if _, err := openStore(ctx, "redis://nope"); err == nil {
		t.Fatal("expected an error for an unrecognized DSN scheme")
	}
}
