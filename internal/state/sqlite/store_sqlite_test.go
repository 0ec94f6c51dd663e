package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSetGetDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "cycle:abc", "v1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "cycle:abc", "v2"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	got, ok, err := store.Get(ctx, "cycle:abc")
	if err != nil || !ok || got != "v2" {
		t.Fatalf("expected v2, got %q ok=%v err=%v", got, ok, err)
	}
	if err := store.Delete(ctx, "cycle:abc"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "cycle:abc"); ok {
		t.Fatalf("expected key deleted")
	}
}

func TestStoreListByPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_ = store.Set(ctx, "cycle:a", "1")
	_ = store.Set(ctx, "cycle:b", "2")
	_ = store.Set(ctx, "ops:audit:1", "x")

	rows, err := store.List(ctx, "cycle:")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 cycle rows, got %d", len(rows))
	}
	if rows["cycle:a"] != "1" || rows["cycle:b"] != "2" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}
