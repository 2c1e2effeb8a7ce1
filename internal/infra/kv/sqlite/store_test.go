package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.Set(ctx, "customers", json.RawMessage(`[{"id":"c_1"}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "customers", json.RawMessage(`[{"id":"c_1"},{"id":"c_2"}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok, err := reloaded.Get(ctx, "customers")
	if err != nil || !ok {
		t.Fatalf("get after reload: ok=%v err=%v", ok, err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(got, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreKeysRemoveClear(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, k := range []string{"faqs", "aboutSections", "contactInfo"} {
		if err := store.Set(ctx, k, json.RawMessage(`{}`)); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != "aboutSections" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if err := store.Remove(ctx, "faqs"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "faqs"); ok {
		t.Fatalf("expected faqs removed")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if keys, _ := store.Keys(ctx); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestSQLiteStoreRejectsInvalidJSON(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Set(context.Background(), "k", json.RawMessage(`nope`)); err == nil {
		t.Fatalf("expected encode error")
	}
}
