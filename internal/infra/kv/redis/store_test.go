package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"detailcrm/internal/bus"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	addr := os.Getenv("DETAILCRM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DETAILCRM_TEST_REDIS_ADDR not set")
	}
	return Options{Addr: addr, Namespace: "detailcrm-test-" + uuid.NewString()}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(ctx, testOptions(t))
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Clear(ctx)
		_ = store.Close()
	})

	if _, ok, err := store.Get(ctx, "customers"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "customers", json.RawMessage(`[{"id":"c_1"}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "faqs", json.RawMessage(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, "customers")
	if err != nil || !ok || string(got) != `[{"id":"c_1"}]` {
		t.Fatalf("get: %s ok=%v err=%v", got, ok, err)
	}
	keys, err := store.Keys(ctx)
	if err != nil || len(keys) != 2 || keys[0] != "customers" {
		t.Fatalf("keys: %v %v", keys, err)
	}
	if err := store.Remove(ctx, "faqs"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Set(ctx, "bad", json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected invalid json error")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if keys, _ := store.Keys(ctx); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestRedisBridgeDeliversRemoteEvents(t *testing.T) {
	opts := testOptions(t)
	client := NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	bridgeA := NewBridge(client, opts.Namespace, nil)
	bridgeB := NewBridge(client, opts.Namespace, nil)
	a, err := bus.New(bus.WithBridge(bridgeA))
	if err != nil {
		t.Fatalf("bus a: %v", err)
	}
	b, err := bus.New(bus.WithBridge(bridgeB))
	if err != nil {
		t.Fatalf("bus b: %v", err)
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	got := make(chan bus.Event, 1)
	b.Subscribe(func(ev bus.Event) {
		if ev.Remote {
			got <- ev
		}
	}, bus.KindStorage)

	a.StorageChanged(context.Background(), "vehicleTypes")
	select {
	case ev := <-got:
		if ev.Key != "vehicleTypes" || ev.Origin != a.Origin() {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for bridged event")
	}
}
