package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPublishDeliversSynchronouslyToMatchingKinds(t *testing.T) {
	b, err := New()
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	var alerts, all int
	unsub := b.Subscribe(func(Event) { alerts++ }, KindAlert)
	b.Subscribe(func(Event) { all++ })

	b.Publish(context.Background(), KindAlert, map[string]string{"type": "customer_added"})
	b.Publish(context.Background(), KindFAQs, nil)
	if alerts != 1 || all != 2 {
		t.Fatalf("expected alerts=1 all=2, got %d %d", alerts, all)
	}
	unsub()
	unsub()
	b.Publish(context.Background(), KindAlert, nil)
	if alerts != 1 {
		t.Fatalf("unsubscribed handler still called")
	}
}

func TestHubCarriesEventsAcrossBusesWithoutEcho(t *testing.T) {
	hub := NewHub()
	a, _ := New(WithBridge(hub), WithOrigin("tab-a"))
	b, _ := New(WithBridge(hub), WithOrigin("tab-b"))
	defer a.Close()
	defer b.Close()

	var localA, remoteA, remoteB int
	a.Subscribe(func(ev Event) {
		if ev.Remote {
			remoteA++
		} else {
			localA++
		}
	})
	var gotKey string
	b.Subscribe(func(ev Event) {
		if ev.Remote {
			remoteB++
			gotKey = ev.Key
		}
	})

	a.StorageChanged(context.Background(), "faqs")
	if localA != 1 || remoteA != 0 {
		t.Fatalf("sender should see one local event and no echo, got local=%d remote=%d", localA, remoteA)
	}
	if remoteB != 1 || gotKey != "faqs" {
		t.Fatalf("peer should see remote storage event for faqs, got %d %q", remoteB, gotKey)
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	b, _ := New()
	var reached bool
	b.Subscribe(func(Event) { panic("boom") })
	b.Subscribe(func(Event) { reached = true })
	b.Publish(context.Background(), KindContact, nil)
	if !reached {
		t.Fatalf("second handler not reached after panic")
	}
}

type failingBridge struct{ attachErr error }

func (f failingBridge) Broadcast(context.Context, Event) error { return errors.New("offline") }
func (f failingBridge) Attach(func(Event)) (func(), error) {
	return func() {}, f.attachErr
}

func TestBridgeFailuresStayLocal(t *testing.T) {
	if _, err := New(WithBridge(failingBridge{attachErr: errors.New("no redis")})); err == nil {
		t.Fatalf("expected attach error")
	}
	b, err := New(WithBridge(failingBridge{}))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var n int
	b.Subscribe(func(Event) { n++ })
	b.Publish(context.Background(), KindPackages, struct{ Version int64 }{1})
	if n != 1 {
		t.Fatalf("local delivery must not depend on the bridge")
	}
}

func TestViewReloadsOnMatchingEvents(t *testing.T) {
	hub := NewHub()
	writer, _ := New(WithBridge(hub))
	reader, _ := New(WithBridge(hub))
	var source atomic.Int64
	source.Store(1)
	v := NewView(reader, func(context.Context) (int64, error) { return source.Load(), nil },
		Any(MatchKeys("faqs"), MatchKinds(KindFAQs)), nil)
	defer v.Close()

	got, err := v.Get(context.Background())
	if err != nil || got != 1 {
		t.Fatalf("initial get: %d %v", got, err)
	}
	source.Store(2)
	if got, _ := v.Get(context.Background()); got != 1 {
		t.Fatalf("expected cached value before any event, got %d", got)
	}
	writer.StorageChanged(context.Background(), "customers")
	if got, _ := v.Get(context.Background()); got != 1 {
		t.Fatalf("unrelated key must not refresh, got %d", got)
	}
	writer.StorageChanged(context.Background(), "faqs")
	if got, _ := v.Get(context.Background()); got != 2 {
		t.Fatalf("expected refreshed value 2, got %d", got)
	}
	source.Store(3)
	reader.Publish(context.Background(), KindFAQs, map[string]int{"value": 99})
	if got, _ := v.Get(context.Background()); got != 3 {
		t.Fatalf("view must re-query rather than trust the payload, got %d", got)
	}
	if v.Reloads() != 3 {
		t.Fatalf("expected 3 loader runs, got %d", v.Reloads())
	}
}

func TestViewKeepsLastValueOnLoaderError(t *testing.T) {
	b, _ := New()
	fail := false
	v := NewView(b, func(context.Context) (string, error) {
		if fail {
			return "", errors.New("storage down")
		}
		return "ok", nil
	}, MatchKinds(KindAbout), nil)
	if got, _ := v.Get(context.Background()); got != "ok" {
		t.Fatalf("unexpected %q", got)
	}
	fail = true
	b.Publish(context.Background(), KindAbout, nil)
	if got, _ := v.Get(context.Background()); got != "ok" {
		t.Fatalf("expected stale value kept, got %q", got)
	}
	if v.Err() == nil {
		t.Fatalf("expected recorded loader error")
	}
}
