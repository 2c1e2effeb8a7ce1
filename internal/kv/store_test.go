package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"detailcrm/internal/config"
	"detailcrm/internal/infra/kv/memory"
	"detailcrm/internal/obs"
	"detailcrm/pkg/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingNotifier struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingNotifier) StorageChanged(_ context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recordingNotifier) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

type row struct {
	ID string `json:"id"`
}

func TestConcurrentUpdateTableLosesNothing(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore())
	const writers = 64
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := UpdateTable(ctx, s, "customers", func(rows []row) ([]row, error) {
				return append(rows, row{ID: fmt.Sprintf("c_%d", i)}), nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}(i)
	}
	wg.Wait()
	rows, err := LoadTable[row](ctx, s, "customers")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != writers {
		t.Fatalf("expected %d rows, got %d", writers, len(rows))
	}
}

func TestUpdateSkipAndRemove(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	s := New(memory.NewStore(), WithNotifier(n))

	if err := s.Update(ctx, "faqs", func(json.RawMessage, bool) (json.RawMessage, error) {
		return nil, ErrSkip
	}); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "faqs"); ok {
		t.Fatalf("skip must not write")
	}
	if len(n.seen()) != 0 {
		t.Fatalf("skip must not notify")
	}

	if err := SaveTable(ctx, s, "faqs", []row{{ID: "faq_1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Update(ctx, "faqs", func(json.RawMessage, bool) (json.RawMessage, error) { return nil, nil }); err != nil {
		t.Fatalf("remove via update: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "faqs"); ok {
		t.Fatalf("expected key removed")
	}
	if got := n.seen(); len(got) != 2 || got[0] != "faqs" || got[1] != "faqs" {
		t.Fatalf("unexpected notifications %v", got)
	}

	boom := errors.New("boom")
	if err := s.Update(ctx, "faqs", func(json.RawMessage, bool) (json.RawMessage, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

// A subscriber that writes the same key from inside the change signal must
// not deadlock.
func TestNotifierMayWriteSameKey(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore())
	var once sync.Once
	s.SetNotifier(notifierFunc(func(ctx context.Context, key string) {
		once.Do(func() {
			_ = UpdateTable(ctx, s, key, func(rows []row) ([]row, error) {
				return append(rows, row{ID: "from-subscriber"}), nil
			})
		})
	}))
	if err := SaveTable(ctx, s, "tasks", []row{{ID: "t_1"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	rows, _ := LoadTable[row](ctx, s, "tasks")
	if len(rows) != 2 {
		t.Fatalf("expected subscriber write, got %v", rows)
	}
}

type notifierFunc func(ctx context.Context, key string)

func (f notifierFunc) StorageChanged(ctx context.Context, key string) { f(ctx, key) }

func TestClearNotifiesEveryKeyAndCountsMetrics(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	m := obs.NewMetrics()
	s := New(memory.NewStore(), WithNotifier(n), WithMetrics(m))
	_ = SaveDoc(ctx, s, "contactInfo", domain.ContactInfo{Phone: "555"})
	_ = SaveTable(ctx, s, "faqs", []row{})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got := n.seen()
	if len(got) != 4 {
		t.Fatalf("expected 2 writes + 2 clear signals, got %v", got)
	}
	if n, err := testutil.GatherAndCount(m.Registry(), "detailcrm_kv_operations_total"); err != nil || n == 0 {
		t.Fatalf("expected kv operation series, got %d err=%v", n, err)
	}
	if err := s.Set(ctx, "bad", json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected invalid json error")
	}
}

func TestLoadDocAndTableDefaults(t *testing.T) {
	ctx := context.Background()
	s := New(memory.NewStore())
	rows, err := LoadTable[row](ctx, s, "missing")
	if err != nil || rows == nil || len(rows) != 0 {
		t.Fatalf("expected empty non-nil table, got %v %v", rows, err)
	}
	if _, ok, err := LoadDoc[domain.ContactInfo](ctx, s, "contactInfo"); ok || err != nil {
		t.Fatalf("expected missing doc, got ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "broken", json.RawMessage(`{"id":1}`))
	if _, err := LoadTable[row](ctx, s, "broken"); err == nil {
		t.Fatalf("expected decode error for non-array table")
	}
}

func TestTextStoreWritesThroughAndHydrates(t *testing.T) {
	ctx := context.Background()
	driver := memory.NewStore()
	writer := NewTextStore(New(driver))
	if err := writer.SetJSON(ctx, domain.TextCurrentUser, map[string]string{"id": "u_1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := writer.SetItem(ctx, domain.TextPDFArchive, "[]"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := driver.Get(ctx, domain.TextKeyPrefix+domain.TextCurrentUser); !ok {
		t.Fatalf("expected write-through under the text prefix")
	}

	reader := NewTextStore(New(driver))
	if _, ok := reader.GetItem(domain.TextCurrentUser); ok {
		t.Fatalf("reader should be empty before hydrate")
	}
	if err := reader.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	var user map[string]string
	if ok, err := reader.GetJSON(domain.TextCurrentUser, &user); !ok || err != nil || user["id"] != "u_1" {
		t.Fatalf("unexpected hydrated user %v ok=%v err=%v", user, ok, err)
	}

	if err := writer.RemoveItem(ctx, domain.TextCurrentUser); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := reader.Refresh(ctx, domain.TextCurrentUser); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := reader.GetItem(domain.TextCurrentUser); ok {
		t.Fatalf("expected refresh to drop removed item")
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cfg := config.Memory()
	s, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if s.Driver() != domain.KVMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}

	cfg.StorageDriver = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "kv.db")
	lite, err := Open(ctx, cfg)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer lite.Close()
	if lite.Driver() != domain.KVSQLite {
		t.Fatalf("unexpected driver %s", lite.Driver())
	}

	cfg.StorageDriver = "etcd"
	if _, err := Open(ctx, cfg); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
