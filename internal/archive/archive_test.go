package archive

import (
	"context"
	"errors"
	"testing"

	"detailcrm/internal/config"
	"detailcrm/internal/infra/archive/memory"
	kvmemory "detailcrm/internal/infra/kv/memory"
	"detailcrm/internal/kv"
	"detailcrm/pkg/domain"
)

func newArchive(t *testing.T) (*Archive, *kv.Store) {
	t.Helper()
	s := kv.New(kvmemory.NewStore())
	return New(memory.New(), kv.NewTextStore(s), nil), s
}

func TestSaveReadDelete(t *testing.T) {
	ctx := context.Background()
	a, s := newArchive(t)
	doc, err := a.Save(ctx, Document{Name: "Invoice 42.pdf", RecordType: "invoice", RecordID: "inv_42", Content: []byte("%PDF")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if doc.ContentType != "application/pdf" || doc.ObjectKey == "" || doc.Size != 4 {
		t.Fatalf("unexpected document %+v", doc)
	}

	// the index is persisted through the text store
	other := kv.NewTextStore(s)
	if err := other.Hydrate(ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	var idx []domain.ArchivedDocument
	if ok, err := other.GetJSON(domain.TextPDFArchive, &idx); err != nil || !ok || len(idx) != 1 {
		t.Fatalf("index not persisted: %v %v %+v", ok, err, idx)
	}

	_, body, err := a.Read(ctx, doc.ID)
	if err != nil || string(body) != "%PDF" {
		t.Fatalf("read: %v %q", err, body)
	}
	if ok, err := a.Delete(ctx, doc.ID); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := a.Delete(ctx, doc.ID); err != nil || ok {
		t.Fatalf("second delete should be a no-op: %v %v", ok, err)
	}
	if _, _, err := a.Read(ctx, doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestSaveValidates(t *testing.T) {
	a, _ := newArchive(t)
	if _, err := a.Save(context.Background(), Document{Content: []byte("x")}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request for missing name, got %v", err)
	}
	if _, err := a.Save(context.Background(), Document{Name: "empty.pdf"}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid_request for empty content, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	cfg := config.Memory()
	st, err := Open(ctx, cfg)
	if err != nil || st.Driver() != "memory" {
		t.Fatalf("memory: %v", err)
	}
	cfg.ArchiveDriver, cfg.ArchiveFSRoot = "fs", t.TempDir()
	if st, err = Open(ctx, cfg); err != nil || st.Driver() != "fs" {
		t.Fatalf("fs: %v", err)
	}
	cfg.ArchiveDriver = "s3"
	if _, err := Open(ctx, cfg); err == nil {
		t.Fatalf("expected s3 without bucket to fail")
	}
	cfg.ArchiveDriver = "tape"
	if _, err := Open(ctx, cfg); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
