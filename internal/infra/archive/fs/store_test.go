package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"detailcrm/internal/archive/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStorePutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	s := newTempStore(t)
	obj, err := s.Put(ctx, "checklists/chk_1.pdf", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "application/pdf", Metadata: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Size != 5 || obj.ETag == "" || !strings.HasPrefix(obj.URL, "http://local.archive/") {
		t.Fatalf("unexpected object %+v", obj)
	}
	if _, err := s.Put(ctx, "checklists/chk_1.pdf", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	head, err := s.Head(ctx, "checklists/chk_1.pdf")
	if err != nil || head.ETag != obj.ETag || head.Metadata["k"] != "v" {
		t.Fatalf("head: %v %+v", err, head)
	}
	_, rc, err := s.Get(ctx, "checklists/chk_1.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "hello" {
		t.Fatalf("unexpected body %q", b)
	}
	list, err := s.List(ctx, "checklists/")
	if err != nil || len(list) != 1 || list[0].Key != "checklists/chk_1.pdf" {
		t.Fatalf("list: %v %+v", err, list)
	}
	if ok, err := s.Delete(ctx, "checklists/chk_1.pdf"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := s.Delete(ctx, "checklists/chk_1.pdf"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := s.Head(ctx, "checklists/chk_1.pdf"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	s := newTempStore(t)
	for _, key := range []string{"", "../escape", "/abs", "doc.meta"} {
		if _, err := s.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); err == nil {
			t.Fatalf("expected rejection of %q", key)
		}
	}
	if _, err := s.Link(ctx, "../x", core.LinkOptions{}); err == nil {
		t.Fatalf("expected link rejection")
	}
}
