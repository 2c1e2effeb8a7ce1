package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRemote(t *testing.T, srv *httptest.Server) *Remote {
	t.Helper()
	r, err := NewRemote(srv.URL+"/backend", time.Millisecond, time.Second, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRemoteRetriesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if req.URL.Path != "/backend/api/legacy" {
			t.Errorf("path = %s", req.URL.Path)
		}
		if req.URL.Query().Get("_t") != "1700000000000" || req.URL.Query().Get("page") != "2" {
			t.Errorf("query = %s", req.URL.RawQuery)
		}
		if got := req.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(req.Body)
		if string(body) != `{"a":1}` || req.Header.Get("Content-Type") != "application/json" {
			t.Errorf("body = %s (%s)", body, req.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	out := newTestRemote(t, srv).Do(context.Background(), "/api/legacy?page=2", http.MethodPost, map[string]int{"a": 1}, nil, "tok")
	m, ok := out.(map[string]any)
	if !ok || m["ok"] != true {
		t.Fatalf("unexpected result %#v", out)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestRemoteReturnsTextAndGivesUp(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		if req.URL.Path == "/backend/text" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "pong")
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	r := newTestRemote(t, srv)

	if out := r.Do(context.Background(), "/text", http.MethodGet, nil, nil, ""); out != "pong" {
		t.Fatalf("expected raw text, got %#v", out)
	}
	hits.Store(0)
	if out := r.Do(context.Background(), "/down", http.MethodGet, nil, nil, ""); out != nil {
		t.Fatalf("expected nil after failures, got %#v", out)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits.Load())
	}
}

func TestNewRemote(t *testing.T) {
	if r, err := NewRemote("  ", 0, 0); r != nil || err != nil {
		t.Fatalf("empty base url should disable the remote: %v %v", r, err)
	}
	if _, err := NewRemote("not a url", 0, 0); err == nil {
		t.Fatalf("expected relative url to be rejected")
	}
}
