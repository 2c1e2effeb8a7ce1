package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"detailcrm/internal/gateway"
	"detailcrm/internal/obs"
)

type recorder struct {
	endpoint string
	opts     gateway.RequestOptions
	out      any
}

func (r *recorder) Request(_ context.Context, endpoint string, opts gateway.RequestOptions) any {
	r.endpoint, r.opts = endpoint, opts
	return r.out
}

func TestForwardsToGateway(t *testing.T) {
	gw := &recorder{out: map[string]any{"ok": true, "count": 2}}
	srv := httptest.NewServer(New(gw, nil, nil).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/customers?x=1", "application/json", strings.NewReader(`{"name":"Jordan"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil || got["count"] != float64(2) {
		t.Fatalf("unexpected body %v %v", got, err)
	}
	if gw.endpoint != "/api/customers?x=1" || gw.opts.Method != http.MethodPost {
		t.Fatalf("unexpected forward %s %s", gw.opts.Method, gw.endpoint)
	}
	if body, _ := gw.opts.Body.(map[string]any); body["name"] != "Jordan" {
		t.Fatalf("body not decoded: %#v", gw.opts.Body)
	}
	if gw.opts.Headers["X-Request-Id"] == "" {
		t.Fatalf("request id not forwarded")
	}
}

func TestForwardErrors(t *testing.T) {
	gw := &recorder{}
	srv := httptest.NewServer(New(gw, nil, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 for an unhandled endpoint, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/faqs", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	metrics := obs.NewMetrics()
	metrics.Alert("low_inventory", "pushed")
	srv := httptest.NewServer(New(&recorder{}, metrics, nil).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "low_inventory") {
		t.Fatalf("metrics output missing alert series:\n%s", body)
	}
}

func TestTextPassthrough(t *testing.T) {
	srv := httptest.NewServer(New(&recorder{out: "pong"}, nil, nil).Router())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/api/legacy/ping")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected text response %q %s", body, resp.Header.Get("Content-Type"))
	}
}
