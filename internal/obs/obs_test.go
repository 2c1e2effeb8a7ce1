package obs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNoopLogger(t *testing.T) {
	logger := OrNop(nil)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("noop logger panicked: %v", r)
		}
	}()
	logger.Debug("msg", "k", "v")
	logger.Info("msg")
	logger.Warn("msg")
	logger.Error("msg")
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "debug", "json")
	l.Debug("hello", "key", "value")
	if !strings.Contains(buf.String(), `"key":"value"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}

	buf.Reset()
	l = newLogger(&buf, "warn", "text")
	l.Info("suppressed")
	l.Warn("kept")
	if strings.Contains(buf.String(), "suppressed") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Observe(context.Background(), "GetCustomers", true, time.Millisecond)
	m.Observe(context.Background(), "GetCustomers", false, time.Millisecond)
	m.Observe(context.Background(), "", true, time.Millisecond)
	if got := testutil.ToFloat64(m.results.WithLabelValues("GetCustomers", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.results.WithLabelValues("GetCustomers", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	m.KVOp("memory", "set", nil)
	m.Alert("low_inventory", "pushed")
	m.Event("faqs", true)
	if got := testutil.ToFloat64(m.events.WithLabelValues("faqs", "remote")); got != 1 {
		t.Fatalf("expected 1 remote event, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Observe(context.Background(), "op", true, 0)
	m.KVOp("memory", "get", nil)
	m.Alert("x", "pushed")
	m.Event("x", false)
}
