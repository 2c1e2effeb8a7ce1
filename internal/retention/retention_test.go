package retention

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweepAppliesWindows(t *testing.T) {
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var cutoffs []time.Time
	prune := func(ctx context.Context, cutoff time.Time) (int, error) {
		cutoffs = append(cutoffs, cutoff)
		return 2, nil
	}
	s := New(nil,
		Rule{Name: "usage", Window: Days(10), Prune: prune},
		Rule{Name: "disabled", Window: 0, Prune: prune},
		Rule{Name: "broken", Window: Days(1), Prune: func(context.Context, time.Time) (int, error) {
			return 0, errors.New("offline")
		}},
	)
	s.now = func() time.Time { return now }
	res := s.Sweep(context.Background())
	if len(res) != 2 {
		t.Fatalf("expected 2 active rules, got %d", len(res))
	}
	if res[0].Removed != 2 || res[1].Err == nil {
		t.Fatalf("unexpected results %+v", res)
	}
	if len(cutoffs) != 1 || !cutoffs[0].Equal(now.AddDate(0, 0, -10)) {
		t.Fatalf("unexpected cutoffs %v", cutoffs)
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(nil, Rule{Name: "x", Window: time.Hour, Prune: func(context.Context, time.Time) (int, error) { return 0, nil }})
	if err := s.Start("not a spec"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
	if err := s.Start("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start("@every 1h"); err == nil {
		t.Fatalf("expected double start error")
	}
	s.Stop()
}
