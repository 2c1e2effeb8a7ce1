// Package retention prunes usage history and read admin alerts on a cron
// schedule.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"detailcrm/internal/obs"
)

// Pruner deletes rows older than a cutoff and reports how many went.
type Pruner func(ctx context.Context, cutoff time.Time) (int, error)

// Rule is one retention window.
type Rule struct {
	Name   string
	Window time.Duration
	Prune  Pruner
}

// Result is the outcome of one rule in a sweep.
type Result struct {
	Rule    string
	Removed int
	Err     error
}

// Scheduler runs every rule on a schedule.
type Scheduler struct {
	rules  []Rule
	logger obs.Logger
	now    func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New builds a scheduler. Rules with a zero window are skipped.
func New(logger obs.Logger, rules ...Rule) *Scheduler {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Window > 0 && r.Prune != nil {
			active = append(active, r)
		}
	}
	return &Scheduler{rules: active, logger: obs.OrNop(logger), now: time.Now}
}

// Days converts a day count into a window.
func Days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

// Sweep runs every rule once.
func (s *Scheduler) Sweep(ctx context.Context) []Result {
	now := s.now().UTC()
	out := make([]Result, 0, len(s.rules))
	for _, r := range s.rules {
		n, err := r.Prune(ctx, now.Add(-r.Window))
		if err != nil {
			s.logger.Warn("retention sweep failed", "rule", r.Name, "error", err)
		} else if n > 0 {
			s.logger.Info("retention sweep", "rule", r.Name, "removed", n)
		}
		out = append(out, Result{Rule: r.Name, Removed: n, Err: err})
	}
	return out
}

// Start schedules Sweep with spec (standard cron syntax or descriptors
// such as @daily). The sweep context is cancelled by Stop.
func (s *Scheduler) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("retention scheduler already started")
	}
	if len(s.rules) == 0 {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return fmt.Errorf("retention schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("retention scheduler started", "schedule", spec, "rules", len(s.rules))
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
