// Package seed materializes default table contents on first read.
//
// Two modes are supported. ModeSeedOnce records a "<table>::meta" document
// the first time a table is bootstrapped (or first observed non-empty), so a
// table the user emptied stays empty. ModeReseedOnEmpty treats emptiness as
// the only signal and seeds again whenever the table is found empty.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"detailcrm/internal/kv"
	"detailcrm/pkg/domain"
)

// Mode selects the bootstrap behavior.
type Mode string

// Supported modes.
const (
	ModeSeedOnce      Mode = "seed-once"
	ModeReseedOnEmpty Mode = "reseed-on-empty"
)

// Meta is the per-table bootstrap record.
type Meta struct {
	SeededAt time.Time `json:"seededAt"`
	Rows     int       `json:"rows"`
}

// Policy applies a Mode against a store.
type Policy struct {
	mode Mode
	now  func() time.Time
}

// NewPolicy parses mode; empty means ModeSeedOnce.
func NewPolicy(mode string) (Policy, error) {
	switch Mode(mode) {
	case "", ModeSeedOnce:
		return Policy{mode: ModeSeedOnce, now: time.Now}, nil
	case ModeReseedOnEmpty:
		return Policy{mode: ModeReseedOnEmpty, now: time.Now}, nil
	default:
		return Policy{}, fmt.Errorf("unknown seed policy %q", mode)
	}
}

// Mode reports the configured mode.
func (p Policy) Mode() Mode {
	if p.mode == "" {
		return ModeSeedOnce
	}
	return p.mode
}

// WithClock returns a copy of p using now for metadata timestamps.
func (p Policy) WithClock(now func() time.Time) Policy {
	p.now = now
	return p
}

func (p Policy) clock() time.Time {
	if p.now == nil {
		return time.Now().UTC()
	}
	return p.now().UTC()
}

// Seeded reports whether table carries a bootstrap record.
func Seeded(ctx context.Context, s *kv.Store, table string) (Meta, bool, error) {
	return kv.LoadDoc[Meta](ctx, s, domain.MetaKey(table))
}

// EnsureTable returns the rows of table, writing rows() first when the
// policy says the table needs bootstrapping. The emptiness check is repeated
// under the key lock, so concurrent first reads seed exactly once.
func EnsureTable[T any](ctx context.Context, s *kv.Store, p Policy, table string, rows func() []T) ([]T, error) {
	current, err := kv.LoadTable[T](ctx, s, table)
	if err != nil {
		return nil, err
	}
	seedOnce := p.Mode() == ModeSeedOnce
	var seeded bool
	if seedOnce {
		_, seeded, err = Seeded(ctx, s, table)
		if err != nil {
			return nil, err
		}
	}
	if len(current) > 0 {
		if seedOnce && !seeded {
			if err := p.mark(ctx, s, table, 0); err != nil {
				return nil, err
			}
		}
		return current, nil
	}
	if seedOnce && seeded {
		return current, nil
	}
	if rows == nil {
		return current, nil
	}

	var written int
	err = kv.UpdateTable(ctx, s, table, func(existing []T) ([]T, error) {
		if len(existing) > 0 {
			current = existing
			return nil, kv.ErrSkip
		}
		current = rows()
		written = len(current)
		if written == 0 {
			return nil, kv.ErrSkip
		}
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	if seedOnce {
		if err := p.mark(ctx, s, table, written); err != nil {
			return nil, err
		}
	}
	if current == nil {
		current = []T{}
	}
	return current, nil
}

// EnsureDoc returns the singleton at key, writing def() first when absent
// and the policy allows it.
func EnsureDoc[T any](ctx context.Context, s *kv.Store, p Policy, key string, def func() T) (T, error) {
	doc, ok, err := kv.LoadDoc[T](ctx, s, key)
	if err != nil || ok {
		return doc, err
	}
	if p.Mode() == ModeSeedOnce {
		if _, seeded, err := Seeded(ctx, s, key); err != nil || seeded {
			return doc, err
		}
	}
	doc = def()
	if err := kv.SaveDoc(ctx, s, key, doc); err != nil {
		return doc, err
	}
	if p.Mode() == ModeSeedOnce {
		if err := p.mark(ctx, s, key, 1); err != nil {
			return doc, err
		}
	}
	return doc, nil
}

// Forget drops the bootstrap record of table so the next read seeds again.
func Forget(ctx context.Context, s *kv.Store, table string) error {
	return s.Remove(ctx, domain.MetaKey(table))
}

func (p Policy) mark(ctx context.Context, s *kv.Store, table string, rows int) error {
	return s.Update(ctx, domain.MetaKey(table), func(_ json.RawMessage, ok bool) (json.RawMessage, error) {
		if ok {
			return nil, kv.ErrSkip
		}
		return json.Marshal(Meta{SeededAt: p.clock(), Rows: rows})
	})
}
