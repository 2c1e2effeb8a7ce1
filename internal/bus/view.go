package bus

import (
	"context"
	"sync"

	"detailcrm/internal/obs"
)

// Loader reads the authoritative value behind a View.
type Loader[T any] func(ctx context.Context) (T, error)

// Matcher selects the events that invalidate a View.
type Matcher func(Event) bool

// MatchKinds matches events of any of the given kinds.
func MatchKinds(kinds ...string) Matcher {
	return func(ev Event) bool {
		for _, k := range kinds {
			if ev.Kind == k {
				return true
			}
		}
		return false
	}
}

// MatchKeys matches storage events for any of the given keys.
func MatchKeys(keys ...string) Matcher {
	return func(ev Event) bool {
		if ev.Kind != KindStorage {
			return false
		}
		for _, k := range keys {
			if ev.Key == k {
				return true
			}
		}
		return false
	}
}

// Any matches when one of ms matches.
func Any(ms ...Matcher) Matcher {
	return func(ev Event) bool {
		for _, m := range ms {
			if m(ev) {
				return true
			}
		}
		return false
	}
}

// View caches a value and re-runs its loader whenever a matching event
// arrives. The event payload is never used as the value.
type View[T any] struct {
	load   Loader[T]
	logger obs.Logger
	unsub  func()

	mu      sync.RWMutex
	value   T
	loaded  bool
	reloads int
	lastErr error
}

// NewView subscribes a view to b.
func NewView[T any](b *Bus, load Loader[T], match Matcher, logger obs.Logger) *View[T] {
	v := &View[T]{load: load, logger: obs.OrNop(logger)}
	v.unsub = b.Subscribe(func(ev Event) {
		if match(ev) {
			v.refresh(context.Background())
		}
	})
	return v
}

// Get returns the cached value, loading it on first use.
func (v *View[T]) Get(ctx context.Context) (T, error) {
	v.mu.RLock()
	if v.loaded {
		defer v.mu.RUnlock()
		return v.value, nil
	}
	v.mu.RUnlock()
	return v.refresh(ctx)
}

// Reloads reports how many times the loader ran.
func (v *View[T]) Reloads() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.reloads
}

// Err returns the most recent loader error.
func (v *View[T]) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

// Close unsubscribes the view.
func (v *View[T]) Close() { v.unsub() }

func (v *View[T]) refresh(ctx context.Context) (T, error) {
	value, err := v.load(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reloads++
	v.lastErr = err
	if err != nil {
		v.logger.Warn("view reload failed", "error", err)
		return v.value, err
	}
	v.value = value
	v.loaded = true
	return value, nil
}
