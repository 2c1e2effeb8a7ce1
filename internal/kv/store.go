// Package kv layers ordering, observation and change notification over the
// durable store drivers. Every repository reaches storage through a *Store.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"detailcrm/internal/obs"
	"detailcrm/pkg/domain"
)

// Notifier receives the storage-change signal after a successful write.
type Notifier interface {
	StorageChanged(ctx context.Context, key string)
}

// UpdateFunc computes the next value for a key from its current value. ok is
// false when the key is absent. Returning a nil value removes the key;
// returning ErrSkip leaves it untouched.
type UpdateFunc func(current json.RawMessage, ok bool) (json.RawMessage, error)

// ErrSkip aborts an Update without writing and without error.
var ErrSkip = skipError{}

type skipError struct{}

func (skipError) Error() string { return "kv: skip write" }

// Option configures a Store.
type Option func(*Store)

// WithNotifier sets the storage-change receiver.
func WithNotifier(n Notifier) Option { return func(s *Store) { s.notifier = n } }

// WithLogger sets the logger.
func WithLogger(l obs.Logger) Option { return func(s *Store) { s.logger = obs.OrNop(l) } }

// WithMetrics counts driver calls.
func WithMetrics(m *obs.Metrics) Option { return func(s *Store) { s.metrics = m } }

// Store serializes writes per key. Update runs its read-modify-write while
// holding the key lock, so two concurrent updates of the same table can
// never lose each other's changes. Clear excludes every writer.
type Store struct {
	driver   domain.KVStore
	notifier Notifier
	logger   obs.Logger
	metrics  *obs.Metrics

	clearMu sync.RWMutex
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ domain.KVStore = (*Store)(nil)

// New wraps driver.
func New(driver domain.KVStore, opts ...Option) *Store {
	s := &Store{driver: driver, logger: obs.Nop(), locks: make(map[string]*sync.Mutex)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier replaces the notifier. Used when the bus is built after the
// store.
func (s *Store) SetNotifier(n Notifier) { s.notifier = n }

// Driver reports the wrapped driver kind.
func (s *Store) Driver() domain.KVDriver { return s.driver.Driver() }

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *Store) observe(op, key string, start time.Time, err error) {
	driver := string(s.driver.Driver())
	s.metrics.KVOp(driver, op, err)
	if err != nil {
		s.logger.Warn("kv operation failed", "driver", driver, "op", op, "key", key,
			"duration", time.Since(start), "error", err)
	}
}

func (s *Store) notify(ctx context.Context, key string) {
	if s.notifier != nil {
		s.notifier.StorageChanged(ctx, key)
	}
}

// Get reads key without taking the key lock.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	start := time.Now()
	v, ok, err := s.driver.Get(ctx, key)
	s.observe("get", key, start, err)
	return v, ok, err
}

// Set writes value under the key lock.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	s.clearMu.RLock()
	l := s.keyLock(key)
	l.Lock()
	err := s.set(ctx, key, value)
	l.Unlock()
	s.clearMu.RUnlock()
	if err == nil {
		s.notify(ctx, key)
	}
	return err
}

func (s *Store) set(ctx context.Context, key string, value json.RawMessage) error {
	start := time.Now()
	err := s.driver.Set(ctx, key, value)
	s.observe("set", key, start, err)
	return err
}

// Remove deletes key under the key lock.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.clearMu.RLock()
	l := s.keyLock(key)
	l.Lock()
	err := s.remove(ctx, key)
	l.Unlock()
	s.clearMu.RUnlock()
	if err == nil {
		s.notify(ctx, key)
	}
	return err
}

func (s *Store) remove(ctx context.Context, key string) error {
	start := time.Now()
	err := s.driver.Remove(ctx, key)
	s.observe("remove", key, start, err)
	return err
}

// Update performs a serialized read-modify-write of key. The change signal
// is sent after the lock is released so subscribers may write again.
func (s *Store) Update(ctx context.Context, key string, fn UpdateFunc) error {
	s.clearMu.RLock()
	l := s.keyLock(key)
	l.Lock()
	wrote, err := s.update(ctx, key, fn)
	l.Unlock()
	s.clearMu.RUnlock()
	if wrote {
		s.notify(ctx, key)
	}
	return err
}

func (s *Store) update(ctx context.Context, key string, fn UpdateFunc) (bool, error) {
	start := time.Now()
	current, ok, err := s.driver.Get(ctx, key)
	s.observe("get", key, start, err)
	if err != nil {
		return false, err
	}
	next, err := fn(current, ok)
	if errors.Is(err, ErrSkip) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if next == nil {
		if !ok {
			return false, nil
		}
		err := s.remove(ctx, key)
		return err == nil, err
	}
	if err := s.set(ctx, key, next); err != nil {
		return false, err
	}
	return true, nil
}

// Keys lists stored keys.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := s.driver.Keys(ctx)
	s.observe("keys", "", start, err)
	return keys, err
}

// Clear wipes the store while excluding every writer. Each previously
// present key is signalled.
func (s *Store) Clear(ctx context.Context) error {
	keys, _ := s.driver.Keys(ctx)
	s.clearMu.Lock()
	start := time.Now()
	err := s.driver.Clear(ctx)
	s.observe("clear", "", start, err)
	s.clearMu.Unlock()
	if err != nil {
		return err
	}
	for _, k := range keys {
		s.notify(ctx, k)
	}
	return nil
}

// Close closes the driver.
func (s *Store) Close() error { return s.driver.Close() }
