// Package snapshot publishes versioned singleton documents that several
// independent views must read consistently (package pricing, vehicle types).
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"detailcrm/internal/kv"
	"detailcrm/internal/obs"
)

// Broadcaster announces a new version.
type Broadcaster interface {
	Publish(ctx context.Context, kind string, detail any)
}

// Versioner reads and writes the version field of T.
type Versioner[T any] struct {
	Get func(T) int64
	Set func(*T, int64)
}

// Fallback synthesizes a document when none has been published yet.
type Fallback[T any] func(ctx context.Context) (T, error)

// Notice is the event detail sent after a publish.
type Notice struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
}

// Publisher owns one singleton key. Publish always replaces the whole
// document; the last writer wins.
type Publisher[T any] struct {
	store    *kv.Store
	key      string
	kind     string
	version  Versioner[T]
	fallback Fallback[T]
	bcast    Broadcaster
	logger   obs.Logger
	now      func() time.Time

	mu    sync.Mutex
	last  int64
	group singleflight.Group
}

// Option configures a Publisher.
type Option[T any] func(*Publisher[T])

// WithBroadcaster sets the event sink.
func WithBroadcaster[T any](b Broadcaster) Option[T] {
	return func(p *Publisher[T]) { p.bcast = b }
}

// WithLogger sets the logger.
func WithLogger[T any](l obs.Logger) Option[T] {
	return func(p *Publisher[T]) { p.logger = obs.OrNop(l) }
}

// WithClock overrides the version clock.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(p *Publisher[T]) { p.now = now }
}

// New constructs a publisher for key. kind is the bus event kind fired on
// publish.
func New[T any](store *kv.Store, key, kind string, v Versioner[T], fallback Fallback[T], opts ...Option[T]) *Publisher[T] {
	p := &Publisher[T]{
		store:    store,
		key:      key,
		kind:     kind,
		version:  v,
		fallback: fallback,
		logger:   obs.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the singleton key.
func (p *Publisher[T]) Key() string { return p.key }

// Init primes the version floor from the stored document, so versions keep
// increasing across restarts even if the clock moved backwards.
func (p *Publisher[T]) Init(ctx context.Context) error {
	doc, ok, err := kv.LoadDoc[T](ctx, p.store, p.key)
	if err != nil {
		return fmt.Errorf("init %s: %w", p.key, err)
	}
	if ok {
		p.mu.Lock()
		if v := p.version.Get(doc); v > p.last {
			p.last = v
		}
		p.mu.Unlock()
	}
	return nil
}

// Reset deletes the published document and forgets the version floor.
func (p *Publisher[T]) Reset(ctx context.Context) error {
	p.mu.Lock()
	p.last = 0
	p.mu.Unlock()
	return p.store.Remove(ctx, p.key)
}

func (p *Publisher[T]) nextVersion() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.now().UnixMilli()
	if v <= p.last {
		v = p.last + 1
	}
	p.last = v
	return v
}

// Publish stamps doc with a new version and replaces the stored singleton.
func (p *Publisher[T]) Publish(ctx context.Context, doc T) (int64, error) {
	v := p.nextVersion()
	p.version.Set(&doc, v)
	if err := kv.SaveDoc(ctx, p.store, p.key, doc); err != nil {
		return 0, fmt.Errorf("publish %s: %w", p.key, err)
	}
	if p.bcast != nil {
		p.bcast.Publish(ctx, p.kind, Notice{Key: p.key, Version: v})
	}
	p.logger.Debug("snapshot published", "key", p.key, "version", v)
	return v, nil
}

// FetchLatest returns the stored singleton. When absent, the fallback
// document is built and published; concurrent callers share one build.
func (p *Publisher[T]) FetchLatest(ctx context.Context) (T, error) {
	doc, ok, err := kv.LoadDoc[T](ctx, p.store, p.key)
	if err != nil || ok {
		return doc, err
	}
	res, err, _ := p.group.Do(p.key, func() (any, error) {
		doc, ok, err := kv.LoadDoc[T](ctx, p.store, p.key)
		if err != nil || ok {
			return doc, err
		}
		doc, err = p.fallback(ctx)
		if err != nil {
			return doc, fmt.Errorf("synthesize %s: %w", p.key, err)
		}
		if _, err := p.Publish(ctx, doc); err != nil {
			return doc, err
		}
		p.logger.Info("snapshot synthesized from catalog", "key", p.key)
		doc, _, err = kv.LoadDoc[T](ctx, p.store, p.key)
		return doc, err
	})
	if res == nil {
		var zero T
		return zero, err
	}
	return res.(T), err
}
