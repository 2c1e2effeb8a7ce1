// Package bus implements the cross-context notification bus. A Bus delivers
// events synchronously to its own subscribers and forwards them through an
// optional Bridge so that other contexts sharing the same durable store can
// re-query. Event payloads are hints only; subscribers always re-read state.
package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"detailcrm/internal/obs"
)

// Event kinds.
const (
	KindStorage      = "storage"
	KindAlert        = "admin-alert"
	KindPackages     = "packages-updated"
	KindVehicleTypes = "vehicle-types-updated"
	KindFAQs         = "faqs-updated"
	KindAbout        = "about-updated"
	KindContact      = "contact-updated"
	KindInventory    = "inventory-updated"
	KindSession      = "session-changed"
)

// Event is one notification. Key is set for storage events.
type Event struct {
	ID     string          `json:"id"`
	Origin string          `json:"origin"`
	Kind   string          `json:"kind"`
	Key    string          `json:"key,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
	At     time.Time       `json:"at"`
	Remote bool            `json:"-"`
}

// Handler receives events. Handlers run on the publishing goroutine for local
// events and on the bridge goroutine for remote ones.
type Handler func(Event)

// Bridge carries events between contexts.
type Bridge interface {
	Broadcast(ctx context.Context, ev Event) error
	Attach(fn func(Event)) (detach func(), err error)
}

// Option configures a Bus.
type Option func(*Bus)

// WithBridge forwards events to and from br.
func WithBridge(br Bridge) Option { return func(b *Bus) { b.bridge = br } }

// WithLogger sets the logger.
func WithLogger(l obs.Logger) Option { return func(b *Bus) { b.logger = obs.OrNop(l) } }

// WithMetrics counts deliveries.
func WithMetrics(m *obs.Metrics) Option { return func(b *Bus) { b.metrics = m } }

// WithOrigin overrides the generated origin id.
func WithOrigin(origin string) Option { return func(b *Bus) { b.origin = origin } }

type subscription struct {
	fn    Handler
	kinds map[string]struct{}
}

// Bus is safe for concurrent use.
type Bus struct {
	origin  string
	bridge  Bridge
	detach  func()
	logger  obs.Logger
	metrics *obs.Metrics

	mu   sync.RWMutex
	next int
	subs map[int]subscription
}

// New constructs a bus and attaches it to the configured bridge.
func New(opts ...Option) (*Bus, error) {
	b := &Bus{
		origin: uuid.NewString(),
		logger: obs.Nop(),
		subs:   make(map[int]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.bridge != nil {
		detach, err := b.bridge.Attach(b.receive)
		if err != nil {
			return nil, err
		}
		b.detach = detach
	}
	return b, nil
}

// Origin identifies this bus on the bridge.
func (b *Bus) Origin() string { return b.origin }

// Subscribe registers fn for the given kinds (all kinds when none given).
// The returned function removes the subscription.
func (b *Bus) Subscribe(fn Handler, kinds ...string) func() {
	sub := subscription{fn: fn}
	if len(kinds) > 0 {
		sub.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish fires a content event. detail is encoded as JSON; encoding
// failures drop the detail, not the event.
func (b *Bus) Publish(ctx context.Context, kind string, detail any) {
	ev := b.newEvent(kind)
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			b.logger.Warn("bus detail encode failed", "kind", kind, "error", err)
		} else {
			ev.Detail = raw
		}
	}
	b.dispatch(ctx, ev)
}

// StorageChanged fires the storage event for key.
func (b *Bus) StorageChanged(ctx context.Context, key string) {
	ev := b.newEvent(KindStorage)
	ev.Key = key
	b.dispatch(ctx, ev)
}

// Close detaches from the bridge. Subscriptions stay registered.
func (b *Bus) Close() error {
	if b.detach != nil {
		b.detach()
		b.detach = nil
	}
	return nil
}

func (b *Bus) newEvent(kind string) Event {
	return Event{ID: uuid.NewString(), Origin: b.origin, Kind: kind, At: time.Now().UTC()}
}

func (b *Bus) dispatch(ctx context.Context, ev Event) {
	b.deliver(ev)
	if b.bridge == nil {
		return
	}
	if err := b.bridge.Broadcast(ctx, ev); err != nil {
		b.logger.Warn("bus broadcast failed", "kind", ev.Kind, "error", err)
	}
}

func (b *Bus) receive(ev Event) {
	if ev.Origin == b.origin {
		return
	}
	ev.Remote = true
	b.deliver(ev)
}

func (b *Bus) deliver(ev Event) {
	b.metrics.Event(ev.Kind, ev.Remote)
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.kinds != nil {
			if _, ok := sub.kinds[ev.Kind]; !ok {
				continue
			}
		}
		targets = append(targets, sub.fn)
	}
	b.mu.RUnlock()
	for _, fn := range targets {
		b.safeCall(fn, ev)
	}
}

func (b *Bus) safeCall(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus handler panic", "kind", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}
