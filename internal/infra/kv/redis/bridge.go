package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"detailcrm/internal/bus"
	"detailcrm/internal/obs"
)

var _ bus.Bridge = (*Bridge)(nil)

// Bridge relays bus events over a redis pub/sub channel.
type Bridge struct {
	client  *goredis.Client
	channel string
	logger  obs.Logger
}

// NewBridge returns a bridge publishing on <namespace>:events.
func NewBridge(client *goredis.Client, namespace string, logger obs.Logger) *Bridge {
	if namespace == "" {
		namespace = "detailcrm"
	}
	return &Bridge{client: client, channel: namespace + ":events", logger: obs.OrNop(logger)}
}

// Channel returns the pub/sub channel name.
func (b *Bridge) Channel() string { return b.channel }

// Broadcast publishes ev as JSON.
func (b *Bridge) Broadcast(ctx context.Context, ev bus.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", b.channel, err)
	}
	return nil
}

// Attach subscribes to the channel and feeds decoded events to fn from a
// background goroutine until detach is called.
func (b *Bridge) Attach(fn func(bus.Event)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range ps.Channel() {
			var ev bus.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("redis bridge dropped malformed event", "error", err)
				continue
			}
			fn(ev)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
			wg.Wait()
		})
	}, nil
}
