// Package redis provides a Redis-backed durable store adapter and the
// pub/sub bridge used to carry bus events between processes sharing it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"detailcrm/pkg/domain"
)

var _ domain.KVStore = (*Store)(nil)

// Options selects the server and key namespace.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
}

// NewClient builds a go-redis client from opts.
func NewClient(opts Options) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// Store keeps every top-level key as a field of one hash, so Keys and Clear
// never scan the keyspace.
type Store struct {
	client *goredis.Client
	hash   string
	owned  bool
}

// NewStore connects to redis and verifies the connection.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client := NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	s := WrapClient(client, opts.Namespace)
	s.owned = true
	return s, nil
}

// WrapClient builds a store over an existing client. Close leaves the
// client open.
func WrapClient(client *goredis.Client, namespace string) *Store {
	if namespace == "" {
		namespace = "detailcrm"
	}
	return &Store{client: client, hash: namespace + ":kv"}
}

// Driver reports the redis driver.
func (s *Store) Driver() domain.KVDriver { return domain.KVRedis }

func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := s.client.HGet(ctx, s.hash, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("hget %s: %w", key, err)
	}
	return json.RawMessage(raw), true, nil
}

func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("encode %s: invalid json document", key)
	}
	if err := s.client.HSet(ctx, s.hash, key, []byte(value)).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.HDel(ctx, s.hash, key).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("hkeys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.hash).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.hash, err)
	}
	return nil
}

// Close releases the client when the store created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// Client exposes the underlying client.
func (s *Store) Client() *goredis.Client { return s.client }
