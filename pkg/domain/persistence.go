package domain

import (
	"context"
	"encoding/json"
)

// KVDriver identifies a concrete durable key/value backend.
type KVDriver string

const (
	KVMemory   KVDriver = "memory"   // in-memory only (tests / ephemeral)
	KVSQLite   KVDriver = "sqlite"   // embedded sqlite file
	KVPostgres KVDriver = "postgres" // PostgreSQL server
	KVRedis    KVDriver = "redis"    // shared redis instance
)

// KVStore is the durable store adapter. Values are JSON documents addressed
// by top-level key names. Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the stored document and true, or (nil, false, nil) when the key is absent.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	// Set replaces the document stored at key. Invalid JSON is rejected.
	Set(ctx context.Context, key string, value json.RawMessage) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Keys lists stored keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
	// Clear removes every key.
	Clear(ctx context.Context) error
	Driver() KVDriver
	Close() error
}
