package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// LoadTable decodes the array stored at key. A missing key is an empty,
// non-nil table.
func LoadTable[T any](ctx context.Context, s interface {
	Get(context.Context, string) (json.RawMessage, bool, error)
}, key string) ([]T, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeTable[T](key, raw, ok)
}

func decodeTable[T any](key string, raw json.RawMessage, ok bool) ([]T, error) {
	rows := []T{}
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return rows, nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// SaveTable replaces the array stored at key.
func SaveTable[T any](ctx context.Context, s *Store, key string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// UpdateTable runs fn over the decoded table under the key lock and writes
// its result. Returning ErrSkip leaves the table untouched.
func UpdateTable[T any](ctx context.Context, s *Store, key string, fn func(rows []T) ([]T, error)) error {
	return s.Update(ctx, key, func(current json.RawMessage, ok bool) (json.RawMessage, error) {
		rows, err := decodeTable[T](key, current, ok)
		if err != nil {
			return nil, err
		}
		next, err := fn(rows)
		if err != nil {
			return nil, err
		}
		if next == nil {
			next = []T{}
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		return raw, nil
	})
}

// LoadDoc decodes the singleton stored at key.
func LoadDoc[T any](ctx context.Context, s interface {
	Get(context.Context, string) (json.RawMessage, bool, error)
}, key string) (T, bool, error) {
	var doc T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return doc, false, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return doc, true, nil
}

// SaveDoc replaces the singleton stored at key.
func SaveDoc[T any](ctx context.Context, s *Store, key string, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
