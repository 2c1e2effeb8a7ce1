package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"detailcrm/pkg/domain"
)

// TextStore is the plain string store for small flat structures (current
// user, document archive index, completed jobs, adjustments). Reads are
// served from memory; writes go through to the durable store under
// domain.TextKeyPrefix so other contexts see them after Hydrate.
type TextStore struct {
	store *Store

	mu    sync.RWMutex
	items map[string]string
}

// NewTextStore returns an empty text store over s.
func NewTextStore(s *Store) *TextStore {
	return &TextStore{store: s, items: make(map[string]string)}
}

// Hydrate reloads every text item from the durable store.
func (t *TextStore) Hydrate(ctx context.Context) error {
	keys, err := t.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("hydrate text store: %w", err)
	}
	items := make(map[string]string)
	for _, k := range keys {
		name, ok := strings.CutPrefix(k, domain.TextKeyPrefix)
		if !ok {
			continue
		}
		raw, found, err := t.store.Get(ctx, k)
		if err != nil {
			return fmt.Errorf("hydrate %s: %w", name, err)
		}
		if !found {
			continue
		}
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		items[name] = v
	}
	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
	return nil
}

// Refresh reloads a single item, typically after a storage event for it.
func (t *TextStore) Refresh(ctx context.Context, name string) error {
	raw, found, err := t.store.Get(ctx, domain.TextKeyPrefix+name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !found {
		delete(t.items, name)
		return nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	t.items[name] = v
	return nil
}

// GetItem returns the cached item.
func (t *TextStore) GetItem(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[name]
	return v, ok
}

// SetItem stores value and writes it through. The cache is only updated
// once the durable write succeeded.
func (t *TextStore) SetItem(ctx context.Context, name, value string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := t.store.Set(ctx, domain.TextKeyPrefix+name, raw); err != nil {
		return err
	}
	t.mu.Lock()
	t.items[name] = value
	t.mu.Unlock()
	return nil
}

// RemoveItem deletes name.
func (t *TextStore) RemoveItem(ctx context.Context, name string) error {
	if err := t.store.Remove(ctx, domain.TextKeyPrefix+name); err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.items, name)
	t.mu.Unlock()
	return nil
}

// GetJSON decodes the item name into dst. It reports false when the item
// is absent.
func (t *TextStore) GetJSON(name string, dst any) (bool, error) {
	v, ok := t.GetItem(name)
	if !ok || v == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(v), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// SetJSON encodes v as the item name.
func (t *TextStore) SetJSON(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return t.SetItem(ctx, name, string(raw))
}
