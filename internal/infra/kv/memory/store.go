// Package memory implements an in-memory durable store adapter for tests
// and ephemeral environments.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"detailcrm/pkg/domain"
)

var _ domain.KVStore = (*Store)(nil)

// Store keeps documents in process memory. Values are copied on the way in
// and out so callers can never alias stored bytes.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewStore returns an empty in-memory store.
func NewStore() *Store { return &Store{docs: make(map[string][]byte)} }

// Driver reports the memory driver.
func (s *Store) Driver() domain.KVDriver { return domain.KVMemory }

// Get returns a copy of the document stored at key.
func (s *Store) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// Set stores a compacted copy of value.
func (s *Store) Set(_ context.Context, key string, value json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return fmt.Errorf("memory set %s: %w", key, err)
	}
	s.mu.Lock()
	s.docs[key] = buf.Bytes()
	s.mu.Unlock()
	return nil
}

// Remove deletes key if present.
func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.docs, key)
	s.mu.Unlock()
	return nil
}

// Keys lists keys in ascending order.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

// Clear drops every document.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	s.docs = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
