// Package memory is the in-process archive driver used by tests and
// ephemeral deployments.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"detailcrm/internal/archive/core"
)

type entry struct {
	obj  core.Object
	data []byte
}

// Store keeps archived documents in memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
	now  func() time.Time
}

// New returns an empty store.
func New() *Store { return &Store{objs: make(map[string]entry), now: time.Now} }

// Driver returns core.DriverMemory.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a document under a new key.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Object, error) {
	if strings.TrimSpace(key) == "" {
		return core.Object{}, fmt.Errorf("empty key")
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Object{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return core.Object{}, fmt.Errorf("%s: %w", key, core.ErrExists)
	}
	sum := md5.Sum(b)
	obj := core.Object{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: s.now().UTC(),
	}
	s.objs[key] = entry{obj: obj, data: b}
	return copyObject(obj), nil
}

// Get returns a document and a reader over a private copy of its bytes.
func (s *Store) Get(_ context.Context, key string) (core.Object, io.ReadCloser, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, nil, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	data := append([]byte(nil), e.data...)
	return copyObject(e.obj), io.NopCloser(bytes.NewReader(data)), nil
}

// Head returns metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Object, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, fmt.Errorf("%s: %w", key, core.ErrNotFound)
	}
	return copyObject(e.obj), nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

// List returns documents under prefix sorted by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Object, 0, len(s.objs))
	for k, e := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyObject(e.obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Link is unsupported in memory.
func (s *Store) Link(context.Context, string, core.LinkOptions) (string, error) {
	return "", core.ErrUnsupported
}

func copyObject(o core.Object) core.Object {
	o.Metadata = core.CloneMetadata(o.Metadata)
	return o
}
