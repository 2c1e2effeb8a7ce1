// Package repo holds the entity repositories. Each repository owns one or
// more top-level keys of the durable store and applies the merge, seed and
// validation rules of its entity.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"detailcrm/internal/kv"
	"detailcrm/internal/obs"
	"detailcrm/internal/seed"
	"detailcrm/pkg/domain"
)

// Env carries the shared dependencies of every repository.
type Env struct {
	Store   *kv.Store
	Text    *kv.TextStore
	Policy  seed.Policy
	Catalog *seed.Catalog
	Logger  obs.Logger
	Metrics *obs.Metrics
	Events  Broadcaster
	Now     func() time.Time
}

// Broadcaster receives content events. *bus.Bus satisfies it.
type Broadcaster interface {
	Publish(ctx context.Context, kind string, detail any)
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e Env) logger() obs.Logger { return obs.OrNop(e.Logger) }

func (e Env) publish(ctx context.Context, kind string, detail any) {
	if e.Events != nil {
		e.Events.Publish(ctx, kind, detail)
	}
}

func (e Env) catalog() *seed.Catalog {
	if e.Catalog != nil {
		return e.Catalog
	}
	return seed.MustDefault()
}

// NewID returns "<prefix>_<unix millis>_<6 alphanumerics>".
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix)
}

// Patch is a partial record as received from a caller.
type Patch map[string]any

// PatchOf converts any JSON-shaped value into a Patch.
func PatchOf(v any) (Patch, error) {
	switch p := v.(type) {
	case nil:
		return Patch{}, nil
	case Patch:
		return p, nil
	case map[string]any:
		return Patch(p), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, domain.Invalid("encode body: %v", err)
	}
	var out Patch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.Invalid("body must be an object")
	}
	if out == nil {
		out = Patch{}
	}
	return out, nil
}

// ID returns the patch id, or "".
func (p Patch) ID() string {
	s, _ := p["id"].(string)
	return strings.TrimSpace(s)
}

// String returns a string field, or "".
func (p Patch) String(key string) string {
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

// TableOption configures a Table.
type TableOption[T any] func(*Table[T])

// WithSeed sets the rows materialized on first read.
func WithSeed[T any](rows func() []T) TableOption[T] {
	return func(t *Table[T]) { t.seed = rows }
}

// WithoutTimestamps disables createdAt/updatedAt maintenance.
func WithoutTimestamps[T any]() TableOption[T] {
	return func(t *Table[T]) { t.stamps = false }
}

// WithValidator checks a merged record before it is written. idx is the
// position being replaced, or -1 for an insert.
func WithValidator[T any](fn func(rows []T, idx int, rec T) error) TableOption[T] {
	return func(t *Table[T]) { t.validate = fn }
}

// Table is the generic list/upsert/remove repository over one key.
type Table[T any] struct {
	env      Env
	key      string
	entity   string
	prefix   string
	id       func(T) string
	seed     func() []T
	stamps   bool
	validate func(rows []T, idx int, rec T) error
}

// NewTable builds a table at key. id extracts a record's identity; prefix
// is used for generated ids.
func NewTable[T any](env Env, key, entity, prefix string, id func(T) string, opts ...TableOption[T]) *Table[T] {
	t := &Table[T]{env: env, key: key, entity: entity, prefix: prefix, id: id, stamps: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Key returns the storage key.
func (t *Table[T]) Key() string { return t.key }

// List returns every row, bootstrapping seeds per the policy.
func (t *Table[T]) List(ctx context.Context) ([]T, error) {
	rows, err := seed.EnsureTable(ctx, t.env.Store, t.env.Policy, t.key, t.seed)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.key, domain.StorageFailure(err))
	}
	return rows, nil
}

// Find returns the row with id.
func (t *Table[T]) Find(ctx context.Context, id string) (T, bool, error) {
	var zero T
	rows, err := t.List(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, r := range rows {
		if t.id(r) == id {
			return r, true, nil
		}
	}
	return zero, false, nil
}

// Mutate runs fn over the whole table as one serialized read-modify-write.
func (t *Table[T]) Mutate(ctx context.Context, fn func(rows []T) ([]T, error)) error {
	if _, err := t.List(ctx); err != nil {
		return err
	}
	if err := kv.UpdateTable(ctx, t.env.Store, t.key, fn); err != nil {
		return classify(t.key, err)
	}
	return nil
}

// Upsert merges patch onto the row with the same id, or appends a new row.
// Unspecified fields are preserved, createdAt never changes once written and
// updatedAt is refreshed. A patch without id gets a generated one.
func (t *Table[T]) Upsert(ctx context.Context, patch Patch) (T, bool, error) {
	return t.upsert(ctx, patch, false)
}

// Update merges patch onto the existing row id and fails with not_found
// when the id is absent.
func (t *Table[T]) Update(ctx context.Context, id string, patch Patch) (T, error) {
	merged := make(Patch, len(patch)+1)
	for k, v := range patch {
		merged[k] = v
	}
	merged["id"] = id
	rec, _, err := t.upsert(ctx, merged, true)
	return rec, err
}

func (t *Table[T]) upsert(ctx context.Context, patch Patch, mustExist bool) (T, bool, error) {
	var saved T
	var created bool
	now := t.env.now()
	err := t.Mutate(ctx, func(rows []T) ([]T, error) {
		id := patch.ID()
		idx := -1
		if id != "" {
			for i := range rows {
				if t.id(rows[i]) == id {
					idx = i
					break
				}
			}
		}
		if mustExist && idx < 0 {
			return nil, domain.NotFound(t.entity, id)
		}
		base := map[string]any{}
		if idx >= 0 {
			m, err := toMap(rows[idx])
			if err != nil {
				return nil, err
			}
			base = m
		} else if id == "" {
			id = NewID(t.prefix, now)
		}
		createdAt, hadCreated := base["createdAt"]
		for k, v := range patch {
			base[k] = v
		}
		base["id"] = id
		if t.stamps {
			if hadCreated && !zeroTime(createdAt) {
				base["createdAt"] = createdAt
			} else {
				base["createdAt"] = now
			}
			base["updatedAt"] = now
		}
		rec, err := fromMap[T](base)
		if err != nil {
			return nil, err
		}
		if t.validate != nil {
			if err := t.validate(rows, idx, rec); err != nil {
				return nil, err
			}
		}
		if idx >= 0 {
			rows[idx] = rec
		} else {
			rows = append(rows, rec)
			created = true
		}
		saved = rec
		return rows, nil
	})
	return saved, created, err
}

// Remove deletes id. Removing an absent id is not an error; the boolean
// reports whether a row was removed.
func (t *Table[T]) Remove(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := t.Mutate(ctx, func(rows []T) ([]T, error) {
		out := rows[:0]
		for _, r := range rows {
			if t.id(r) == id {
				removed = true
				continue
			}
			out = append(out, r)
		}
		if !removed {
			return nil, kv.ErrSkip
		}
		return out, nil
	})
	return removed, err
}

// RemoveWhere deletes every row for which drop reports true and returns the
// count.
func (t *Table[T]) RemoveWhere(ctx context.Context, drop func(T) bool) (int, error) {
	var n int
	err := t.Mutate(ctx, func(rows []T) ([]T, error) {
		out := rows[:0]
		for _, r := range rows {
			if drop(r) {
				n++
				continue
			}
			out = append(out, r)
		}
		if n == 0 {
			return nil, kv.ErrSkip
		}
		return out, nil
	})
	return n, err
}

func classify(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("write %s: %w", key, domain.StorageFailure(err))
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap[T any](m map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(m)
	if err != nil {
		return out, domain.Invalid("encode record: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.Invalid("record shape: %v", err)
	}
	return out, nil
}

func zeroTime(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || strings.HasPrefix(t, "0001-01-01")
	case time.Time:
		return t.IsZero()
	}
	return false
}

// decodeInto converts a JSON-shaped value into T.
func decodeInto[T any](v any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, domain.Invalid("encode body: %v", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.Invalid("body shape: %v", err)
	}
	return out, nil
}
