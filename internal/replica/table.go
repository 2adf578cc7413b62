package replica

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/store"
)

// Table is the local copy of one entity kind. It implements store.Table.
type Table[T store.Entity] struct {
	r     *Replica
	codec *store.Codec[T]
	rows  map[string]T
}

func newTable[T store.Entity](r *Replica, codec *store.Codec[T]) *Table[T] {
	return &Table[T]{r: r, codec: codec, rows: make(map[string]T)}
}

func (t *Table[T]) Kind() string { return t.codec.Kind }

func (t *Table[T]) Satisfies(e *T, f store.Fields) bool { return t.codec.Satisfies(e, f) }

func (t *Table[T]) Create(ctx context.Context, e *T) (*T, error) {
	id := (*e).Meta().ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		id = u.String()
	}
	now := t.r.Now().UTC()
	created := (*e).Meta().CreatedAt
	if created.IsZero() {
		created = now
	}

	out, err := t.codec.Apply(e, store.Fields{
		"id": id, "version": int64(1), "created_at": created, "updated_at": now,
	})
	if err != nil {
		return nil, err
	}

	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	if _, exists := t.rows[id]; exists {
		return nil, apperr.Validation("%s %s already exists", t.codec.Kind, id)
	}
	prevOutbox := t.r.outbox.clone()
	t.rows[id] = *out
	t.r.outbox.recordCreate(t.codec.Kind, id)
	if err := t.r.persistLocked(ctx); err != nil {
		delete(t.rows, id)
		t.r.outbox = prevOutbox
		return nil, err
	}
	cp := *out
	return &cp, nil
}

func (t *Table[T]) Get(_ context.Context, id string) (*T, error) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	e, ok := t.rows[id]
	if !ok || e.Meta().Deleted {
		return nil, apperr.NotFound(t.codec.Kind, id)
	}
	return &e, nil
}

func (t *Table[T]) Query(_ context.Context, f store.Filter) ([]T, error) {
	for c := range f {
		if !t.codec.Has(c) {
			return nil, apperr.Validation("%s: unknown filter column %q", t.codec.Kind, c)
		}
	}

	t.r.mu.Lock()
	var out []T
	for _, e := range t.rows {
		if t.codec.Matches(&e, f) {
			out = append(out, e)
		}
	}
	t.r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Meta(), out[j].Meta()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (t *Table[T]) Update(ctx context.Context, id string, f store.Fields, version int64) (*T, error) {
	return t.update(ctx, id, f, &version)
}

func (t *Table[T]) ForceUpdate(ctx context.Context, id string, f store.Fields) (*T, error) {
	return t.update(ctx, id, f, nil)
}

func (t *Table[T]) update(ctx context.Context, id string, f store.Fields, version *int64) (*T, error) {
	if err := t.codec.CheckFields(f); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "updating %s", t.codec.Kind)
	}

	t.r.mu.Lock()
	defer t.r.mu.Unlock()

	cur, ok := t.rows[id]
	if !ok || cur.Meta().Deleted {
		return nil, apperr.NotFound(t.codec.Kind, id)
	}
	if p := t.codec.Parent; p != nil {
		parentID := t.codec.ParentID(&cur)
		if status := t.r.statusLocked(p.Kind, parentID); status != p.Status {
			return nil, p.Inactive(parentID, status)
		}
	}
	base := cur.Meta().Version
	if version != nil && *version != base {
		return nil, store.ErrVersionConflict
	}

	changes := make(store.Fields, len(f)+2)
	for k, v := range f {
		changes[k] = v
	}
	changes["version"] = base + 1
	changes["updated_at"] = t.r.Now().UTC()
	out, err := t.codec.Apply(&cur, changes)
	if err != nil {
		return nil, err
	}

	prevOutbox := t.r.outbox.clone()
	t.rows[id] = *out
	t.r.outbox.recordUpdate(t.codec.Kind, id, f, base, version == nil)
	if err := t.r.persistLocked(ctx); err != nil {
		t.rows[id] = cur
		t.r.outbox = prevOutbox
		return nil, err
	}
	cp := *out
	return &cp, nil
}

// snapshot returns the stored entity, tombstoned or not.
func (t *Table[T]) snapshot(id string) (T, bool) {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	e, ok := t.rows[id]
	return e, ok
}

// replaceLocked swaps in rows pulled from the remote. r.mu must be held.
func (t *Table[T]) replaceLocked(rows []T) {
	t.rows = make(map[string]T, len(rows))
	for _, e := range rows {
		t.rows[e.Meta().ID] = e
	}
}

func (t *Table[T]) kind() string { return t.codec.Kind }

func (t *Table[T]) reset() { t.rows = make(map[string]T) }

func (t *Table[T]) marshal() ([]byte, error) {
	list := make([]T, 0, len(t.rows))
	for _, e := range t.rows {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Meta().ID < list[j].Meta().ID })
	return json.Marshal(list)
}

func (t *Table[T]) unmarshal(data []byte) error {
	var list []T
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	t.replaceLocked(list)
	return nil
}
