package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/model"
)

// ErrVersionConflict is returned by Update when the supplied version does not
// match the stored one. It never leaves the mutation protocol.
var ErrVersionConflict = errors.New("version conflict")

// Entity is any stored type embedding model.Record.
type Entity interface {
	Meta() model.Record
}

// Fields maps column names to new values.
type Fields map[string]any

// Columns returns the field names in sorted order.
func (f Fields) Columns() []string {
	cols := make([]string, 0, len(f))
	for c := range f {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Filter selects entities whose columns equal the given values. Tombstoned
// entities are never returned.
type Filter map[string]any

// Table is the per-entity contract of a backing store. Both the remote SQL
// store and the local replica implement it.
type Table[T Entity] interface {
	Kind() string
	Create(ctx context.Context, e *T) (*T, error)
	// Get returns apperr.ErrNotFound for missing or tombstoned entities.
	Get(ctx context.Context, id string) (*T, error)
	Query(ctx context.Context, f Filter) ([]T, error)
	// Update applies f only if version matches the stored version, returning
	// ErrVersionConflict otherwise. The returned entity has version+1.
	Update(ctx context.Context, id string, f Fields, version int64) (*T, error)
	// ForceUpdate applies f without a version check.
	ForceUpdate(ctx context.Context, id string, f Fields) (*T, error)
	// Satisfies reports whether e already holds every value in f.
	Satisfies(e *T, f Fields) bool
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// recordColumns lead every codec's column list, in this order.
var recordColumns = []string{"id", "version", "deleted", "created_at", "updated_at"}

// Parent makes every update of a child row conditional on the status of the
// row it belongs to. The check runs atomically with the write.
type Parent struct {
	Column string // child column holding the parent id
	Kind   string // parent table
	Status string // required value of the parent's status column
}

// Inactive is the error for a write rejected because the parent row is
// missing, tombstoned or not in the required status.
func (p *Parent) Inactive(parentID, status string) error {
	if status == "" {
		return apperr.InvalidState("%s %s no longer exists", p.Kind, parentID)
	}
	return apperr.InvalidState("%s %s is %s", p.Kind, parentID, status)
}

// Codec maps an entity type to its columns.
type Codec[T Entity] struct {
	Kind    string
	Columns []string
	Scan    func(s Scanner) (*T, error)
	Values  func(e *T) []any

	// Parent, when set, guards updates. Creates are not checked.
	Parent *Parent

	index map[string]int
}

func (c *Codec[T]) withParent(p Parent) *Codec[T] {
	c.Parent = &p
	return c
}

// ParentID returns the parent id held by e, or "" without a Parent.
func (c *Codec[T]) ParentID(e *T) string {
	if c.Parent == nil {
		return ""
	}
	v, _ := c.Value(e, c.Parent.Column)
	id, _ := v.(string)
	return id
}

func newCodec[T Entity](kind string, columns []string, scan func(Scanner) (*T, error), values func(*T) []any) *Codec[T] {
	all := append(append([]string{}, recordColumns...), columns...)
	idx := make(map[string]int, len(all))
	for i, c := range all {
		idx[c] = i
	}
	return &Codec[T]{Kind: kind, Columns: all, Scan: scan, Values: values, index: idx}
}

// Has reports whether col is a column of the entity.
func (c *Codec[T]) Has(col string) bool {
	_, ok := c.index[col]
	return ok
}

// Writable reports whether col may appear in an update.
func (c *Codec[T]) Writable(col string) bool {
	switch col {
	case "id", "version", "created_at", "updated_at":
		return false
	}
	return c.Has(col)
}

// Value returns the current value of col on e.
func (c *Codec[T]) Value(e *T, col string) (any, bool) {
	i, ok := c.index[col]
	if !ok {
		return nil, false
	}
	return c.Values(e)[i], true
}

// CheckFields rejects unknown or read-only columns.
func (c *Codec[T]) CheckFields(f Fields) error {
	if len(f) == 0 {
		return fmt.Errorf("%s: no fields to update", c.Kind)
	}
	for col := range f {
		if !c.Writable(col) {
			return fmt.Errorf("%s: column %q is not writable", c.Kind, col)
		}
	}
	return nil
}

// Apply returns a copy of e with f applied.
func (c *Codec[T]) Apply(e *T, f Fields) (*T, error) {
	vals := c.Values(e)
	for col, v := range f {
		i, ok := c.index[col]
		if !ok {
			return nil, fmt.Errorf("%s: unknown column %q", c.Kind, col)
		}
		vals[i] = Normalize(v)
	}
	return c.Scan(valueRow(vals))
}

// Satisfies reports whether e already holds every value in f.
func (c *Codec[T]) Satisfies(e *T, f Fields) bool {
	if e == nil {
		return false
	}
	for col, want := range f {
		got, ok := c.Value(e, col)
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}

// Matches reports whether e passes filter f.
func (c *Codec[T]) Matches(e *T, f Filter) bool {
	if (*e).Meta().Deleted {
		return false
	}
	return c.Satisfies(e, Fields(f))
}

// Normalize dereferences pointers and converts times to UTC so values compare
// and bind the same way regardless of how the caller built them.
func Normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return nil
		}
		return t.UTC()
	}
	return v
}

// Equal compares two column values after normalization. Integers of
// different widths compare by value; times compare as instants.
func Equal(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if ia, ok := toInt64(a); ok {
		ib, ok := toInt64(b)
		return ok && ia == ib
	}
	return reflect.DeepEqual(a, b)
}

func toInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

// valueRow feeds in-memory values through a codec's Scan func.
type valueRow []any

func (r valueRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: expected %d destinations, got %d", len(r), len(dest))
	}
	for i, d := range dest {
		if err := assign(d, r[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

type sqlScanner interface {
	Scan(src any) error
}

func assign(dest, src any) error {
	if s, ok := dest.(sqlScanner); ok {
		return s.Scan(src)
	}
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination is not a pointer")
	}
	dv = dv.Elem()
	if src == nil {
		dv.Set(reflect.Zero(dv.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(dv.Type()):
		dv.Set(sv)
	case sv.Type().ConvertibleTo(dv.Type()) && sv.Kind() != reflect.String && dv.Kind() != reflect.String:
		dv.Set(sv.Convert(dv.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", src, dv.Type())
	}
	return nil
}
