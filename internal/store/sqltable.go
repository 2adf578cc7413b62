package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/db"
)

// SQLTable stores one entity kind in a SQL table named after its kind.
type SQLTable[T Entity] struct {
	db    *db.DB
	codec *Codec[T]

	// Now stamps created_at and updated_at. Tests may replace it.
	Now func() time.Time
}

// NewSQLTable returns a table for codec backed by conn.
func NewSQLTable[T Entity](conn *db.DB, codec *Codec[T]) *SQLTable[T] {
	return &SQLTable[T]{db: conn, codec: codec, Now: time.Now}
}

func (t *SQLTable[T]) Kind() string { return t.codec.Kind }

func (t *SQLTable[T]) Satisfies(e *T, f Fields) bool { return t.codec.Satisfies(e, f) }

func (t *SQLTable[T]) selectSQL() string {
	return "SELECT " + strings.Join(t.codec.Columns, ", ") + " FROM " + t.codec.Kind
}

// Create inserts e. An empty ID is replaced with a time-ordered UUID, the
// version starts at 1 and a zero CreatedAt is stamped with the current time.
func (t *SQLTable[T]) Create(ctx context.Context, e *T) (*T, error) {
	vals := t.codec.Values(e)
	now := t.Now().UTC()
	if vals[0] == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generating %s id: %w", t.codec.Kind, err)
		}
		vals[0] = id.String()
	}
	vals[1] = int64(1)
	if ts, _ := vals[3].(time.Time); ts.IsZero() {
		vals[3] = now
	}
	vals[4] = now
	for i := range vals {
		vals[i] = Normalize(vals[i])
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.codec.Kind, strings.Join(t.codec.Columns, ", "), placeholders)
	if _, err := t.db.ExecContext(ctx, query, vals...); err != nil {
		return nil, classify(fmt.Errorf("creating %s: %w", t.codec.Kind, err))
	}
	return t.Get(ctx, vals[0].(string))
}

// Get returns the live entity with id.
func (t *SQLTable[T]) Get(ctx context.Context, id string) (*T, error) {
	e, err := t.get(ctx, t.db, id)
	if err != nil {
		return nil, err
	}
	if e == nil || (*e).Meta().Deleted {
		return nil, apperr.NotFound(t.codec.Kind, id)
	}
	return e, nil
}

// get returns the row with id, tombstoned or not, or nil if there is none.
func (t *SQLTable[T]) get(ctx context.Context, q db.Querier, id string) (*T, error) {
	e, err := t.codec.Scan(q.QueryRowContext(ctx, t.selectSQL()+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("getting %s: %w", t.codec.Kind, err))
	}
	return e, nil
}

// Query returns live entities matching f, oldest first.
func (t *SQLTable[T]) Query(ctx context.Context, f Filter) ([]T, error) {
	cols := Fields(f).Columns()
	where := []string{"deleted = ?"}
	args := []any{false}
	for _, c := range cols {
		if !t.codec.Has(c) {
			return nil, apperr.Validation("%s: unknown filter column %q", t.codec.Kind, c)
		}
		where = append(where, c+" = ?")
		args = append(args, Normalize(f[c]))
	}

	rows, err := t.db.QueryContext(ctx,
		t.selectSQL()+" WHERE "+strings.Join(where, " AND ")+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, classify(fmt.Errorf("querying %s: %w", t.codec.Kind, err))
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		e, err := t.codec.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", t.codec.Kind, err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("querying %s: %w", t.codec.Kind, err))
	}
	return out, nil
}

// Update applies f if the stored version equals version.
func (t *SQLTable[T]) Update(ctx context.Context, id string, f Fields, version int64) (*T, error) {
	return t.update(ctx, id, f, &version)
}

// ForceUpdate applies f whatever the stored version.
func (t *SQLTable[T]) ForceUpdate(ctx context.Context, id string, f Fields) (*T, error) {
	return t.update(ctx, id, f, nil)
}

func (t *SQLTable[T]) update(ctx context.Context, id string, f Fields, version *int64) (*T, error) {
	if err := t.codec.CheckFields(f); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "updating %s", t.codec.Kind)
	}

	cols := f.Columns()
	set := make([]string, 0, len(cols)+2)
	args := make([]any, 0, len(cols)+4)
	for _, c := range cols {
		set = append(set, c+" = ?")
		args = append(args, Normalize(f[c]))
	}
	set = append(set, "version = version + 1", "updated_at = ?")
	args = append(args, t.Now().UTC(), id, false)

	query := "UPDATE " + t.codec.Kind + " SET " + strings.Join(set, ", ") + " WHERE id = ? AND deleted = ?"
	if version != nil {
		query += " AND version = ?"
		args = append(args, *version)
	}
	if p := t.codec.Parent; p != nil {
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM %[1]s WHERE %[1]s.id = %[2]s.%[3]s AND %[1]s.status = ? AND %[1]s.deleted = ?)",
			p.Kind, t.codec.Kind, p.Column)
		args = append(args, p.Status, false)
	}

	var out *T
	err := t.db.RunInTx(ctx, func(tx *db.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating %s: %w", t.codec.Kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("updating %s: %w", t.codec.Kind, err)
		}

		cur, err := t.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == nil || (n == 0 && (*cur).Meta().Deleted) {
			return apperr.NotFound(t.codec.Kind, id)
		}
		if n == 0 {
			if err := t.checkParent(ctx, tx, cur); err != nil {
				return err
			}
			return ErrVersionConflict
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// checkParent reports why an update of e matched no row when the parent
// status is to blame.
func (t *SQLTable[T]) checkParent(ctx context.Context, q db.Querier, e *T) error {
	p := t.codec.Parent
	if p == nil {
		return nil
	}
	parentID := t.codec.ParentID(e)
	var status string
	err := q.QueryRowContext(ctx,
		"SELECT status FROM "+p.Kind+" WHERE id = ? AND deleted = ?", parentID, false).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return p.Inactive(parentID, "")
	}
	if err != nil {
		return fmt.Errorf("checking %s %s: %w", p.Kind, parentID, err)
	}
	if status != p.Status {
		return p.Inactive(parentID, status)
	}
	return nil
}

// classify maps connection failures to NETWORK_UNAVAILABLE. Errors that
// already carry a code, and version conflicts, pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) || errors.Is(err, ErrVersionConflict) {
		return err
	}

	var (
		netErr  net.Error
		connErr *pgconn.ConnectError
	)
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) || errors.As(err, &connErr) {
		return apperr.Wrap(apperr.CodeNetworkUnavailable, err, "remote store unreachable")
	}
	return err
}
