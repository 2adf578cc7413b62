// Package replica keeps a local copy of the entity tables for offline work.
// State lives in memory and is snapshotted to a SQLite file as JSON after
// every write; writes made offline are queued in an outbox and flushed to
// the remote store when the process goes back online.
package replica

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/store"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS state (
    bucket  TEXT PRIMARY KEY,
    payload BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`

// OutboxBucket names the outbox in the snapshot and in Clear.
const OutboxBucket = "outbox"

// bucket is the type-erased view of a Table used for snapshots.
type bucket interface {
	kind() string
	marshal() ([]byte, error)
	unmarshal([]byte) error
	reset()
}

// Replica is the local store.
type Replica struct {
	db   *db.DB
	path string

	// Now stamps created_at and updated_at. Tests may replace it.
	Now func() time.Time

	mu      sync.Mutex
	outbox  outbox
	buckets []bucket

	Equipment *Table[model.Equipment]
	Groups    *Table[model.EquipmentGroup]
	Holders   *Table[model.Holder]
	Sessions  *Table[model.Session]
	Items     *Table[model.AccountabilityItem]
}

// Open opens or creates the replica file at path and loads its snapshot.
func Open(path string) (*Replica, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating replica directory: %w", err)
		}
	}
	conn, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replica: %w", err)
	}
	for _, stmt := range strings.Split(localSchema, ";") {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("creating replica schema: %w", err)
		}
	}

	r := &Replica{db: conn, path: path, Now: time.Now}
	r.Equipment = newTable(r, store.EquipmentCodec)
	r.Groups = newTable(r, store.GroupCodec)
	r.Holders = newTable(r, store.HolderCodec)
	r.Sessions = newTable(r, store.SessionCodec)
	r.Items = newTable(r, store.ItemCodec)
	r.buckets = []bucket{r.Equipment, r.Groups, r.Holders, r.Sessions, r.Items}

	if err := r.load(); err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the replica file.
func (r *Replica) Close() error {
	return r.db.Close()
}

// Path returns the replica file path.
func (r *Replica) Path() string { return r.path }

// GetSetting reads a local setting.
func (r *Replica) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return store.GetSetting(ctx, r.db, key)
}

// SetSetting writes a local setting.
func (r *Replica) SetSetting(ctx context.Context, key, value string) error {
	return store.SetSetting(ctx, r.db, key, value)
}

// statusLocked returns the status of a live row that other rows depend on,
// or "" if there is none. r.mu must be held.
func (r *Replica) statusLocked(kind, id string) string {
	switch kind {
	case model.KindSession:
		if s, ok := r.Sessions.rows[id]; ok && !s.Deleted {
			return s.Status
		}
	}
	return ""
}

// Pending returns a copy of the queued outbox entries in flush order.
func (r *Replica) Pending() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outbox.entries()
}

func (r *Replica) load() error {
	rows, err := r.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()

	byKind := make(map[string]bucket, len(r.buckets))
	for _, b := range r.buckets {
		byKind[b.kind()] = b
	}
	for rows.Next() {
		var (
			name    string
			payload []byte
		)
		if err := rows.Scan(&name, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if name == OutboxBucket {
			if err := json.Unmarshal(payload, &r.outbox); err != nil {
				return fmt.Errorf("decode outbox: %w", err)
			}
			continue
		}
		b, ok := byKind[name]
		if !ok {
			continue
		}
		if err := b.unmarshal(payload); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return rows.Err()
}

// persistLocked snapshots every bucket. r.mu must be held.
func (r *Replica) persistLocked(ctx context.Context) (retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persisting replica: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	write := func(name string, data []byte) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO state(bucket, payload) VALUES(?, ?) ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`,
			name, data)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
		return nil
	}
	for _, b := range r.buckets {
		data, err := b.marshal()
		if err != nil {
			return fmt.Errorf("encode %s: %w", b.kind(), err)
		}
		if err := write(b.kind(), data); err != nil {
			return err
		}
	}
	data, err := json.Marshal(&r.outbox)
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}
	if err := write(OutboxBucket, data); err != nil {
		return err
	}
	return tx.Commit()
}

// Persist snapshots the current state to disk.
func (r *Replica) Persist(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked(ctx)
}

// Clear empties the named buckets, or every bucket and the outbox when no
// kind is given.
func (r *Replica) Clear(ctx context.Context, kinds ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(kinds) == 0 {
		for _, b := range r.buckets {
			b.reset()
		}
		r.outbox = outbox{}
		return r.persistLocked(ctx)
	}

	for _, k := range kinds {
		if k == OutboxBucket {
			r.outbox = outbox{}
			continue
		}
		found := false
		for _, b := range r.buckets {
			if b.kind() == k {
				b.reset()
				r.outbox.dropKind(k)
				found = true
			}
		}
		if !found {
			return apperr.Validation("unknown replica bucket %q", k)
		}
	}
	return r.persistLocked(ctx)
}
