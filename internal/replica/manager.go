package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/store"
)

var (
	_ store.Table[model.Equipment]          = (*Table[model.Equipment])(nil)
	_ store.Table[model.EquipmentGroup]     = (*Table[model.EquipmentGroup])(nil)
	_ store.Table[model.Holder]             = (*Table[model.Holder])(nil)
	_ store.Table[model.Session]            = (*Table[model.Session])(nil)
	_ store.Table[model.AccountabilityItem] = (*Table[model.AccountabilityItem])(nil)
)

// link pairs a local table with its remote counterpart.
type link interface {
	flush(ctx context.Context, p *mutation.Protocol, e Entry) error
	fetch(ctx context.Context) (apply func(), err error)
}

type tableLink[T store.Entity] struct {
	local  *Table[T]
	remote store.Table[T]

	// recompute, when set, re-derives some of the flushed fields after a
	// conflict. Fields it returns that were not queued are ignored.
	recompute func(ctx context.Context, cur *T) (store.Fields, error)

	// guard, when set, vetoes the retry after a conflict.
	guard func(cur *T) error
}

func (l *tableLink[T]) flush(ctx context.Context, p *mutation.Protocol, e Entry) error {
	cur, ok := l.local.snapshot(e.ID)
	if !ok {
		return nil
	}

	if e.Op == OpCreate {
		if cur.Meta().Deleted {
			return nil
		}
		_, err := l.remote.Get(ctx, e.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		_, err = mutation.Create(ctx, p, l.remote, &cur)
		return err
	}

	fields := make(store.Fields, len(e.Columns))
	for _, c := range e.Columns {
		v, ok := l.local.codec.Value(&cur, c)
		if !ok {
			return fmt.Errorf("%s: unknown outbox column %q", e.Kind, c)
		}
		fields[c] = v
	}
	if e.Force {
		_, err := mutation.Force(ctx, p, l.remote, e.ID, fields)
		return err
	}
	req := mutation.Request[T]{ID: e.ID, Changes: fields, Version: e.BaseVersion, Guard: l.guard}
	if l.recompute != nil {
		// Derived values are always recomputed after a conflict, even when
		// the remote happens to hold the same number.
		req.Satisfied = func(*T) bool { return false }
		req.Recompute = func(ctx context.Context, cur *T) (store.Fields, error) {
			derived, err := l.recompute(ctx, cur)
			if err != nil {
				return nil, err
			}
			merged := make(store.Fields, len(fields))
			for k, v := range fields {
				merged[k] = v
				if d, ok := derived[k]; ok {
					merged[k] = d
				}
			}
			return merged, nil
		}
	}
	_, err := mutation.Apply(ctx, p, l.remote, req)
	return err
}

func (l *tableLink[T]) fetch(ctx context.Context) (func(), error) {
	rows, err := l.remote.Query(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	return func() { l.local.replaceLocked(rows) }, nil
}

// Manager moves state between the replica and the remote store. It is the
// connectivity lifecycle: Start runs when going online, Stop when going
// offline.
type Manager struct {
	replica  *Replica
	protocol *mutation.Protocol
	links    map[string]link
	order    []string
}

// NewManager links every replica table to its remote table.
func NewManager(r *Replica, remote *store.Remote, p *mutation.Protocol) *Manager {
	m := &Manager{replica: r, protocol: p, links: make(map[string]link)}
	m.add(model.KindEquipment, &tableLink[model.Equipment]{local: r.Equipment, remote: remote.Equipment})
	m.add(model.KindGroup, &tableLink[model.EquipmentGroup]{local: r.Groups, remote: remote.Groups})
	m.add(model.KindHolder, &tableLink[model.Holder]{local: r.Holders, remote: remote.Holders})
	m.add(model.KindSession, &tableLink[model.Session]{
		local:     r.Sessions,
		remote:    remote.Sessions,
		recompute: recountSession(remote.Items),
		guard:     sessionStillActive,
	})
	m.add(model.KindItem, &tableLink[model.AccountabilityItem]{local: r.Items, remote: remote.Items})
	return m
}

func (m *Manager) add(kind string, l link) {
	m.links[kind] = l
	m.order = append(m.order, kind)
}

// recountSession recounts a session's accounted items against the remote
// so an offline tally never overwrites newer remote progress with a stale
// number.
func recountSession(items store.Table[model.AccountabilityItem]) func(context.Context, *model.Session) (store.Fields, error) {
	return func(ctx context.Context, s *model.Session) (store.Fields, error) {
		accounted, err := items.Query(ctx, store.Filter{"session_id": s.ID, "status": model.ItemAccountedFor})
		if err != nil {
			return nil, err
		}
		return store.Fields{"accounted_for_count": len(accounted)}, nil
	}
}

// sessionStillActive rejects offline session writes once the remote copy has
// been completed by someone else.
func sessionStillActive(s *model.Session) error {
	if s.Status != model.SessionActive {
		return apperr.InvalidState("session %s was %s while offline", s.ID, s.Status)
	}
	return nil
}

// Replica returns the managed replica.
func (m *Manager) Replica() *Replica { return m.replica }

// Start flushes the outbox and then pulls a fresh copy of every table.
func (m *Manager) Start(ctx context.Context) error {
	slog.Info("replica sync starting", "pending", len(m.replica.Pending()))
	if err := m.flush(ctx); err != nil {
		return err
	}
	if err := m.pull(ctx); err != nil {
		return err
	}
	slog.Info("replica sync finished")
	return nil
}

// Stop takes a last snapshot before going offline. A failed pull is logged
// and the previous copy is kept.
func (m *Manager) Stop(ctx context.Context) error {
	if len(m.replica.Pending()) == 0 {
		if err := m.pull(ctx); err != nil {
			slog.Warn("replica pull before going offline failed, keeping previous copy", "error", err)
		}
	}
	return m.replica.Persist(ctx)
}

// Clear empties the named replica buckets.
func (m *Manager) Clear(ctx context.Context, kinds ...string) error {
	return m.replica.Clear(ctx, kinds...)
}

// Resync flushes and pulls on demand.
func (m *Manager) Resync(ctx context.Context) error {
	return m.Start(ctx)
}

// flush sends queued writes in order. Entries the remote rejects for good
// (conflict after retry, entity gone, session completed meanwhile) are
// logged and dropped; the pull that follows restores the remote truth. Any other error stops the flush and
// leaves the rest queued.
func (m *Manager) flush(ctx context.Context) error {
	for _, e := range m.replica.Pending() {
		l, ok := m.links[e.Kind]
		if !ok {
			return fmt.Errorf("unknown outbox kind %q", e.Kind)
		}

		err := l.flush(ctx, m.protocol, e)
		switch {
		case err == nil:
		case errors.Is(err, apperr.ErrConflictExhausted),
			errors.Is(err, apperr.ErrNotFound),
			errors.Is(err, apperr.ErrInvalidState),
			errors.Is(err, apperr.ErrValidation):
			slog.Error("dropping offline write rejected by remote",
				"kind", e.Kind, "id", e.ID, "op", e.Op, "error", err)
		default:
			if pErr := m.replica.Persist(ctx); pErr != nil {
				slog.Error("persisting replica", "error", pErr)
			}
			return fmt.Errorf("flushing %s %s: %w", e.Kind, e.ID, err)
		}

		m.replica.mu.Lock()
		m.replica.outbox.remove(e.Seq)
		m.replica.mu.Unlock()
	}
	return m.replica.Persist(ctx)
}

// pull fetches every table concurrently and swaps them in together.
func (m *Manager) pull(ctx context.Context) error {
	applies := make([]func(), len(m.order))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range m.order {
		l := m.links[kind]
		g.Go(func() error {
			apply, err := l.fetch(gctx)
			if err != nil {
				return fmt.Errorf("pulling %s: %w", kind, err)
			}
			applies[i] = apply
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.replica.mu.Lock()
	defer m.replica.mu.Unlock()
	if len(m.replica.outbox.Entries) > 0 {
		return apperr.InvalidState("replica has unsent writes, not replacing local state")
	}
	for _, apply := range applies {
		apply()
	}
	return m.replica.persistLocked(ctx)
}
