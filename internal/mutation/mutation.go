// Package mutation implements optimistic-concurrency writes against a
// store.Table. A versioned update that loses a race is resolved by one
// refetch and at most one retry; anything beyond that is surfaced to the
// caller as apperr.ErrConflictExhausted.
package mutation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/metrics"
	"github.com/erazemk/inventura/internal/store"
)

// Protocol carries the shared dependencies of every mutation.
type Protocol struct {
	Logger *slog.Logger
}

// New returns a Protocol that logs through the default slog logger.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) log() *slog.Logger {
	if p == nil || p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Request describes one versioned update.
type Request[T store.Entity] struct {
	ID      string
	Changes store.Fields
	Version int64

	// Satisfied reports whether the refetched entity already reflects the
	// intended change. When nil, the entity must hold every value in Changes.
	Satisfied func(current *T) bool

	// Guard may veto the retry after a conflict, typically because the
	// entity moved to a state the change no longer applies to.
	Guard func(current *T) error

	// Recompute re-derives the changes from the refetched entity before the
	// retry. Used for derived values such as tallies.
	Recompute func(ctx context.Context, current *T) (store.Fields, error)
}

// Apply runs req against t.
func Apply[T store.Entity](ctx context.Context, p *Protocol, t store.Table[T], req Request[T]) (*T, error) {
	kind := t.Kind()

	out, err := t.Update(ctx, req.ID, req.Changes, req.Version)
	if err == nil {
		metrics.RecordMutation(kind, metrics.OutcomeApplied)
		return out, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		metrics.RecordMutation(kind, metrics.OutcomeFailed)
		return nil, err
	}

	current, err := t.Get(ctx, req.ID)
	if err != nil {
		metrics.RecordMutation(kind, metrics.OutcomeFailed)
		return nil, err
	}

	satisfied := req.Satisfied
	if satisfied == nil {
		satisfied = func(cur *T) bool { return t.Satisfies(cur, req.Changes) }
	}
	if satisfied(current) {
		p.log().Debug("conflict already satisfied", "kind", kind, "id", req.ID, "version", (*current).Meta().Version)
		metrics.RecordMutation(kind, metrics.OutcomeSatisfied)
		return current, nil
	}

	if req.Guard != nil {
		if err := req.Guard(current); err != nil {
			metrics.RecordMutation(kind, metrics.OutcomeVetoed)
			return nil, err
		}
	}

	changes := req.Changes
	if req.Recompute != nil {
		changes, err = req.Recompute(ctx, current)
		if err != nil {
			metrics.RecordMutation(kind, metrics.OutcomeFailed)
			return nil, err
		}
		if t.Satisfies(current, changes) {
			metrics.RecordMutation(kind, metrics.OutcomeSatisfied)
			return current, nil
		}
	}

	version := (*current).Meta().Version
	p.log().Info("version conflict, retrying", "kind", kind, "id", req.ID,
		"stale_version", req.Version, "version", version)

	out, err = t.Update(ctx, req.ID, changes, version)
	if errors.Is(err, store.ErrVersionConflict) {
		p.log().Warn("version conflict persisted after retry", "kind", kind, "id", req.ID)
		metrics.RecordMutation(kind, metrics.OutcomeExhausted)
		return nil, apperr.Wrap(apperr.CodeConflictExhausted, err, "%s %s", kind, req.ID)
	}
	if err != nil {
		metrics.RecordMutation(kind, metrics.OutcomeFailed)
		return nil, err
	}
	metrics.RecordMutation(kind, metrics.OutcomeRetried)
	return out, nil
}

// Force applies changes without a version check. Reserved for
// administrative cleanup.
func Force[T store.Entity](ctx context.Context, p *Protocol, t store.Table[T], id string, changes store.Fields) (*T, error) {
	kind := t.Kind()
	out, err := t.ForceUpdate(ctx, id, changes)
	if err != nil {
		metrics.RecordMutation(kind, metrics.OutcomeFailed)
		return nil, err
	}
	p.log().Warn("forced update", "kind", kind, "id", id, "forced", true,
		"fields", changes.Columns(), "version", (*out).Meta().Version)
	metrics.RecordMutation(kind, metrics.OutcomeForced)
	return out, nil
}

// Create inserts e.
func Create[T store.Entity](ctx context.Context, p *Protocol, t store.Table[T], e *T) (*T, error) {
	kind := t.Kind()
	out, err := t.Create(ctx, e)
	if err != nil {
		metrics.RecordMutation(kind, metrics.OutcomeFailed)
		return nil, err
	}
	p.log().Debug("created", "kind", kind, "id", (*out).Meta().ID)
	metrics.RecordMutation(kind, metrics.OutcomeCreated)
	return out, nil
}
