// Package accountability runs accountability sessions: opening a session over
// selected equipment, marking items accounted for directly or through holder
// claims, and completing the session into a tallied summary.
package accountability

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/archive"
	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/store"
)

// Engine implements the session state machine on top of the mutation
// protocol. It holds no per-session state; see Active for that.
type Engine struct {
	data     *data.Access
	protocol *mutation.Protocol
	archiver archive.Archiver

	// Now stamps verification and completion times. Tests may replace it.
	Now func() time.Time
}

// New returns an Engine. archiver may be nil.
func New(d *data.Access, p *mutation.Protocol, archiver archive.Archiver) *Engine {
	return &Engine{data: d, protocol: p, archiver: archiver, Now: time.Now}
}

func (e *Engine) now() time.Time { return e.Now().UTC() }

func requireRole(actor model.Actor, role string) error {
	if !model.RoleAtLeast(actor.Role, role) {
		return apperr.New(apperr.CodeUnauthorized, "role %q cannot perform this operation", actor.Role)
	}
	return nil
}

func requireUnit(actor model.Actor, unitID string) error {
	if actor.UnitID != unitID {
		return apperr.New(apperr.CodeUnauthorized, "unit %q is not the caller's unit", unitID)
	}
	return nil
}

func requireActive(s *model.Session) error {
	if s.Status != model.SessionActive {
		return apperr.InvalidState("session %s is %s", s.ID, s.Status)
	}
	return nil
}

// activeSession loads a session and checks that it belongs to the caller's
// unit and is still ACTIVE.
func (e *Engine) activeSession(ctx context.Context, actor model.Actor, id string) (*model.Session, error) {
	s, err := e.data.Sessions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireUnit(actor, s.UnitID); err != nil {
		return nil, err
	}
	if err := requireActive(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Start opens a session over equipmentIDs and returns a live view of it.
func (e *Engine) Start(ctx context.Context, actor model.Actor, equipmentIDs []string) (*Active, error) {
	if err := requireRole(actor, model.RoleSupervisor); err != nil {
		return nil, err
	}
	if len(equipmentIDs) == 0 {
		return nil, apperr.Validation("no equipment selected")
	}
	seen := make(map[string]bool, len(equipmentIDs))
	for _, id := range equipmentIDs {
		if id == "" {
			return nil, apperr.Validation("empty equipment id")
		}
		if seen[id] {
			return nil, apperr.Validation("equipment %s selected twice", id)
		}
		seen[id] = true
	}

	equipment := e.data.Equipment()
	for _, id := range equipmentIDs {
		eq, err := equipment.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := requireUnit(actor, eq.UnitID); err != nil {
			return nil, err
		}
	}

	session, err := mutation.Create(ctx, e.protocol, e.data.Sessions(), &model.Session{
		UnitID:      actor.UnitID,
		ConductedBy: actor.UserID,
		Status:      model.SessionActive,
		StartedAt:   e.now(),
		ItemCount:   len(equipmentIDs),
	})
	if err != nil {
		return nil, err
	}

	items := make([]model.AccountabilityItem, 0, len(equipmentIDs))
	itemTable := e.data.Items()
	for _, id := range equipmentIDs {
		it, err := mutation.Create(ctx, e.protocol, itemTable, &model.AccountabilityItem{
			SessionID:          session.ID,
			EquipmentID:        id,
			Status:             model.ItemNotAccountedFor,
			VerificationMethod: model.MethodDirect,
		})
		if err != nil {
			e.abandon(ctx, session, items)
			return nil, err
		}
		items = append(items, *it)
	}

	slog.Info("session started", "session_id", session.ID, "unit_id", actor.UnitID,
		"conducted_by", actor.UserID, "items", len(items))
	return e.newActive(actor, *session, items), nil
}

// abandon tombstones a session whose items could not all be created, along
// with the items that were.
func (e *Engine) abandon(ctx context.Context, session *model.Session, items []model.AccountabilityItem) {
	tombstone := store.Fields{"deleted": true}
	for _, it := range items {
		if _, err := mutation.Force(ctx, e.protocol, e.data.Items(), it.ID, tombstone); err != nil {
			slog.Error("abandoning partial session item", "session_id", session.ID, "item_id", it.ID, "error", err)
		}
	}
	if _, err := mutation.Force(ctx, e.protocol, e.data.Sessions(), session.ID, tombstone); err != nil {
		slog.Error("abandoning partial session", "session_id", session.ID, "error", err)
		return
	}
	slog.Warn("session start failed, partial session removed", "session_id", session.ID, "items_created", len(items))
}

// Resume reopens the view of an ACTIVE session.
func (e *Engine) Resume(ctx context.Context, actor model.Actor, sessionID string) (*Active, error) {
	s, err := e.activeSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	items, err := e.data.Items().Query(ctx, store.Filter{"session_id": s.ID})
	if err != nil {
		return nil, err
	}
	return e.newActive(actor, *s, items), nil
}

// Get returns a session and its items without checking its status.
func (e *Engine) Get(ctx context.Context, actor model.Actor, sessionID string) (*model.Session, []model.AccountabilityItem, error) {
	s, err := e.data.Sessions().Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := requireUnit(actor, s.UnitID); err != nil {
		return nil, nil, err
	}
	items, err := e.data.Items().Query(ctx, store.Filter{"session_id": s.ID})
	if err != nil {
		return nil, nil, err
	}
	return s, items, nil
}

// MarkAccountedFor marks an item accounted for and recounts its session.
// Marking an item that is already accounted for succeeds without writing.
func (e *Engine) MarkAccountedFor(ctx context.Context, actor model.Actor, itemID, method string) (*model.AccountabilityItem, *model.Session, error) {
	if err := requireRole(actor, model.RoleSupervisor); err != nil {
		return nil, nil, err
	}
	if method == "" {
		method = model.MethodDirect
	}
	if method != model.MethodDirect && method != model.MethodSelfService {
		return nil, nil, apperr.Validation("unknown verification method %q", method)
	}

	items := e.data.Items()
	it, err := items.Get(ctx, itemID)
	if err != nil {
		return nil, nil, err
	}
	session, err := e.activeSession(ctx, actor, it.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if it.Status == model.ItemAccountedFor {
		return it, session, nil
	}

	changes := store.Fields{
		"status":              model.ItemAccountedFor,
		"verification_method": method,
		"verified_by":         actor.UserID,
		"verified_at":         e.now(),
	}
	if it.Status == model.ItemVerificationPending {
		changes["confirmation_status"] = model.ConfirmationConfirmed
		changes["confirmed_by"] = actor.UserID
	}

	updated, err := mutation.Apply(ctx, e.protocol, items, mutation.Request[model.AccountabilityItem]{
		ID:      it.ID,
		Changes: changes,
		Version: it.Version,
		Satisfied: func(cur *model.AccountabilityItem) bool {
			return cur.Status == model.ItemAccountedFor
		},
		Guard: func(cur *model.AccountabilityItem) error {
			if cur.Status != model.ItemNotAccountedFor && cur.Status != model.ItemVerificationPending {
				return apperr.InvalidState("item %s is %s", cur.ID, cur.Status)
			}
			return e.stillActive(ctx, cur.SessionID)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	session, err = e.recount(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("item accounted for", "session_id", session.ID, "item_id", updated.ID,
		"method", method, "accounted_for", session.AccountedForCount)
	return updated, session, nil
}

// stillActive refetches the session and fails if it has been completed.
func (e *Engine) stillActive(ctx context.Context, sessionID string) error {
	s, err := e.data.Sessions().Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return requireActive(s)
}

func (e *Engine) countAccounted(ctx context.Context, sessionID string) (int, error) {
	accounted, err := e.data.Items().Query(ctx, store.Filter{
		"session_id": sessionID,
		"status":     model.ItemAccountedFor,
	})
	if err != nil {
		return 0, err
	}
	return len(accounted), nil
}

// recount sets the session's accounted-for count to the number of its
// ACCOUNTED_FOR items, starting from the caller's last-known version.
func (e *Engine) recount(ctx context.Context, s *model.Session) (*model.Session, error) {
	n, err := e.countAccounted(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	if s.AccountedForCount == n {
		return s, nil
	}
	return mutation.Apply(ctx, e.protocol, e.data.Sessions(), mutation.Request[model.Session]{
		ID:        s.ID,
		Changes:   store.Fields{"accounted_for_count": n},
		Version:   s.Version,
		Satisfied: func(*model.Session) bool { return false },
		Guard: func(cur *model.Session) error {
			return requireActive(cur)
		},
		Recompute: func(ctx context.Context, cur *model.Session) (store.Fields, error) {
			n, err := e.countAccounted(ctx, cur.ID)
			if err != nil {
				return nil, err
			}
			return store.Fields{"accounted_for_count": n}, nil
		},
	})
}

// Complete closes an ACTIVE session and returns its summary. The summary is
// archived when an archiver is configured; archive failures are logged.
func (e *Engine) Complete(ctx context.Context, actor model.Actor, sessionID string) (*model.Summary, error) {
	if err := requireRole(actor, model.RoleSupervisor); err != nil {
		return nil, err
	}
	s, err := e.activeSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}

	items, err := e.data.Items().Query(ctx, store.Filter{"session_id": s.ID})
	if err != nil {
		return nil, err
	}
	tallies, accounted, err := e.tally(ctx, items)
	if err != nil {
		return nil, err
	}

	completedAt := e.now()
	done, err := mutation.Apply(ctx, e.protocol, e.data.Sessions(), mutation.Request[model.Session]{
		ID: s.ID,
		Changes: store.Fields{
			"status":              model.SessionCompleted,
			"completed_at":        completedAt,
			"accounted_for_count": accounted,
		},
		Version: s.Version,
		Guard: func(cur *model.Session) error {
			return requireActive(cur)
		},
		Recompute: func(ctx context.Context, cur *model.Session) (store.Fields, error) {
			n, err := e.countAccounted(ctx, cur.ID)
			if err != nil {
				return nil, err
			}
			return store.Fields{
				"status":              model.SessionCompleted,
				"completed_at":        completedAt,
				"accounted_for_count": n,
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	if done.AccountedForCount != accounted {
		// Items changed between the tally and the write; tally again.
		items, err = e.data.Items().Query(ctx, store.Filter{"session_id": s.ID})
		if err != nil {
			return nil, err
		}
		if tallies, accounted, err = e.tally(ctx, items); err != nil {
			return nil, err
		}
	}

	summary := model.Summary{
		SessionID:       done.ID,
		UnitID:          done.UnitID,
		ConductedBy:     done.ConductedBy,
		StartedAt:       done.StartedAt,
		CompletedAt:     completedAt,
		ItemCount:       len(items),
		AccountedFor:    accounted,
		NotAccountedFor: len(items) - accounted,
		Tallies:         tallies,
	}
	if done.CompletedAt != nil {
		summary.CompletedAt = *done.CompletedAt
	}

	slog.Info("session completed", "session_id", done.ID, "accounted_for", accounted,
		"not_accounted_for", summary.NotAccountedFor)

	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, summary); err != nil {
			slog.Warn("archiving session summary failed", "session_id", done.ID, "error", err)
		}
	}

	out := summary
	out.Tallies = append([]model.Tally(nil), summary.Tallies...)
	return &out, nil
}

// tally groups items by equipment nomenclature. Equipment that has since
// been tombstoned is grouped under an empty nomenclature.
func (e *Engine) tally(ctx context.Context, items []model.AccountabilityItem) ([]model.Tally, int, error) {
	equipment := e.data.Equipment()
	byName := make(map[string]*model.Tally)
	accounted := 0
	for _, it := range items {
		name := ""
		eq, err := equipment.Get(ctx, it.EquipmentID)
		switch {
		case err == nil:
			name = eq.Nomenclature
		case apperr.CodeOf(err) != apperr.CodeNotFound:
			return nil, 0, err
		}

		t := byName[name]
		if t == nil {
			t = &model.Tally{Nomenclature: name}
			byName[name] = t
		}
		t.Total++
		if it.Status == model.ItemAccountedFor {
			t.AccountedFor++
			accounted++
		} else {
			t.NotAccountedFor++
		}
	}

	tallies := make([]model.Tally, 0, len(byName))
	for _, t := range byName {
		tallies = append(tallies, *t)
	}
	sort.Slice(tallies, func(i, j int) bool { return tallies[i].Nomenclature < tallies[j].Nomenclature })
	return tallies, accounted, nil
}

// AssignHolder resolves query against the unit's holders and reassigns the
// equipment to the match. Unless the query matches exactly one holder the
// selection is returned together with an error.
func (e *Engine) AssignHolder(ctx context.Context, actor model.Actor, equipmentID, query string) (*model.Equipment, model.HolderSelection, error) {
	if err := requireRole(actor, model.RoleSupervisor); err != nil {
		return nil, model.HolderSelection{}, err
	}
	holders, err := e.data.Holders().Query(ctx, store.Filter{"unit_id": actor.UnitID})
	if err != nil {
		return nil, model.HolderSelection{}, err
	}
	sel := model.SelectHolder(holders, query)
	switch sel.Outcome {
	case model.SelectionNone:
		return nil, sel, apperr.NotFound("holder", query)
	case model.SelectionAmbiguous:
		return nil, sel, apperr.Validation("%d holders match %q", len(sel.Candidates), query)
	}

	equipment := e.data.Equipment()
	eq, err := equipment.Get(ctx, equipmentID)
	if err != nil {
		return nil, sel, err
	}
	if err := requireUnit(actor, eq.UnitID); err != nil {
		return nil, sel, err
	}
	out, err := mutation.Apply(ctx, e.protocol, equipment, mutation.Request[model.Equipment]{
		ID:      eq.ID,
		Changes: store.Fields{"holder_id": sel.Holder.ID},
		Version: eq.Version,
	})
	if err != nil {
		return nil, sel, err
	}
	return out, sel, nil
}
