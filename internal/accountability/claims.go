package accountability

import (
	"context"
	"log/slog"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/store"
)

// SubmitClaim lets a holder report an item present by its serial number.
// The hinted session is searched first, then every other ACTIVE session of
// the caller's unit. The first NOT_ACCOUNTED_FOR item whose equipment
// serial matches moves to VERIFICATION_PENDING.
func (e *Engine) SubmitClaim(ctx context.Context, actor model.Actor, serial, sessionHint string) (*model.AccountabilityItem, error) {
	if err := model.ValidateSerial(serial); err != nil {
		return nil, apperr.Wrap(apperr.CodeValidation, err, "invalid serial number")
	}

	sessions, err := e.data.Sessions().Query(ctx, store.Filter{
		"unit_id": actor.UnitID,
		"status":  model.SessionActive,
	})
	if err != nil {
		return nil, err
	}
	if sessionHint != "" {
		for i, s := range sessions {
			if s.ID == sessionHint {
				sessions[0], sessions[i] = sessions[i], sessions[0]
				break
			}
		}
	}

	items := e.data.Items()
	equipment := e.data.Equipment()
	for _, s := range sessions {
		candidates, err := items.Query(ctx, store.Filter{
			"session_id": s.ID,
			"status":     model.ItemNotAccountedFor,
		})
		if err != nil {
			return nil, err
		}
		for _, it := range candidates {
			eq, err := equipment.Get(ctx, it.EquipmentID)
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !model.SerialsMatch(eq.SerialNumber, serial) {
				continue
			}

			claimed, err := e.claim(ctx, actor, it)
			if apperr.CodeOf(err) == apperr.CodeInvalidState {
				// Someone else moved the item first; keep looking.
				continue
			}
			if err != nil {
				return nil, err
			}
			slog.Info("claim submitted", "session_id", s.ID, "item_id", claimed.ID, "holder", actor.UserID)
			return claimed, nil
		}
	}
	return nil, apperr.New(apperr.CodeNoMatchingItem, "no active session holds an unverified item with serial %q", serial)
}

func (e *Engine) claim(ctx context.Context, actor model.Actor, it model.AccountabilityItem) (*model.AccountabilityItem, error) {
	if err := e.stillActive(ctx, it.SessionID); err != nil {
		return nil, err
	}
	return mutation.Apply(ctx, e.protocol, e.data.Items(), mutation.Request[model.AccountabilityItem]{
		ID: it.ID,
		Changes: store.Fields{
			"status":              model.ItemVerificationPending,
			"verification_method": model.MethodSelfService,
			"confirmation_status": model.ConfirmationPending,
			"verified_by":         actor.UserID,
			"verified_at":         e.now(),
			"confirmed_by":        "",
		},
		Version:   it.Version,
		Satisfied: func(*model.AccountabilityItem) bool { return false },
		Guard: func(cur *model.AccountabilityItem) error {
			if cur.Status != model.ItemNotAccountedFor {
				return apperr.InvalidState("item %s is %s", cur.ID, cur.Status)
			}
			return e.stillActive(ctx, cur.SessionID)
		},
	})
}

// ConfirmClaim accepts or rejects a pending claim. Accepting counts the
// item; rejecting returns it to NOT_ACCOUNTED_FOR so it can be claimed or
// marked again.
func (e *Engine) ConfirmClaim(ctx context.Context, actor model.Actor, itemID string, accepted bool) (*model.AccountabilityItem, *model.Session, error) {
	if err := requireRole(actor, model.RoleSupervisor); err != nil {
		return nil, nil, err
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
	if it.Status != model.ItemVerificationPending {
		return nil, nil, apperr.InvalidState("item %s is %s, not %s", it.ID, it.Status, model.ItemVerificationPending)
	}

	changes := store.Fields{
		"status":              model.ItemAccountedFor,
		"confirmation_status": model.ConfirmationConfirmed,
		"confirmed_by":        actor.UserID,
	}
	if !accepted {
		changes = store.Fields{
			"status":              model.ItemNotAccountedFor,
			"confirmation_status": model.ConfirmationFailed,
			"confirmed_by":        actor.UserID,
			"verified_by":         "",
			"verified_at":         nil,
		}
	}

	updated, err := mutation.Apply(ctx, e.protocol, items, mutation.Request[model.AccountabilityItem]{
		ID:      it.ID,
		Changes: changes,
		Version: it.Version,
		Guard: func(cur *model.AccountabilityItem) error {
			if cur.Status != model.ItemVerificationPending {
				return apperr.InvalidState("item %s is %s", cur.ID, cur.Status)
			}
			return e.stillActive(ctx, cur.SessionID)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	if accepted {
		if session, err = e.recount(ctx, session); err != nil {
			return nil, nil, err
		}
	}
	slog.Info("claim reviewed", "session_id", session.ID, "item_id", updated.ID, "accepted", accepted)
	return updated, session, nil
}
