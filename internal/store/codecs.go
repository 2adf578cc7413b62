package store

import (
	"database/sql"
	"time"

	"github.com/erazemk/inventura/internal/model"
)

func recordDest(r *model.Record) []any {
	return []any{&r.ID, &r.Version, &r.Deleted, &r.CreatedAt, &r.UpdatedAt}
}

func recordValues(r model.Record) []any {
	return []any{r.ID, r.Version, r.Deleted, r.CreatedAt, r.UpdatedAt}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// EquipmentCodec maps equipment rows.
var EquipmentCodec = newCodec(model.KindEquipment,
	[]string{"unit_id", "nsn", "nomenclature", "serial_number", "stock_number",
		"location", "holder_id", "maintenance_status", "is_grouped", "group_id"},
	func(s Scanner) (*model.Equipment, error) {
		var e model.Equipment
		dest := append(recordDest(&e.Record), &e.UnitID, &e.NSN, &e.Nomenclature,
			&e.SerialNumber, &e.StockNumber, &e.Location, &e.HolderID,
			&e.MaintenanceStatus, &e.IsGrouped, &e.GroupID)
		if err := s.Scan(dest...); err != nil {
			return nil, err
		}
		return &e, nil
	},
	func(e *model.Equipment) []any {
		return append(recordValues(e.Record), e.UnitID, e.NSN, e.Nomenclature,
			e.SerialNumber, e.StockNumber, e.Location, e.HolderID,
			e.MaintenanceStatus, e.IsGrouped, e.GroupID)
	},
)

// GroupCodec maps equipment group rows.
var GroupCodec = newCodec(model.KindGroup,
	[]string{"unit_id", "name"},
	func(s Scanner) (*model.EquipmentGroup, error) {
		var g model.EquipmentGroup
		if err := s.Scan(append(recordDest(&g.Record), &g.UnitID, &g.Name)...); err != nil {
			return nil, err
		}
		return &g, nil
	},
	func(g *model.EquipmentGroup) []any {
		return append(recordValues(g.Record), g.UnitID, g.Name)
	},
)

// HolderCodec maps holder rows.
var HolderCodec = newCodec(model.KindHolder,
	[]string{"unit_id", "name", "rank", "user_id"},
	func(s Scanner) (*model.Holder, error) {
		var h model.Holder
		if err := s.Scan(append(recordDest(&h.Record), &h.UnitID, &h.Name, &h.Rank, &h.UserID)...); err != nil {
			return nil, err
		}
		return &h, nil
	},
	func(h *model.Holder) []any {
		return append(recordValues(h.Record), h.UnitID, h.Name, h.Rank, h.UserID)
	},
)

// SessionCodec maps session rows.
var SessionCodec = newCodec(model.KindSession,
	[]string{"unit_id", "conducted_by", "status", "started_at", "completed_at",
		"item_count", "accounted_for_count"},
	func(s Scanner) (*model.Session, error) {
		var (
			sess      model.Session
			completed sql.NullTime
		)
		dest := append(recordDest(&sess.Record), &sess.UnitID, &sess.ConductedBy,
			&sess.Status, &sess.StartedAt, &completed, &sess.ItemCount, &sess.AccountedForCount)
		if err := s.Scan(dest...); err != nil {
			return nil, err
		}
		sess.CompletedAt = timePtr(completed)
		return &sess, nil
	},
	func(sess *model.Session) []any {
		return append(recordValues(sess.Record), sess.UnitID, sess.ConductedBy,
			sess.Status, sess.StartedAt, nullTime(sess.CompletedAt), sess.ItemCount, sess.AccountedForCount)
	},
)

// ItemCodec maps accountability item rows. Items of a session that is no
// longer ACTIVE cannot be updated.
var ItemCodec = newCodec(model.KindItem,
	[]string{"session_id", "equipment_id", "status", "verification_method",
		"verified_by", "verified_at", "confirmation_status", "confirmed_by"},
	func(s Scanner) (*model.AccountabilityItem, error) {
		var (
			it       model.AccountabilityItem
			verified sql.NullTime
		)
		dest := append(recordDest(&it.Record), &it.SessionID, &it.EquipmentID,
			&it.Status, &it.VerificationMethod, &it.VerifiedBy, &verified,
			&it.ConfirmationStatus, &it.ConfirmedBy)
		if err := s.Scan(dest...); err != nil {
			return nil, err
		}
		it.VerifiedAt = timePtr(verified)
		return &it, nil
	},
	func(it *model.AccountabilityItem) []any {
		return append(recordValues(it.Record), it.SessionID, it.EquipmentID,
			it.Status, it.VerificationMethod, it.VerifiedBy, nullTime(it.VerifiedAt),
			it.ConfirmationStatus, it.ConfirmedBy)
	},
).withParent(Parent{Column: "session_id", Kind: model.KindSession, Status: model.SessionActive})
