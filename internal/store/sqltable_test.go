package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
)

func newEquipment(t *testing.T, r *Remote, nsn, serial string) *model.Equipment {
	t.Helper()
	e, err := r.Equipment.Create(context.Background(), &model.Equipment{
		UnitID:            "unit-1",
		NSN:               nsn,
		Nomenclature:      "Rifle",
		SerialNumber:      serial,
		MaintenanceStatus: model.MaintenanceOperational,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return e
}

func TestSQLTableCreateAndGet(t *testing.T) {
	r := NewRemote(db.NewTestDB(t))
	ctx := context.Background()

	e := newEquipment(t, r, "1005-01-231-0973", "W123")
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	if e.Version != 1 {
		t.Errorf("expected version 1, got %d", e.Version)
	}
	if e.CreatedAt.IsZero() {
		t.Error("expected created_at to be stamped")
	}

	got, err := r.Equipment.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SerialNumber != "W123" || got.NSN != "1005-01-231-0973" {
		t.Errorf("unexpected equipment: %+v", got)
	}

	if _, err := r.Equipment.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSQLTableUpdateVersioning(t *testing.T) {
	r := NewRemote(db.NewTestDB(t))
	ctx := context.Background()
	e := newEquipment(t, r, "1005", "A1")

	updated, err := r.Equipment.Update(ctx, e.ID, Fields{"location": "Armory"}, e.Version)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != e.Version+1 {
		t.Errorf("expected version %d, got %d", e.Version+1, updated.Version)
	}
	if updated.Location != "Armory" {
		t.Errorf("expected location 'Armory', got %q", updated.Location)
	}

	// Stale version.
	_, err = r.Equipment.Update(ctx, e.ID, Fields{"location": "Motor pool"}, e.Version)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	forced, err := r.Equipment.ForceUpdate(ctx, e.ID, Fields{"location": "Motor pool"})
	if err != nil {
		t.Fatalf("ForceUpdate: %v", err)
	}
	if forced.Version != updated.Version+1 || forced.Location != "Motor pool" {
		t.Errorf("unexpected forced result: %+v", forced)
	}

	if _, err := r.Equipment.Update(ctx, e.ID, Fields{"id": "x"}, forced.Version); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for read-only column, got %v", err)
	}
}

func TestSQLTableTombstone(t *testing.T) {
	r := NewRemote(db.NewTestDB(t))
	ctx := context.Background()
	e := newEquipment(t, r, "1005", "A1")

	if _, err := r.Equipment.Update(ctx, e.ID, Fields{"deleted": true}, e.Version); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if _, err := r.Equipment.Get(ctx, e.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected tombstoned entity to be not found, got %v", err)
	}
	if _, err := r.Equipment.ForceUpdate(ctx, e.ID, Fields{"location": "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected update of tombstone to be not found, got %v", err)
	}

	list, err := r.Equipment.Query(ctx, Filter{"unit_id": "unit-1"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected tombstones to be filtered, got %d", len(list))
	}
}

func TestSQLTableQueryOrder(t *testing.T) {
	r := NewRemote(db.NewTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, serial := range []string{"C", "A", "B"} {
		_, err := r.Equipment.Create(ctx, &model.Equipment{
			Record:       model.Record{CreatedAt: base.Add(time.Duration(2-i) * time.Minute)},
			UnitID:       "unit-1",
			NSN:          "1005",
			SerialNumber: serial,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	newEquipment(t, r, "2000", "other")

	list, err := r.Equipment.Query(ctx, Filter{"nsn": "1005"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 results, got %d", len(list))
	}
	got := list[0].SerialNumber + list[1].SerialNumber + list[2].SerialNumber
	if got != "BAC" {
		t.Errorf("expected oldest first (BAC), got %s", got)
	}

	if _, err := r.Equipment.Query(ctx, Filter{"bogus": 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for unknown column, got %v", err)
	}
}

func TestSQLTableSessionTimes(t *testing.T) {
	r := NewRemote(db.NewTestDB(t))
	ctx := context.Background()

	started := time.Date(2026, 3, 4, 8, 30, 0, 0, time.UTC)
	s, err := r.Sessions.Create(ctx, &model.Session{
		UnitID: "unit-1", ConductedBy: "sgt", Status: model.SessionActive,
		StartedAt: started, ItemCount: 2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.CompletedAt != nil {
		t.Error("expected nil completed_at")
	}
	if !s.StartedAt.Equal(started) {
		t.Errorf("expected started_at %v, got %v", started, s.StartedAt)
	}

	done := started.Add(time.Hour)
	f := Fields{"status": model.SessionCompleted, "completed_at": &done}
	s, err = r.Sessions.Update(ctx, s.ID, f, s.Version)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if s.CompletedAt == nil || !s.CompletedAt.Equal(done) {
		t.Errorf("expected completed_at %v, got %v", done, s.CompletedAt)
	}
	if !r.Sessions.Satisfies(s, f) {
		t.Error("expected session to satisfy the fields it was updated with")
	}
}

func TestCodecApplyAndSatisfies(t *testing.T) {
	e := &model.Equipment{Record: model.Record{ID: "e1", Version: 3}, NSN: "1005", IsGrouped: true, GroupID: "g1"}
	f := Fields{"is_grouped": false, "group_id": ""}

	if EquipmentCodec.Satisfies(e, f) {
		t.Fatal("expected unsatisfied before apply")
	}
	out, err := EquipmentCodec.Apply(e, f)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.IsGrouped || out.GroupID != "" || out.ID != "e1" || out.Version != 3 {
		t.Errorf("unexpected apply result: %+v", out)
	}
	if !EquipmentCodec.Satisfies(out, f) {
		t.Error("expected satisfied after apply")
	}
	if e.GroupID != "g1" {
		t.Error("apply must not modify its input")
	}

	// Numbers decoded from JSON arrive as float64.
	s := &model.Session{ItemCount: 4}
	out2, err := SessionCodec.Apply(s, Fields{"accounted_for_count": float64(2)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out2.AccountedForCount != 2 {
		t.Errorf("expected 2, got %d", out2.AccountedForCount)
	}
	if !SessionCodec.Satisfies(out2, Fields{"accounted_for_count": int64(2)}) {
		t.Error("expected integer widths to compare by value")
	}
}

func TestSQLTableItemUpdateNeedsActiveSession(t *testing.T) {
	r := NewRemote(db.NewTestDB(t))
	ctx := context.Background()
	eq := newEquipment(t, r, "1005", "A1")

	newSession := func() *model.Session {
		t.Helper()
		s, err := r.Sessions.Create(ctx, &model.Session{
			UnitID: "unit-1", ConductedBy: "sup", Status: model.SessionActive,
			StartedAt: time.Now().UTC(), ItemCount: 1,
		})
		if err != nil {
			t.Fatalf("Create session: %v", err)
		}
		return s
	}
	newItem := func(sessionID string) *model.AccountabilityItem {
		t.Helper()
		it, err := r.Items.Create(ctx, &model.AccountabilityItem{
			SessionID: sessionID, EquipmentID: eq.ID,
			Status: model.ItemNotAccountedFor, VerificationMethod: model.MethodDirect,
		})
		if err != nil {
			t.Fatalf("Create item: %v", err)
		}
		return it
	}
	accounted := Fields{"status": model.ItemAccountedFor}

	s := newSession()
	it := newItem(s.ID)
	it, err := r.Items.Update(ctx, it.ID, accounted, it.Version)
	if err != nil {
		t.Fatalf("Update in active session: %v", err)
	}

	if _, err := r.Sessions.Update(ctx, s.ID, Fields{"status": model.SessionCompleted}, s.Version); err != nil {
		t.Fatalf("completing session: %v", err)
	}
	back := Fields{"status": model.ItemNotAccountedFor}
	if _, err := r.Items.Update(ctx, it.ID, back, it.Version); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for current version, got %v", err)
	}
	if _, err := r.Items.Update(ctx, it.ID, back, it.Version-1); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for stale version, got %v", err)
	}
	if _, err := r.Items.ForceUpdate(ctx, it.ID, back); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for forced write, got %v", err)
	}
	got, err := r.Items.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.ItemAccountedFor || got.Version != it.Version {
		t.Errorf("completed session's item changed: %+v", got)
	}

	// A tombstoned session freezes its items too.
	gone := newSession()
	orphan := newItem(gone.ID)
	if _, err := r.Sessions.ForceUpdate(ctx, gone.ID, Fields{"deleted": true}); err != nil {
		t.Fatalf("tombstoning session: %v", err)
	}
	if _, err := r.Items.Update(ctx, orphan.ID, accounted, orphan.Version); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("expected invalid state for tombstoned session, got %v", err)
	}
}
