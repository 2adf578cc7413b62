package accountability

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/inventura/internal/apperr"
	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/data"
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/propagation"
	"github.com/erazemk/inventura/internal/replica"
	"github.com/erazemk/inventura/internal/store"
)

var (
	supervisor = model.Actor{UserID: "sup-1", UnitID: "unit-1", Role: model.RoleSupervisor}
	member     = model.Actor{UserID: "pvt-1", UnitID: "unit-1", Role: model.RoleMember}
)

type recordingArchiver struct {
	mu        sync.Mutex
	summaries []model.Summary
}

func (r *recordingArchiver) Archive(_ context.Context, s model.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return nil
}

type fixture struct {
	remote   *store.Remote
	replica  *replica.Replica
	conn     *connectivity.Controller
	hub      *propagation.Hub
	engine   *Engine
	archiver *recordingArchiver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	remote := store.NewRemote(db.NewTestDB(t))
	local, err := replica.Open(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	p := mutation.New()
	conn, err := connectivity.New(ctx, local, replica.NewManager(local, remote, p))
	require.NoError(t, err)
	hub := propagation.NewHub(32)
	t.Cleanup(hub.Follow(conn))

	arch := &recordingArchiver{}
	return &fixture{
		remote:   remote,
		replica:  local,
		conn:     conn,
		hub:      hub,
		engine:   New(data.New(conn, remote, local, hub), p, arch),
		archiver: arch,
	}
}

func (f *fixture) equipment(t *testing.T, nomenclature, serial string) *model.Equipment {
	t.Helper()
	e, err := f.remote.Equipment.Create(context.Background(), &model.Equipment{
		UnitID: "unit-1", NSN: "1005-01", Nomenclature: nomenclature, SerialNumber: serial,
		MaintenanceStatus: model.MaintenanceOperational,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) sessionCount(t *testing.T, id string) (int, int) {
	t.Helper()
	ctx := context.Background()
	s, err := f.remote.Sessions.Get(ctx, id)
	require.NoError(t, err)
	accounted, err := f.remote.Items.Query(ctx, store.Filter{"session_id": id, "status": model.ItemAccountedFor})
	require.NoError(t, err)
	return s.AccountedForCount, len(accounted)
}

func TestScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e1 := f.equipment(t, "Rifle", "R-001")
	e2 := f.equipment(t, "Rifle", "R-002")
	e3 := f.equipment(t, "Radio", "X-100")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID, e3.ID})
	require.NoError(t, err)
	defer active.Close()

	s := active.Session()
	assert.Equal(t, 3, s.ItemCount)
	assert.Equal(t, 0, s.AccountedForCount)
	items := active.Items()
	require.Len(t, items, 3)
	for _, it := range items {
		assert.Equal(t, model.ItemNotAccountedFor, it.Status)
	}

	// Item 1 directly.
	require.NoError(t, active.MarkAccountedFor(ctx, items[0].ID, model.MethodDirect))
	assert.Equal(t, 1, active.Session().AccountedForCount)

	// Item 2 through a claim, serial typed in lower case.
	claimed, err := f.engine.SubmitClaim(ctx, member, "r-002", "")
	require.NoError(t, err)
	assert.Equal(t, items[1].ID, claimed.ID)
	assert.Equal(t, model.ItemVerificationPending, claimed.Status)
	assert.Equal(t, model.MethodSelfService, claimed.VerificationMethod)
	assert.Equal(t, model.ConfirmationPending, claimed.ConfirmationStatus)
	assert.Equal(t, member.UserID, claimed.VerifiedBy)
	stored, _ := f.sessionCount(t, s.ID)
	assert.Equal(t, 1, stored)

	require.NoError(t, active.ConfirmClaim(ctx, items[1].ID, true))
	assert.Equal(t, 2, active.Session().AccountedForCount)

	summary, err := active.Complete(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, active.Session().Status)
	assert.Equal(t, 2, summary.AccountedFor)
	assert.Equal(t, 1, summary.NotAccountedFor)
	assert.Equal(t, []model.Tally{
		{Nomenclature: "Radio", Total: 1, AccountedFor: 0, NotAccountedFor: 1},
		{Nomenclature: "Rifle", Total: 2, AccountedFor: 2, NotAccountedFor: 0},
	}, summary.Tallies)

	// The session is closed for good.
	err = active.MarkAccountedFor(ctx, items[2].ID, model.MethodDirect)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
	it3, err := f.remote.Items.Get(ctx, items[2].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemNotAccountedFor, it3.Status)

	require.Len(t, f.archiver.summaries, 1)
	assert.Equal(t, s.ID, f.archiver.summaries[0].SessionID)

	// Mutating the returned summary does not affect the archived copy.
	summary.Tallies[0].Total = 99
	assert.Equal(t, 1, f.archiver.summaries[0].Tallies[0].Total)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")

	_, err := f.engine.Start(ctx, supervisor, nil)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.engine.Start(ctx, supervisor, []string{e1.ID, e1.ID})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.engine.Start(ctx, supervisor, []string{"missing"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.engine.Start(ctx, member, []string{e1.ID})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	other := model.Actor{UserID: "sup-2", UnitID: "unit-2", Role: model.RoleSupervisor}
	_, err = f.engine.Start(ctx, other, []string{e1.ID})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	sessions, err := f.remote.Sessions.Query(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions, "rejected starts create nothing")
}

func TestMarkAccountedForIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Rifle", "R-2")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	defer active.Close()
	itemID := active.Items()[0].ID

	it1, s1, err := f.engine.MarkAccountedFor(ctx, supervisor, itemID, model.MethodDirect)
	require.NoError(t, err)
	it2, s2, err := f.engine.MarkAccountedFor(ctx, supervisor, itemID, model.MethodDirect)
	require.NoError(t, err)

	assert.Equal(t, it1.Version, it2.Version, "second mark must not write")
	assert.Equal(t, 1, s1.AccountedForCount)
	assert.Equal(t, 1, s2.AccountedForCount)
	assert.Equal(t, s1.Version, s2.Version)

	stored, actual := f.sessionCount(t, active.Session().ID)
	assert.Equal(t, actual, stored)
	assert.Equal(t, 1, stored)
}

func TestMarkRequiresSupervisor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	defer active.Close()

	_, _, err = f.engine.MarkAccountedFor(ctx, member, active.Items()[0].ID, "")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, _, err = f.engine.MarkAccountedFor(ctx, supervisor, active.Items()[0].ID, "TELEPATHY")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestClaimRejectRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-77")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	defer active.Close()

	claimed, err := f.engine.SubmitClaim(ctx, member, "R-77", active.Session().ID)
	require.NoError(t, err)

	// A pending item cannot be claimed twice.
	_, err = f.engine.SubmitClaim(ctx, member, "R-77", "")
	assert.True(t, errors.Is(err, apperr.ErrNoMatchingItem))

	rejected, s, err := f.engine.ConfirmClaim(ctx, supervisor, claimed.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.ItemNotAccountedFor, rejected.Status)
	assert.Equal(t, model.ConfirmationFailed, rejected.ConfirmationStatus)
	assert.Equal(t, 0, s.AccountedForCount)

	again, err := f.engine.SubmitClaim(ctx, member, "R-77", "")
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, again.ID)
	assert.Equal(t, model.ItemVerificationPending, again.Status)
	assert.Equal(t, model.ConfirmationPending, again.ConfirmationStatus)
}

func TestSubmitClaimValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.SubmitClaim(ctx, member, "", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.engine.SubmitClaim(ctx, member, "bad;serial", "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.engine.SubmitClaim(ctx, member, "NOPE-1", "")
	assert.True(t, errors.Is(err, apperr.ErrNoMatchingItem))
}

func TestSubmitClaimPrefersHint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-5")

	// Overlapping sessions over the same equipment are allowed.
	first, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	defer first.Close()
	second, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	defer second.Close()

	claimed, err := f.engine.SubmitClaim(ctx, member, "R-5", second.Session().ID)
	require.NoError(t, err)
	assert.Equal(t, second.Session().ID, claimed.SessionID)

	claimed, err = f.engine.SubmitClaim(ctx, member, "R-5", "")
	require.NoError(t, err)
	assert.Equal(t, first.Session().ID, claimed.SessionID)
}

func TestConfirmClaimRequiresPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	defer active.Close()

	_, _, err = f.engine.ConfirmClaim(ctx, supervisor, active.Items()[0].ID, true)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestTallyRecountSurvivesConcurrentSessionWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Rifle", "R-2")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	defer active.Close()
	items := active.Items()
	s := active.Session()

	// Another process marks item 2 and bumps the session tally.
	it2, err := f.remote.Items.Update(ctx, items[1].ID, store.Fields{"status": model.ItemAccountedFor}, items[1].Version)
	require.NoError(t, err)
	require.NotNil(t, it2)
	_, err = f.remote.Sessions.Update(ctx, s.ID, store.Fields{"accounted_for_count": 1}, s.Version)
	require.NoError(t, err)

	// Our recount starts from the stale session version and must retry
	// with a fresh count.
	_, err = f.remote.Items.Update(ctx, items[0].ID, store.Fields{"status": model.ItemAccountedFor}, items[0].Version)
	require.NoError(t, err)
	updated, err := f.engine.recount(ctx, &s)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.AccountedForCount)

	stored, actual := f.sessionCount(t, s.ID)
	assert.Equal(t, actual, stored)
}

func TestResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	id := active.Session().ID
	active.Close()

	resumed, err := f.engine.Resume(ctx, supervisor, id)
	require.NoError(t, err)
	assert.Len(t, resumed.Items(), 1)
	assert.True(t, resumed.Subscribed())

	_, err = resumed.Complete(ctx)
	require.NoError(t, err)
	resumed.Close()

	_, err = f.engine.Resume(ctx, supervisor, id)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	_, err = f.engine.Resume(ctx, supervisor, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestActiveMergesPushedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Rifle", "R-2")

	mine, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	defer mine.Close()

	other, err := f.engine.Resume(ctx, supervisor, mine.Session().ID)
	require.NoError(t, err)
	defer other.Close()

	target := mine.Items()[1].ID
	require.NoError(t, other.MarkAccountedFor(ctx, target, model.MethodDirect))

	require.Eventually(t, func() bool {
		it, ok := mine.Item(target)
		return ok && it.Status == model.ItemAccountedFor && mine.Session().AccountedForCount == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOfflineSessionSyncsOnReconnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Radio", "X-1")

	// Going offline takes a snapshot of the remote.
	require.NoError(t, f.conn.SetMode(ctx, false))

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	assert.False(t, active.Subscribed(), "no pushes while offline")
	require.NoError(t, active.MarkAccountedFor(ctx, active.Items()[0].ID, model.MethodDirect))
	assert.Equal(t, 1, active.Session().AccountedForCount)

	remoteSessions, err := f.remote.Sessions.Query(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, remoteSessions, "offline writes stay local")

	require.NoError(t, f.conn.SetMode(ctx, true))
	assert.Empty(t, f.replica.Pending())

	stored, actual := f.sessionCount(t, active.Session().ID)
	assert.Equal(t, 1, stored)
	assert.Equal(t, actual, stored)

	require.NoError(t, active.Refresh(ctx))
	assert.True(t, active.Subscribed())
	active.Close()
}

func TestAssignHolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")

	for _, h := range []model.Holder{
		{UnitID: "unit-1", Name: "Novak", Rank: "SGT"},
		{UnitID: "unit-1", Name: "Novakovic", Rank: "CPL"},
		{UnitID: "unit-2", Name: "Horvat"},
	} {
		_, err := f.remote.Holders.Create(ctx, &h)
		require.NoError(t, err)
	}

	out, sel, err := f.engine.AssignHolder(ctx, supervisor, e1.ID, "sgt novak")
	require.NoError(t, err)
	require.NotNil(t, sel.Holder)
	assert.Equal(t, sel.Holder.ID, out.HolderID)

	_, sel, err = f.engine.AssignHolder(ctx, supervisor, e1.ID, "novak")
	require.NoError(t, err, "exact name beats the longer partial match")
	assert.Equal(t, "Novak", sel.Holder.Name)

	_, sel, err = f.engine.AssignHolder(ctx, supervisor, e1.ID, "nov")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, model.SelectionAmbiguous, sel.Outcome)
	assert.Len(t, sel.Candidates, 2)

	_, _, err = f.engine.AssignHolder(ctx, supervisor, e1.ID, "horvat")
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "holders of other units are not candidates")
}

// onItemStamp runs fn when the remote item table stamps its nth write from
// now on. Stamps happen before the write's statement runs.
func (f *fixture) onItemStamp(n int, fn func()) {
	calls := 0
	f.remote.Items.Now = func() time.Time {
		calls++
		if calls == n {
			fn()
		}
		return time.Now()
	}
}

func (f *fixture) completeRemotely(t *testing.T, sessionID string) {
	t.Helper()
	_, err := f.remote.Sessions.ForceUpdate(context.Background(), sessionID, store.Fields{
		"status":       model.SessionCompleted,
		"completed_at": time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestCompletedSessionRejectsReviews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Rifle", "R-2")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	defer active.Close()
	sessionID := active.Session().ID

	claimed, err := f.engine.SubmitClaim(ctx, member, "R-1", sessionID)
	require.NoError(t, err)
	_, err = f.engine.Complete(ctx, supervisor, sessionID)
	require.NoError(t, err)

	for _, accepted := range []bool{true, false} {
		_, _, err = f.engine.ConfirmClaim(ctx, supervisor, claimed.ID, accepted)
		assert.True(t, errors.Is(err, apperr.ErrInvalidState), "accepted=%v: %v", accepted, err)
	}
	it, err := f.remote.Items.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemVerificationPending, it.Status)
	assert.Equal(t, claimed.Version, it.Version)

	_, err = f.engine.SubmitClaim(ctx, member, "R-2", sessionID)
	assert.True(t, errors.Is(err, apperr.ErrNoMatchingItem))

	stored, actual := f.sessionCount(t, sessionID)
	assert.Equal(t, 0, stored)
	assert.Equal(t, actual, stored)
}

func TestItemWriteLosesRaceWithCompletion(t *testing.T) {
	tests := []struct {
		name  string
		claim bool
		write func(f *fixture, itemID string) error
	}{
		{
			name: "mark",
			write: func(f *fixture, itemID string) error {
				_, _, err := f.engine.MarkAccountedFor(context.Background(), supervisor, itemID, model.MethodDirect)
				return err
			},
		},
		{
			name:  "confirm",
			claim: true,
			write: func(f *fixture, itemID string) error {
				_, _, err := f.engine.ConfirmClaim(context.Background(), supervisor, itemID, true)
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			e1 := f.equipment(t, "Rifle", "R-1")

			active, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
			require.NoError(t, err)
			defer active.Close()
			sessionID := active.Session().ID
			itemID := active.Items()[0].ID
			if tt.claim {
				_, err := f.engine.SubmitClaim(ctx, member, "R-1", sessionID)
				require.NoError(t, err)
			}
			before, err := f.remote.Items.Get(ctx, itemID)
			require.NoError(t, err)

			// The session completes after the engine checked it but before
			// the item write lands.
			f.onItemStamp(1, func() { f.completeRemotely(t, sessionID) })

			err = tt.write(f, itemID)
			assert.True(t, errors.Is(err, apperr.ErrInvalidState), "got %v", err)

			after, err := f.remote.Items.Get(ctx, itemID)
			require.NoError(t, err)
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, before.Version, after.Version)

			stored, actual := f.sessionCount(t, sessionID)
			assert.Equal(t, 0, actual)
			assert.Equal(t, actual, stored)
		})
	}
}

func TestMarkAccountedForStaleItemAlreadyAccounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID})
	require.NoError(t, err)
	defer active.Close()
	sessionID := active.Session().ID
	itemID := active.Items()[0].ID

	// Another supervisor marks the item between our read and our write.
	var theirs *model.AccountabilityItem
	f.onItemStamp(1, func() {
		theirs, err = f.remote.Items.ForceUpdate(ctx, itemID, store.Fields{
			"status":      model.ItemAccountedFor,
			"verified_by": "sup-2",
		})
		require.NoError(t, err)
	})

	it, s, err := f.engine.MarkAccountedFor(ctx, supervisor, itemID, model.MethodDirect)
	require.NoError(t, err)
	require.NotNil(t, theirs)
	assert.Equal(t, "sup-2", it.VerifiedBy, "the earlier mark stands")
	assert.Equal(t, theirs.Version, it.Version, "no second write")
	assert.Equal(t, 1, s.AccountedForCount)

	stored, actual := f.sessionCount(t, sessionID)
	assert.Equal(t, 1, actual)
	assert.Equal(t, actual, stored)
}

func TestStartRemovesPartialSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Rifle", "R-2")

	// The second item insert fails: its equipment row disappears first.
	f.onItemStamp(2, func() {
		_, err := f.remote.DB.ExecContext(ctx, "DELETE FROM equipment WHERE id = ?", e2.ID)
		require.NoError(t, err)
	})

	_, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.Error(t, err)

	sessions, err := f.remote.Sessions.Query(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
	items, err := f.remote.Items.Query(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestOfflineMarkDroppedWhenSessionCompletedRemotely(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e1 := f.equipment(t, "Rifle", "R-1")
	e2 := f.equipment(t, "Rifle", "R-2")

	active, err := f.engine.Start(ctx, supervisor, []string{e1.ID, e2.ID})
	require.NoError(t, err)
	sessionID := active.Session().ID
	itemID := active.Items()[0].ID
	active.Close()

	require.NoError(t, f.conn.SetMode(ctx, false))
	_, s, err := f.engine.MarkAccountedFor(ctx, supervisor, itemID, model.MethodDirect)
	require.NoError(t, err)
	assert.Equal(t, 1, s.AccountedForCount)
	require.NotEmpty(t, f.replica.Pending())

	// Someone else completes the session while we are offline.
	f.completeRemotely(t, sessionID)

	require.NoError(t, f.conn.SetMode(ctx, true))
	assert.Empty(t, f.replica.Pending())

	remoteSession, err := f.remote.Sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, remoteSession.Status)
	it, err := f.remote.Items.Get(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemNotAccountedFor, it.Status)
	stored, actual := f.sessionCount(t, sessionID)
	assert.Equal(t, 0, actual)
	assert.Equal(t, actual, stored)

	// The replica now mirrors the remote again.
	local, err := f.replica.Items.Get(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemNotAccountedFor, local.Status)
}
