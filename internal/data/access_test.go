package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/propagation"
	"github.com/erazemk/inventura/internal/replica"
	"github.com/erazemk/inventura/internal/store"
)

func TestAccessRoutesByMode(t *testing.T) {
	ctx := context.Background()
	remote := store.NewRemote(db.NewTestDB(t))
	local, err := replica.Open(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	defer local.Close()

	conn, err := connectivity.New(ctx, local, nil)
	require.NoError(t, err)
	a := New(conn, remote, local, nil)

	_, err = a.Holders().Create(ctx, &model.Holder{UnitID: "u", Name: "Online"})
	require.NoError(t, err)

	require.NoError(t, conn.SetMode(ctx, false))
	_, err = a.Holders().Create(ctx, &model.Holder{UnitID: "u", Name: "Offline"})
	require.NoError(t, err)

	remoteHolders, err := remote.Holders.Query(ctx, store.Filter{})
	require.NoError(t, err)
	localHolders, err := local.Holders.Query(ctx, store.Filter{})
	require.NoError(t, err)

	require.Len(t, remoteHolders, 1)
	assert.Equal(t, "Online", remoteHolders[0].Name)
	require.Len(t, localHolders, 1)
	assert.Equal(t, "Offline", localHolders[0].Name)
}

func TestAccessPublishesCommittedWrites(t *testing.T) {
	ctx := context.Background()
	remote := store.NewRemote(db.NewTestDB(t))
	local, err := replica.Open(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	defer local.Close()

	conn, err := connectivity.New(ctx, local, nil)
	require.NoError(t, err)
	hub := propagation.NewHub(8)
	hub.Follow(conn)
	a := New(conn, remote, local, hub)

	s, err := a.Sessions().Create(ctx, &model.Session{
		UnitID: "u", ConductedBy: "sup", Status: model.SessionActive, StartedAt: time.Now().UTC(), ItemCount: 0,
	})
	require.NoError(t, err)

	sub, err := hub.Subscribe(s.ID)
	require.NoError(t, err)
	defer sub.Cancel()

	_, err = a.Sessions().Update(ctx, s.ID, store.Fields{"item_count": 3}, s.Version)
	require.NoError(t, err)

	// A failed write publishes nothing.
	_, err = a.Sessions().Update(ctx, s.ID, store.Fields{"item_count": 4}, s.Version)
	require.ErrorIs(t, err, store.ErrVersionConflict)

	require.Len(t, sub.Events(), 1)
	ev := <-sub.Events()
	assert.Equal(t, propagation.EventSession, ev.Type)
	assert.Equal(t, 3, ev.Session.ItemCount)
}
