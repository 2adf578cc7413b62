// Package data hands out the backing tables for the current connectivity
// mode.
package data

import (
	"context"

	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/propagation"
	"github.com/erazemk/inventura/internal/replica"
	"github.com/erazemk/inventura/internal/store"
)

// Access routes table lookups to the remote store while online and to the
// local replica while offline. Callers must fetch a table per operation
// rather than keep one across a mode switch.
type Access struct {
	conn   *connectivity.Controller
	remote *store.Remote
	local  *replica.Replica
	hub    *propagation.Hub
}

// New returns an Access. hub may be nil, in which case nothing is published.
func New(conn *connectivity.Controller, remote *store.Remote, local *replica.Replica, hub *propagation.Hub) *Access {
	return &Access{conn: conn, remote: remote, local: local, hub: hub}
}

// Online reports whether tables currently route to the remote store.
func (a *Access) Online() bool { return a.conn.Online() }

// Hub returns the propagation hub, or nil.
func (a *Access) Hub() *propagation.Hub { return a.hub }

func (a *Access) Equipment() store.Table[model.Equipment] {
	if a.Online() {
		return a.remote.Equipment
	}
	return a.local.Equipment
}

func (a *Access) Groups() store.Table[model.EquipmentGroup] {
	if a.Online() {
		return a.remote.Groups
	}
	return a.local.Groups
}

func (a *Access) Holders() store.Table[model.Holder] {
	if a.Online() {
		return a.remote.Holders
	}
	return a.local.Holders
}

// Sessions publishes every committed session write.
func (a *Access) Sessions() store.Table[model.Session] {
	var t store.Table[model.Session] = a.local.Sessions
	if a.Online() {
		t = a.remote.Sessions
	}
	if a.hub == nil {
		return t
	}
	return &publishing[model.Session]{Table: t, publish: a.hub.PublishSession}
}

// Items publishes every committed item write.
func (a *Access) Items() store.Table[model.AccountabilityItem] {
	var t store.Table[model.AccountabilityItem] = a.local.Items
	if a.Online() {
		t = a.remote.Items
	}
	if a.hub == nil {
		return t
	}
	return &publishing[model.AccountabilityItem]{Table: t, publish: a.hub.PublishItem}
}

// publishing wraps a table so every successful write is pushed.
type publishing[T store.Entity] struct {
	store.Table[T]
	publish func(T)
}

func (p *publishing[T]) Create(ctx context.Context, e *T) (*T, error) {
	return p.done(p.Table.Create(ctx, e))
}

func (p *publishing[T]) Update(ctx context.Context, id string, f store.Fields, version int64) (*T, error) {
	return p.done(p.Table.Update(ctx, id, f, version))
}

func (p *publishing[T]) ForceUpdate(ctx context.Context, id string, f store.Fields) (*T, error) {
	return p.done(p.Table.ForceUpdate(ctx, id, f))
}

func (p *publishing[T]) done(out *T, err error) (*T, error) {
	if err == nil && out != nil {
		p.publish(*out)
	}
	return out, err
}
