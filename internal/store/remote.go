package store

import (
	"github.com/erazemk/inventura/internal/db"
	"github.com/erazemk/inventura/internal/model"
)

var (
	_ Table[model.Equipment]          = (*SQLTable[model.Equipment])(nil)
	_ Table[model.EquipmentGroup]     = (*SQLTable[model.EquipmentGroup])(nil)
	_ Table[model.Holder]             = (*SQLTable[model.Holder])(nil)
	_ Table[model.Session]            = (*SQLTable[model.Session])(nil)
	_ Table[model.AccountabilityItem] = (*SQLTable[model.AccountabilityItem])(nil)
)

// Remote is the authoritative store every replica syncs against.
type Remote struct {
	DB        *db.DB
	Equipment *SQLTable[model.Equipment]
	Groups    *SQLTable[model.EquipmentGroup]
	Holders   *SQLTable[model.Holder]
	Sessions  *SQLTable[model.Session]
	Items     *SQLTable[model.AccountabilityItem]
}

// NewRemote returns the entity tables of conn.
func NewRemote(conn *db.DB) *Remote {
	return &Remote{
		DB:        conn,
		Equipment: NewSQLTable(conn, EquipmentCodec),
		Groups:    NewSQLTable(conn, GroupCodec),
		Holders:   NewSQLTable(conn, HolderCodec),
		Sessions:  NewSQLTable(conn, SessionCodec),
		Items:     NewSQLTable(conn, ItemCodec),
	}
}
