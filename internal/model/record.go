package model

import "time"

// Record carries the bookkeeping fields shared by every stored entity.
// Version starts at 1 on create and advances by exactly one per accepted write.
type Record struct {
	ID        string    `json:"id"`
	Version   int64     `json:"_version"`
	Deleted   bool      `json:"_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta returns the record itself. Embedding types inherit it, which lets
// generic code read the bookkeeping fields of any entity.
func (r Record) Meta() Record {
	return r
}

// Entity kinds, also used as table names and replica buckets.
const (
	KindEquipment = "equipment"
	KindGroup     = "equipment_groups"
	KindHolder    = "holders"
	KindSession   = "sessions"
	KindItem      = "accountability_items"
)
