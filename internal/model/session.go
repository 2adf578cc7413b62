package model

import "time"

// Session is one accountability event over a selected set of equipment.
type Session struct {
	Record
	UnitID            string     `json:"unit_id"`
	ConductedBy       string     `json:"conducted_by"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ItemCount         int        `json:"item_count"`
	AccountedForCount int        `json:"accounted_for_count"`
}

// Session statuses.
const (
	SessionActive    = "ACTIVE"
	SessionCompleted = "COMPLETED"
)

// AccountabilityItem is the per-equipment row within a session.
type AccountabilityItem struct {
	Record
	SessionID          string     `json:"session_id"`
	EquipmentID        string     `json:"equipment_id"`
	Status             string     `json:"status"`
	VerificationMethod string     `json:"verification_method"`
	VerifiedBy         string     `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	ConfirmationStatus string     `json:"confirmation_status,omitempty"`
	ConfirmedBy        string     `json:"confirmed_by,omitempty"`
}

// Item statuses.
const (
	ItemNotAccountedFor     = "NOT_ACCOUNTED_FOR"
	ItemVerificationPending = "VERIFICATION_PENDING"
	ItemAccountedFor        = "ACCOUNTED_FOR"
)

// Verification methods.
const (
	MethodDirect      = "DIRECT"
	MethodSelfService = "SELF_SERVICE"
)

// Confirmation statuses, only meaningful for self-service verification.
const (
	ConfirmationPending   = "PENDING"
	ConfirmationConfirmed = "CONFIRMED"
	ConfirmationFailed    = "FAILED"
)

// Tally counts the items of one nomenclature in a completed session.
type Tally struct {
	Nomenclature    string `json:"nomenclature"`
	Total           int    `json:"total"`
	AccountedFor    int    `json:"accounted_for"`
	NotAccountedFor int    `json:"not_accounted_for"`
}

// Summary is the result of completing a session. Completion hands out a copy,
// so callers may keep it without it changing underneath them.
type Summary struct {
	SessionID       string    `json:"session_id"`
	UnitID          string    `json:"unit_id"`
	ConductedBy     string    `json:"conducted_by"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	ItemCount       int       `json:"item_count"`
	AccountedFor    int       `json:"accounted_for"`
	NotAccountedFor int       `json:"not_accounted_for"`
	Tallies         []Tally   `json:"tallies"`
}

// Actor is the resolved identity of whoever calls into the engine.
type Actor struct {
	UserID string `json:"user_id"`
	UnitID string `json:"unit_id"`
	Role   string `json:"role"`
}
