package model

import (
	"fmt"
	"time"
)

// User represents an authentication user (separate from holders).
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	UnitID       string     `json:"unit_id"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleMember     = "member"
)

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:      3,
		RoleSupervisor: 2,
		RoleMember:     1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// MinPasswordLength is the shortest password accepted for an account.
const MinPasswordLength = 8

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
