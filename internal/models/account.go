package models

import (
	"time"

	"github.com/google/uuid"
)

// Account status values. Only active accounts may consume credits.
const (
	AccountStatusActive    = "active"
	AccountStatusSuspended = "suspended"
	AccountStatusBanned    = "banned"
)

// Account roles carried in caller tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Credits   int       `json:"credits"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the account may consume credits.
func (a *Account) IsActive() bool {
	return a != nil && a.Status == AccountStatusActive
}

// ValidAccountStatus reports whether s is a known account status.
func ValidAccountStatus(s string) bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusBanned:
		return true
	}
	return false
}
