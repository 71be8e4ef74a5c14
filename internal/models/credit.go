package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger reasons written by the gateway.
const (
	CreditReasonChatTurn     = "chat turn"
	CreditReasonRefund       = "refund: upstream failure"
	CreditReasonInitialGrant = "initial grant"
)

// Adjustment modes for administrative credit changes.
const (
	AdjustSet = "set"
	AdjustAdd = "add"
)

// CreditLedgerEntry is an append-only record of one balance change.
// BalanceAfter always equals the account's credits right after the change.
type CreditLedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	AmountDelta  int        `json:"amount"`
	BalanceAfter int        `json:"balance_after"`
	Reason       string     `json:"reason"`
	AdminID      *uuid.UUID `json:"admin_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
