package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType is the direction of a ledger entry relative to the account.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// EntryStatus is the posting state of a ledger entry.
type EntryStatus string

const (
	EntryStatusPending  EntryStatus = "pending"
	EntryStatusPosted   EntryStatus = "posted"
	EntryStatusReversed EntryStatus = "reversed"
)

// LedgerEntry is one immutable row in the wallet/billing ledger, the system
// of record for balances. Amounts are never edited in place; corrections are
// new reversing entries referencing the original.
type LedgerEntry struct {
	ID        uuid.UUID   `json:"id"`
	WalletID  uuid.UUID   `json:"wallet_id"`
	Currency  string      `json:"currency"`
	Amount    int64       `json:"amount"` // In currency minor units, always positive
	Type      EntryType   `json:"entry_type"`
	Status    EntryStatus `json:"status"`
	// Ref is the unique idempotent reference, e.g. "pi-<intent>-leg-2".
	Ref       string     `json:"ref"`
	IntentID  *uuid.UUID `json:"intent_id,omitempty"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
	// ReversesID links a reversing entry back to the entry it corrects.
	ReversesID *uuid.UUID `json:"reverses_id,omitempty"`
	Narration  string     `json:"narration,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
