package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntentStatus represents the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentStatusPending IntentStatus = "PENDING"
	// IntentStatusFundedPendingSettlement means at least one funding leg has been
	// executed and the intent is awaiting provider/webhook confirmation.
	IntentStatusFundedPendingSettlement IntentStatus = "FUNDED_PENDING_SETTLEMENT"
	IntentStatusSettled                 IntentStatus = "SETTLED"
	IntentStatusFailed                  IntentStatus = "FAILED"
)

// PaymentIntent is the aggregate root for a funding request. It owns its
// funding plan; external payment legs and ledger entries reference it by id.
// Intents are never deleted; the status column is the audit trail.
type PaymentIntent struct {
	ID         uuid.UUID    `json:"id"`
	PayerID    uuid.UUID    `json:"payer_id"`
	MerchantID *uuid.UUID   `json:"merchant_id,omitempty"`
	AmountDue  int64        `json:"amount_due"` // In currency minor units
	Currency   string       `json:"currency"`
	Status     IntentStatus `json:"status"`
	Plan       FundingPlan  `json:"funding_plan"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// IsTerminal returns true once the intent has settled or failed. Terminal
// intents reject any further mutation of status or funding plan.
func (i *PaymentIntent) IsTerminal() bool {
	return i.Status == IntentStatusSettled || i.Status == IntentStatusFailed
}

// CanTransitionTo reports whether moving to the target status is a legal
// lifecycle step.
func (i *PaymentIntent) CanTransitionTo(target IntentStatus) bool {
	if i.IsTerminal() {
		return false
	}
	switch i.Status {
	case IntentStatusPending:
		return target == IntentStatusFundedPendingSettlement ||
			target == IntentStatusSettled ||
			target == IntentStatusFailed
	case IntentStatusFundedPendingSettlement:
		return target == IntentStatusSettled || target == IntentStatusFailed
	}
	return false
}
