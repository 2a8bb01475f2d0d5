package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the canonical status of one external funding leg.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// ExternalPayment is one external leg of a funding plan. The row is created
// before the provider call and updated from the synchronous response and/or
// asynchronous webhook. ProviderRef stays nil until the rail assigns one.
type ExternalPayment struct {
	ID          uuid.UUID       `json:"id"`
	IntentID    uuid.UUID       `json:"intent_id"`
	Rail        FundingSource   `json:"rail"`
	Amount      int64           `json:"amount"` // In currency minor units
	Currency    string          `json:"currency"`
	ProviderRef *string         `json:"provider_ref,omitempty"`
	OrderRef    string          `json:"order_ref"` // Our reference sent to the rail
	Status      PaymentStatus   `json:"status"`
	Metadata    json.RawMessage `json:"metadata,omitempty"` // Raw provider responses, merged
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsTerminal returns true if the leg reached a final provider outcome.
func (p *ExternalPayment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}
