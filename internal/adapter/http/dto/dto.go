package dto

import (
	"fmt"
	"strings"

	"bridge-orchestrator/internal/core/domain"

	"github.com/shopspring/decimal"
)

// RegisterRequest is the request body for API client provisioning.
type RegisterRequest struct {
	Name         string   `json:"name" binding:"required,min=1,max=100"`
	Capabilities []string `json:"capabilities" binding:"required,min=1,dive,safe_id"`
}

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	AccessKey string `json:"access_key" binding:"required"`
	SecretKey string `json:"secret_key" binding:"required"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// AllocationRequest is one element of a caller-supplied funding plan
// override. Amount is a decimal string in major units. Priority controls
// execution order; omitted priorities fall back to list position.
type AllocationRequest struct {
	SourceType string `json:"source_type" binding:"required"`
	SourceID   string `json:"source_id,omitempty"`
	Amount     string `json:"amount" binding:"required"`
	Priority   *int   `json:"priority,omitempty" binding:"omitempty,gte=0"`
}

// CreateIntentRequest is the request body for intent creation. Amounts cross
// the API boundary as decimal strings and are converted to minor units once,
// at the edge.
type CreateIntentRequest struct {
	PayerID     string              `json:"payer_id" binding:"required,uuid"`
	MerchantID  *string             `json:"merchant_id,omitempty" binding:"omitempty,uuid"`
	Amount      string              `json:"amount" binding:"required"`
	Currency    string              `json:"currency" binding:"required,len=3"`
	FundingPlan []AllocationRequest `json:"funding_plan,omitempty"`
}

// ParseAmount converts the decimal amount string to minor units.
func (r CreateIntentRequest) ParseAmount() (int64, error) {
	return parseMajorAmount(r.Amount, r.Currency)
}

// ParsePlan converts the override allocations to a domain funding plan.
// Allocations without an explicit priority take their list position.
func (r CreateIntentRequest) ParsePlan() (domain.FundingPlan, error) {
	if len(r.FundingPlan) == 0 {
		return nil, nil
	}
	plan := make(domain.FundingPlan, 0, len(r.FundingPlan))
	for i, a := range r.FundingPlan {
		amount, err := parseMajorAmount(a.Amount, r.Currency)
		if err != nil {
			return nil, fmt.Errorf("allocation %d: %w", i, err)
		}
		priority := i
		if a.Priority != nil {
			priority = *a.Priority
		}
		plan = append(plan, domain.FundingAllocation{
			SourceType: domain.FundingSource(strings.ToUpper(strings.TrimSpace(a.SourceType))),
			SourceID:   a.SourceID,
			Amount:     amount,
			Priority:   priority,
		})
	}
	return plan, nil
}

// ConfirmIntentRequest is the request body for funding-plan execution. The
// idempotency key travels in the Idempotency-Key header, not the body.
type ConfirmIntentRequest struct {
	PayerID       string            `json:"payer_id" binding:"required,uuid"`
	CorrelationID string            `json:"correlation_id,omitempty" binding:"omitempty,safe_id"`
	SourceDetails map[string]string `json:"source_details,omitempty"`
}

// IntentResponse is the response body for intent reads.
type IntentResponse struct {
	ID          string               `json:"id"`
	PayerID     string               `json:"payer_id"`
	MerchantID  *string              `json:"merchant_id,omitempty"`
	Amount      string               `json:"amount"` // Major units, decimal string
	Currency    string               `json:"currency"`
	Status      string               `json:"status"`
	FundingPlan []AllocationResponse `json:"funding_plan"`
	External    []ExternalLegResponse `json:"external,omitempty"`
	CreatedAt   string               `json:"created_at"`
}

// AllocationResponse mirrors one funding plan allocation.
type AllocationResponse struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id,omitempty"`
	Amount     string `json:"amount"`
	Priority   int    `json:"priority"`
}

// ExternalLegResponse mirrors one external payment leg.
type ExternalLegResponse struct {
	ID          string  `json:"id"`
	Rail        string  `json:"rail"`
	Amount      string  `json:"amount"`
	OrderRef    string  `json:"order_ref"`
	ProviderRef *string `json:"provider_ref,omitempty"`
	Status      string  `json:"status"`
}

// FromIntent maps a domain intent and its legs to the response shape.
func FromIntent(intent *domain.PaymentIntent, legs []domain.ExternalPayment) IntentResponse {
	resp := IntentResponse{
		ID:        intent.ID.String(),
		PayerID:   intent.PayerID.String(),
		Amount:    domain.FromMinorUnits(intent.AmountDue, intent.Currency).String(),
		Currency:  intent.Currency,
		Status:    string(intent.Status),
		CreatedAt: intent.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if intent.MerchantID != nil {
		mid := intent.MerchantID.String()
		resp.MerchantID = &mid
	}
	for _, a := range intent.Plan {
		resp.FundingPlan = append(resp.FundingPlan, AllocationResponse{
			SourceType: string(a.SourceType),
			SourceID:   a.SourceID,
			Amount:     domain.FromMinorUnits(a.Amount, intent.Currency).String(),
			Priority:   a.Priority,
		})
	}
	for _, leg := range legs {
		resp.External = append(resp.External, FromExternalLeg(leg))
	}
	return resp
}

// FromExternalLeg maps a domain leg to the response shape.
func FromExternalLeg(leg domain.ExternalPayment) ExternalLegResponse {
	return ExternalLegResponse{
		ID:          leg.ID.String(),
		Rail:        string(leg.Rail),
		Amount:      domain.FromMinorUnits(leg.Amount, leg.Currency).String(),
		OrderRef:    leg.OrderRef,
		ProviderRef: leg.ProviderRef,
		Status:      string(leg.Status),
	}
}

// ReprocessRequest selects which stored event to replay.
type ReprocessRequest struct {
	EventID   string  `json:"event_id,omitempty"`
	PaymentID *string `json:"payment_id,omitempty" binding:"omitempty,uuid"`
}

func parseMajorAmount(raw, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if d.Exponent() < -domain.MinorUnitExponent(cur) {
		return 0, fmt.Errorf("amount %q has sub-%s precision", raw, cur)
	}
	return domain.ToMinorUnits(d, cur), nil
}
