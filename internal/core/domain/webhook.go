package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VerificationState records what we could establish about an inbound
// webhook's signature. Unverifiable payloads are still processed, since
// provider signature schemes vary, but the state is kept with the stored event.
type VerificationState string

const (
	// VerificationVerified means the signature matched the shared secret.
	VerificationVerified VerificationState = "verified"
	// VerificationUnverified means no signature was provided or no secret is
	// configured, so there was nothing to check.
	VerificationUnverified VerificationState = "unverified"
)

// ProviderEvent is one asynchronous delivery from a payment rail, stored
// verbatim (after redaction) whether or not it matched a payment. Unmatched
// events stay inspectable for manual reprocessing, never silently dropped.
type ProviderEvent struct {
	ID        uuid.UUID         `json:"id"`
	EventID   string            `json:"event_id"` // Provider id, or synthetic when absent
	PaymentID *uuid.UUID        `json:"payment_id,omitempty"`
	Status    PaymentStatus     `json:"status"` // Canonical mapping of the provider status
	Raw       json.RawMessage   `json:"raw"`    // Redacted payload
	Verified  VerificationState `json:"verified"`
	Matched   bool              `json:"matched"`
	CreatedAt time.Time         `json:"created_at"`
}
