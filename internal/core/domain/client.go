package domain

import (
	"time"

	"github.com/google/uuid"
)

// ClientStatus represents the state of an API client account.
type ClientStatus string

const (
	ClientStatusActive    ClientStatus = "ACTIVE"
	ClientStatusSuspended ClientStatus = "SUSPENDED"
)

// APIClient is a caller of the orchestration API: a checkout frontend, a
// scheduler, or an operator console. Capabilities name the actions the client
// may invoke; the core consults them through the Authorizer and never inspects
// role strings directly.
type APIClient struct {
	ID            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	AccessKey     string       `json:"access_key"`
	SecretKeyHash string       `json:"-"` // Argon2id, never expose
	Capabilities  []string     `json:"capabilities"`
	Status        ClientStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsActive returns true if the client account is active.
func (c *APIClient) IsActive() bool {
	return c.Status == ClientStatusActive
}

// Well-known capability names checked through the Authorizer.
const (
	CapIntentCreate   = "intents.create"
	CapIntentConfirm  = "intents.confirm"
	CapIntentRead     = "intents.read"
	CapOpsReprocess   = "ops.reprocess"
	CapOpsBreakers    = "ops.breakers"
	CapOpsEvents      = "ops.events"
)
