package ports

import (
	"context"
	"encoding/json"
	"time"

	"bridge-orchestrator/internal/core/domain"

	"github.com/google/uuid"
)

//go:generate mockgen -source=services.go -destination=mocks/services.go -package=mocks

// EncryptionService handles AES-256-GCM encryption/decryption of balances at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// HashService handles secret hashing (Argon2id) for API client credentials.
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT operations for operator sessions.
type TokenService interface {
	Generate(clientID uuid.UUID, accessKey string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	ClientID  uuid.UUID
	AccessKey string
}

// Authorizer is the single capability check consumed by the HTTP layer. The
// orchestration core never inspects role strings.
type Authorizer interface {
	Permits(ctx context.Context, subject *domain.APIClient, action string) bool
}

// AuthService manages API client accounts and operator sessions.
type AuthService interface {
	// RegisterClient provisions a client account. The plaintext secret is
	// returned exactly once.
	RegisterClient(ctx context.Context, req RegisterClientRequest) (*RegisterClientResponse, error)
	// Authenticate resolves an access key + secret pair to the client account.
	Authenticate(ctx context.Context, accessKey, secret string) (*domain.APIClient, error)
	// Login exchanges credentials for an operator JWT.
	Login(ctx context.Context, accessKey, secret string) (string, time.Time, error)
	// ResolveToken maps a validated JWT back to the client account.
	ResolveToken(ctx context.Context, token string) (*domain.APIClient, error)
}

// RegisterClientRequest holds input for client provisioning.
type RegisterClientRequest struct {
	Name         string
	Capabilities []string
}

// RegisterClientResponse returns the generated credentials.
type RegisterClientResponse struct {
	ClientID  uuid.UUID `json:"client_id"`
	AccessKey string    `json:"access_key"`
	SecretKey string    `json:"secret_key"`
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ProcessingLock serializes work per key: reconciliation per payment so
// concurrent webhook deliveries cannot race the first-completion guard, and
// confirmation per intent so concurrent confirms cannot dispatch a leg twice.
type ProcessingLock interface {
	// Acquire blocks (bounded by ctx) until the lock for key is held, and
	// returns a release func.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// --- Provider gateway ---

// DispatchAction identifies the provider-side operation being requested.
type DispatchAction string

const (
	ActionPushPayment DispatchAction = "push_payment"
	ActionStatusQuery DispatchAction = "status_query"
)

// DispatchRequest is one external-rail action.
type DispatchRequest struct {
	Rail           domain.FundingSource
	Action         DispatchAction
	Payload        map[string]any
	IdempotencyKey string
	CorrelationID  string
}

// DispatchResult is the normalized outcome of a provider call.
type DispatchResult struct {
	OK          bool                 `json:"ok"`
	Status      domain.PaymentStatus `json:"status"`
	ProviderRef string               `json:"provider_ref,omitempty"`
	Raw         json.RawMessage      `json:"raw,omitempty"`
	Reason      string               `json:"reason,omitempty"`
	HTTPStatus  int                  `json:"http_status,omitempty"`
}

// ProviderGateway executes one external-rail action with bounded latency and
// bounded blast radius on upstream failure.
type ProviderGateway interface {
	Execute(ctx context.Context, req DispatchRequest) (*DispatchResult, error)
}

// --- Business services ---

// FundingPlanner builds and validates funding plans.
type FundingPlanner interface {
	BuildPlan(ctx context.Context, req FundingPlanRequest) (domain.FundingPlan, error)
}

// FundingPlanRequest is the input to plan construction.
type FundingPlanRequest struct {
	PayerID   uuid.UUID
	AmountDue int64 // Minor units
	Currency  string
	// Override, when non-empty, bypasses autopilot and is validated instead.
	Override domain.FundingPlan
}

// IntentService owns the payment intent lifecycle from creation through
// dispatch.
type IntentService interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*domain.PaymentIntent, error)
	// ConfirmIntent executes the funding plan: wallet legs debited first, then
	// external legs dispatched sequentially in priority order.
	ConfirmIntent(ctx context.Context, req ConfirmIntentRequest) (*ConfirmIntentResult, error)
	GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, []domain.ExternalPayment, error)
}

// CreateIntentRequest holds validated input for intent creation.
type CreateIntentRequest struct {
	PayerID    uuid.UUID
	MerchantID *uuid.UUID
	AmountDue  int64 // Minor units
	Currency   string
	Override   domain.FundingPlan
}

// ConfirmIntentRequest holds input for funding-plan execution.
type ConfirmIntentRequest struct {
	IntentID       uuid.UUID
	PayerID        uuid.UUID
	IdempotencyKey string
	CorrelationID  string
	// SourceDetails carries per-rail execution metadata, e.g. msisdn for a
	// mobile-money push.
	SourceDetails map[string]string
}

// ConfirmIntentResult summarizes what the confirmation did.
type ConfirmIntentResult struct {
	IntentID     uuid.UUID                `json:"intent_id"`
	Status       domain.IntentStatus      `json:"status"`
	WalletDebits []WalletDebit            `json:"wallet_debits"`
	External     []domain.ExternalPayment `json:"external"`
}

// WalletDebit records one internal-wallet leg that was debited.
type WalletDebit struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Amount   int64     `json:"amount"`
	Ref      string    `json:"ref"`
}

// Reconciler consumes asynchronous provider events and settles intents.
type Reconciler interface {
	// HandleEvent ingests a raw webhook payload. Reconciliation errors are
	// recorded, not returned; ingress must succeed so providers stop
	// redelivering.
	HandleEvent(ctx context.Context, raw []byte, signature string) (*domain.ProviderEvent, error)
	// Reprocess re-runs reconciliation against the stored raw payload of an
	// event or a payment's latest event.
	Reprocess(ctx context.Context, req ReprocessRequest) (*ReprocessResult, error)
	UnmatchedEvents(ctx context.Context, limit int) ([]domain.ProviderEvent, error)
}

// ReprocessRequest identifies what to replay: an event id or a payment id.
type ReprocessRequest struct {
	EventID   string
	PaymentID *uuid.UUID
}

// ReprocessResult reports the replay outcome.
type ReprocessResult struct {
	OK        bool                 `json:"ok"`
	PaymentID uuid.UUID            `json:"payment_id"`
	NewStatus domain.PaymentStatus `json:"new_status"`
}

// LedgerPoster appends immutable ledger entries. Duplicate detection is the
// caller's contract; the poster is a pure append.
type LedgerPoster interface {
	// PostLegSettlement writes the entries for a completed external leg.
	PostLegSettlement(ctx context.Context, payment *domain.ExternalPayment) error
	// DebitWallet atomically checks and debits an internal wallet, posting the
	// matching ledger entry in the same transaction.
	DebitWallet(ctx context.Context, walletID uuid.UUID, amount int64, currency, ref, narration string, intentID uuid.UUID) error
	// ReverseIntentDebits posts compensating credits for every wallet debit of
	// a failed intent.
	ReverseIntentDebits(ctx context.Context, intentID uuid.UUID) error
}
