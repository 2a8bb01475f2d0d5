package ports

import (
	"context"

	"bridge-orchestrator/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:generate mockgen -source=repositories.go -destination=mocks/repositories.go -package=mocks

// IntentRepository defines persistence operations for payment intents.
// Methods accepting pgx.Tx run inside transaction blocks.
type IntentRepository interface {
	Create(ctx context.Context, intent *domain.PaymentIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	// UpdateStatus transitions the intent. Guarded: the update only applies when
	// the current status is not terminal, and the returned bool tells the
	// caller whether it did.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.IntentStatus) (bool, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.IntentStatus) (bool, error)
}

// ExternalPaymentRepository defines persistence for external funding legs.
type ExternalPaymentRepository interface {
	Create(ctx context.Context, payment *domain.ExternalPayment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExternalPayment, error)
	// FindByReference locates a leg by provider reference or order reference,
	// preferring pending legs when several match.
	FindByReference(ctx context.Context, ref string) (*domain.ExternalPayment, error)
	ListByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.ExternalPayment, error)
	// UpdateStatus sets the leg status and merges metadata. Returns the previous
	// status so the caller can detect the first transition to COMPLETED.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, metadata []byte) (domain.PaymentStatus, error)
	SetProviderRef(ctx context.Context, id uuid.UUID, providerRef string) error
}

// WalletRepository defines persistence for internal wallets and the advisory
// balances of external rails.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*domain.Wallet, error)
	// GetByIDForUpdate locks the wallet row for the duration of the transaction
	// so the balance check-and-debit is atomic.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, encryptedBalance string) error
	ListSources(ctx context.Context, ownerID uuid.UUID, currency string) ([]domain.WalletSource, error)
}

// LedgerRepository defines append-only persistence for ledger entries.
type LedgerRepository interface {
	// Append inserts an entry. A duplicate reference fails loudly; the unique
	// constraint is the last line of defense against double-posting.
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByRef(ctx context.Context, ref string) (*domain.LedgerEntry, error)
	ListByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.LedgerEntry, error)
	MarkPosted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// IdempotencyRepository defines write-once persistence for dispatch results.
type IdempotencyRepository interface {
	// Save upserts with single-writer semantics: when two callers race on the
	// same key exactly one write wins and the other sees the winner on Get.
	Save(ctx context.Context, record *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// ProviderEventRepository defines persistence for inbound webhook events.
type ProviderEventRepository interface {
	Create(ctx context.Context, event *domain.ProviderEvent) error
	GetByEventID(ctx context.Context, eventID string) (*domain.ProviderEvent, error)
	// LatestForPayment returns the most recent stored event for a payment leg,
	// used by manual reprocessing.
	LatestForPayment(ctx context.Context, paymentID uuid.UUID) (*domain.ProviderEvent, error)
	ListUnmatched(ctx context.Context, limit int) ([]domain.ProviderEvent, error)
	// MarkMatched records that the event has been matched to a payment leg,
	// removing it from the unmatched backlog.
	MarkMatched(ctx context.Context, eventID string, paymentID uuid.UUID) error
}

// ClientRepository defines persistence for API client accounts.
type ClientRepository interface {
	Create(ctx context.Context, client *domain.APIClient) error
	GetByAccessKey(ctx context.Context, accessKey string) (*domain.APIClient, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
