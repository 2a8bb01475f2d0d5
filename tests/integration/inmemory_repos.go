package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Intent Repo ---

type inMemoryIntentRepo struct {
	mu      sync.RWMutex
	intents map[uuid.UUID]*domain.PaymentIntent
}

func newInMemoryIntentRepo() *inMemoryIntentRepo {
	return &inMemoryIntentRepo{intents: make(map[uuid.UUID]*domain.PaymentIntent)}
}

func (r *inMemoryIntentRepo) Create(ctx context.Context, intent *domain.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *intent
	r.intents[intent.ID] = &cp
	return nil
}

func (r *inMemoryIntentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.intents[id]
	if !ok {
		return nil, nil
	}
	cp := *in
	return &cp, nil
}

func (r *inMemoryIntentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.IntentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return false, nil
	}
	// Same guard as the UPDATE's WHERE clause: terminal rows and no-op
	// transitions are left untouched.
	if in.IsTerminal() || in.Status == status {
		return false, nil
	}
	in.Status = status
	return true, nil
}

func (r *inMemoryIntentRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.IntentStatus) (bool, error) {
	return r.UpdateStatus(ctx, id, status)
}

// --- In-Memory External Payment Repo ---

type inMemoryExternalPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.ExternalPayment
	order    []uuid.UUID
}

func newInMemoryExternalPaymentRepo() *inMemoryExternalPaymentRepo {
	return &inMemoryExternalPaymentRepo{payments: make(map[uuid.UUID]*domain.ExternalPayment)}
}

func (r *inMemoryExternalPaymentRepo) Create(ctx context.Context, p *domain.ExternalPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
	r.order = append(r.order, p.ID)
	return nil
}

func (r *inMemoryExternalPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExternalPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryExternalPaymentRepo) FindByReference(ctx context.Context, ref string) (*domain.ExternalPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.ExternalPayment
	for i := len(r.order) - 1; i >= 0; i-- {
		p := r.payments[r.order[i]]
		if p.OrderRef != ref && (p.ProviderRef == nil || *p.ProviderRef != ref) {
			continue
		}
		if p.Status == domain.PaymentStatusPending {
			cp := *p
			return &cp, nil
		}
		if best == nil {
			best = p
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (r *inMemoryExternalPaymentRepo) ListByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.ExternalPayment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.ExternalPayment
	for _, id := range r.order {
		if p := r.payments[id]; p.IntentID == intentID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (r *inMemoryExternalPaymentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, metadata []byte) (domain.PaymentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return "", fmt.Errorf("external payment not found: %s", id)
	}
	prev := p.Status
	p.Status = status
	if len(metadata) > 0 {
		merged := map[string]json.RawMessage{}
		if len(p.Metadata) > 0 {
			_ = json.Unmarshal(p.Metadata, &merged)
		}
		patch := map[string]json.RawMessage{}
		if err := json.Unmarshal(metadata, &patch); err == nil {
			for k, v := range patch {
				merged[k] = v
			}
		}
		p.Metadata, _ = json.Marshal(merged)
	}
	return prev, nil
}

func (r *inMemoryExternalPaymentRepo) SetProviderRef(ctx context.Context, id uuid.UUID, providerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return fmt.Errorf("external payment not found: %s", id)
	}
	p.ProviderRef = &providerRef
	return nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
	sources []domain.WalletSource
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *inMemoryWalletRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID, currency string) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.OwnerID == ownerID && w.Currency == currency {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, encryptedBalance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	w.EncryptedBalance = encryptedBalance
	return nil
}

func (r *inMemoryWalletRepo) ListSources(ctx context.Context, ownerID uuid.UUID, currency string) ([]domain.WalletSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.WalletSource
	for _, s := range r.sources {
		if s.OwnerID == ownerID && s.Currency == currency && s.Active {
			result = append(result, s)
		}
	}
	return result, nil
}

func (r *inMemoryWalletRepo) addSource(s domain.WalletSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, s)
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.Mutex
	byRef   map[string]*domain.LedgerEntry
	entries []*domain.LedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{byRef: make(map[string]*domain.LedgerEntry)}
}

func (r *inMemoryLedgerRepo) Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[entry.Ref]; exists {
		return apperror.ErrLedgerDoublePost(entry.Ref)
	}
	cp := *entry
	r.byRef[entry.Ref] = &cp
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *inMemoryLedgerRepo) GetByRef(ctx context.Context, ref string) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byRef[ref]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryLedgerRepo) ListByIntentID(ctx context.Context, intentID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.LedgerEntry
	for _, e := range r.entries {
		if e.IntentID != nil && *e.IntentID == intentID {
			result = append(result, *e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *inMemoryLedgerRepo) MarkPosted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			if e.Status != domain.EntryStatusPending {
				return fmt.Errorf("ledger entry not pending: %s", id)
			}
			e.Status = domain.EntryStatusPosted
			return nil
		}
	}
	return fmt.Errorf("ledger entry not pending: %s", id)
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) Save(ctx context.Context, record *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// First write wins; the racing loser reads the winner back on Get.
	if _, exists := r.records[record.Key]; exists {
		return nil
	}
	cp := *record
	r.records[record.Key] = &cp
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// --- In-Memory Provider Event Repo ---

type inMemoryEventRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.ProviderEvent
	entries []*domain.ProviderEvent
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{byID: make(map[string]*domain.ProviderEvent)}
}

func (r *inMemoryEventRepo) Create(ctx context.Context, event *domain.ProviderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[event.EventID]; exists {
		return nil
	}
	cp := *event
	r.byID[event.EventID] = &cp
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *inMemoryEventRepo) GetByEventID(ctx context.Context, eventID string) (*domain.ProviderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[eventID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *inMemoryEventRepo) LatestForPayment(ctx context.Context, paymentID uuid.UUID) (*domain.ProviderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.PaymentID != nil && *e.PaymentID == paymentID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryEventRepo) ListUnmatched(ctx context.Context, limit int) ([]domain.ProviderEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.ProviderEvent
	for i := len(r.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if !r.entries[i].Matched {
			result = append(result, *r.entries[i])
		}
	}
	return result, nil
}

func (r *inMemoryEventRepo) MarkMatched(ctx context.Context, eventID string, paymentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[eventID]
	if !ok {
		return nil
	}
	e.Matched = true
	id := paymentID
	e.PaymentID = &id
	return nil
}

// --- In-Memory Client Repo ---

type inMemoryClientRepo struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*domain.APIClient
}

func newInMemoryClientRepo() *inMemoryClientRepo {
	return &inMemoryClientRepo{clients: make(map[uuid.UUID]*domain.APIClient)}
}

func (r *inMemoryClientRepo) Create(ctx context.Context, client *domain.APIClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *client
	r.clients[client.ID] = &cp
	return nil
}

func (r *inMemoryClientRepo) GetByAccessKey(ctx context.Context, accessKey string) (*domain.APIClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		if c.AccessKey == accessKey {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
