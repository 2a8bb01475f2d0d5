package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// IntentServiceImpl implements ports.IntentService. It owns the intent
// lifecycle from creation through funding-plan execution; settlement of
// external legs belongs to the reconciler.
type IntentServiceImpl struct {
	intentRepo  ports.IntentRepository
	paymentRepo ports.ExternalPaymentRepository
	walletRepo  ports.WalletRepository
	ledgerRepo  ports.LedgerRepository
	idempRepo   ports.IdempotencyRepository
	idempCache  ports.IdempotencyCache
	planner     ports.FundingPlanner
	gateway     ports.ProviderGateway
	poster      ports.LedgerPoster
	transactor  ports.DBTransactor
	lock        ports.ProcessingLock
	log         zerolog.Logger
}

// NewIntentService creates a new IntentServiceImpl.
func NewIntentService(
	intentRepo ports.IntentRepository,
	paymentRepo ports.ExternalPaymentRepository,
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	planner ports.FundingPlanner,
	gateway ports.ProviderGateway,
	poster ports.LedgerPoster,
	transactor ports.DBTransactor,
	lock ports.ProcessingLock,
	log zerolog.Logger,
) *IntentServiceImpl {
	return &IntentServiceImpl{
		intentRepo:  intentRepo,
		paymentRepo: paymentRepo,
		walletRepo:  walletRepo,
		ledgerRepo:  ledgerRepo,
		idempRepo:   idempRepo,
		idempCache:  idempCache,
		planner:     planner,
		gateway:     gateway,
		poster:      poster,
		transactor:  transactor,
		lock:        lock,
		log:         log,
	}
}

// CreateIntent validates the funding request, builds (or validates) the plan,
// and persists a PENDING intent.
func (s *IntentServiceImpl) CreateIntent(ctx context.Context, req ports.CreateIntentRequest) (*domain.PaymentIntent, error) {
	if req.AmountDue <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	currency := strings.ToUpper(req.Currency)

	plan, err := s.planner.BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   req.PayerID,
		AmountDue: req.AmountDue,
		Currency:  currency,
		Override:  req.Override,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	intent := &domain.PaymentIntent{
		ID:         uuid.New(),
		PayerID:    req.PayerID,
		MerchantID: req.MerchantID,
		AmountDue:  req.AmountDue,
		Currency:   currency,
		Status:     domain.IntentStatusPending,
		Plan:       plan,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.intentRepo.Create(ctx, intent); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create intent: %w", err))
	}

	s.log.Info().
		Str("intent_id", intent.ID.String()).
		Str("payer_id", req.PayerID.String()).
		Int64("amount_due", req.AmountDue).
		Int("legs", len(plan)).
		Msg("Payment intent created")
	return intent, nil
}

// ConfirmIntent executes the funding plan: wallet legs are debited first
// (atomic compare-and-debit), then external legs are dispatched sequentially
// in priority order. The whole operation is idempotent under the caller's key.
func (s *IntentServiceImpl) ConfirmIntent(ctx context.Context, req ports.ConfirmIntentRequest) (*ports.ConfirmIntentResult, error) {
	if req.IdempotencyKey == "" {
		return nil, apperror.Validation("idempotency key is required")
	}

	idempKey := domain.BuildConfirmKey(req.IntentID, req.IdempotencyKey)

	// Layer 1: Redis idempotency check
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return unmarshalConfirmResult(cached)
	}

	// Serialize execution per intent. A second confirm, same key or not,
	// blocks here until the first finishes and then observes its outcome
	// instead of dispatching the same leg twice.
	release, err := s.lock.Acquire(ctx, "confirm:"+req.IntentID.String())
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("acquire confirm lock: %w", err))
	}
	defer release()

	// Layer 2: DB idempotency check
	record, err := s.idempRepo.Get(ctx, idempKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if record != nil {
		return unmarshalConfirmResult(record.ResponseJSON)
	}

	intent, err := s.intentRepo.GetByID(ctx, req.IntentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load intent: %w", err))
	}
	if intent == nil || intent.PayerID != req.PayerID {
		return nil, apperror.ErrNotFound("payment intent")
	}
	if intent.IsTerminal() {
		return nil, apperror.ErrIntentTerminal(string(intent.Status))
	}
	if intent.Status != domain.IntentStatusPending {
		return nil, apperror.Validation("intent has already been confirmed")
	}

	plan := intent.Plan
	plan.SortByPriority()

	result := &ports.ConfirmIntentResult{IntentID: intent.ID}

	// Wallet legs first. A balance that moved since planning fails the whole
	// confirmation before any provider is touched.
	for _, leg := range plan.WalletLegs() {
		walletID, err := s.resolveWalletID(ctx, leg, intent)
		if err != nil {
			return nil, err
		}
		ref := domain.BuildDispatchKey(intent.ID, leg.Priority)
		narration := "Wallet funding for intent " + intent.ID.String()
		if err := s.poster.DebitWallet(ctx, walletID, leg.Amount, intent.Currency, ref, narration, intent.ID); err != nil {
			return nil, err
		}
		result.WalletDebits = append(result.WalletDebits, ports.WalletDebit{
			WalletID: walletID,
			Amount:   leg.Amount,
			Ref:      ref,
		})
	}

	// External legs, sequentially in priority order. A leg row exists before
	// the provider call so a crash mid-dispatch leaves a reconcilable record.
	anyFailed := false
	for _, leg := range plan.ExternalLegs() {
		payment, err := s.dispatchLeg(ctx, intent, leg, req)
		if err != nil {
			return nil, err
		}
		if payment.Status == domain.PaymentStatusFailed {
			anyFailed = true
		}
		result.External = append(result.External, *payment)
	}

	nextStatus := domain.IntentStatusSettled
	switch {
	case anyFailed:
		nextStatus = domain.IntentStatusFailed
	case len(result.External) > 0:
		nextStatus = domain.IntentStatusFundedPendingSettlement
	}
	if _, err := s.intentRepo.UpdateStatus(ctx, intent.ID, nextStatus); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update intent status: %w", err))
	}
	result.Status = nextStatus

	if anyFailed {
		if err := s.poster.ReverseIntentDebits(ctx, intent.ID); err != nil {
			return nil, err
		}
	}

	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal result: %w", err))
	}
	if err := s.idempRepo.Save(ctx, &domain.IdempotencyRecord{
		Key:          idempKey,
		IntentID:     intent.ID,
		ResponseJSON: respJSON,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("save idempotency record: %w", err))
	}
	if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("failed to cache idempotency in redis")
	}

	s.log.Info().
		Str("intent_id", intent.ID.String()).
		Str("status", string(nextStatus)).
		Int("wallet_legs", len(result.WalletDebits)).
		Int("external_legs", len(result.External)).
		Msg("Payment intent confirmed")
	return result, nil
}

// GetIntent returns the intent and its external legs.
func (s *IntentServiceImpl) GetIntent(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, []domain.ExternalPayment, error) {
	intent, err := s.intentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("load intent: %w", err))
	}
	if intent == nil {
		return nil, nil, apperror.ErrNotFound("payment intent")
	}

	legs, err := s.paymentRepo.ListByIntentID(ctx, id)
	if err != nil {
		return nil, nil, apperror.InternalError(fmt.Errorf("list legs: %w", err))
	}
	return intent, legs, nil
}

// dispatchLeg creates the leg row, writes the pending settlement entry, and
// pushes the payment through the gateway. Infrastructure failures leave the
// leg PENDING for later reconciliation; a provider decline fails it.
func (s *IntentServiceImpl) dispatchLeg(ctx context.Context, intent *domain.PaymentIntent, leg domain.FundingAllocation, req ports.ConfirmIntentRequest) (*domain.ExternalPayment, error) {
	orderRef := domain.BuildDispatchKey(intent.ID, leg.Priority)
	now := time.Now().UTC()

	payment := &domain.ExternalPayment{
		ID:        uuid.New(),
		IntentID:  intent.ID,
		Rail:      leg.SourceType,
		Amount:    leg.Amount,
		Currency:  intent.Currency,
		OrderRef:  orderRef,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create external payment: %w", err))
	}
	if err := s.recordPendingSettlement(ctx, payment); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"amount":    leg.Amount,
		"currency":  intent.Currency,
		"reference": orderRef,
	}
	for k, v := range req.SourceDetails {
		payload[k] = v
	}

	dispatch, err := s.gateway.Execute(ctx, ports.DispatchRequest{
		Rail:           leg.SourceType,
		Action:         ports.ActionPushPayment,
		Payload:        payload,
		IdempotencyKey: orderRef,
		CorrelationID:  req.CorrelationID,
	})
	if err != nil {
		// Provider unreachable or breaker open: the leg stays PENDING and a
		// webhook or manual reprocess resolves it later.
		s.log.Warn().Err(err).
			Str("intent_id", intent.ID.String()).
			Str("order_ref", orderRef).
			Str("rail", string(leg.SourceType)).
			Msg("Leg dispatch failed, leaving pending")
		meta, _ := json.Marshal(map[string]string{"dispatch_error": err.Error()})
		if _, uerr := s.paymentRepo.UpdateStatus(ctx, payment.ID, domain.PaymentStatusPending, meta); uerr != nil {
			return nil, apperror.InternalError(fmt.Errorf("record dispatch error: %w", uerr))
		}
		payment.Metadata = meta
		return payment, nil
	}

	if dispatch.ProviderRef != "" {
		if err := s.paymentRepo.SetProviderRef(ctx, payment.ID, dispatch.ProviderRef); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("set provider ref: %w", err))
		}
		payment.ProviderRef = &dispatch.ProviderRef
	}

	meta, _ := json.Marshal(map[string]any{"provider_response": json.RawMessage(dispatch.Raw), "reason": dispatch.Reason})
	status := domain.PaymentStatusPending
	if dispatch.Status == domain.PaymentStatusFailed {
		status = domain.PaymentStatusFailed
	}
	if _, err := s.paymentRepo.UpdateStatus(ctx, payment.ID, status, meta); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update leg status: %w", err))
	}
	payment.Status = status
	payment.Metadata = meta
	return payment, nil
}

// recordPendingSettlement writes the expectation entry for an external leg.
// Settlement flips it to posted exactly once.
func (s *IntentServiceImpl) recordPendingSettlement(ctx context.Context, payment *domain.ExternalPayment) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Currency:  payment.Currency,
		Amount:    payment.Amount,
		Type:      domain.EntryTypeCredit,
		Status:    domain.EntryStatusPending,
		Ref:       payment.OrderRef,
		IntentID:  &payment.IntentID,
		PaymentID: &payment.ID,
		Narration: fmt.Sprintf("Expected settlement via %s", payment.Rail),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledgerRepo.Append(ctx, dbTx, entry); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// resolveWalletID maps a wallet leg to its wallet row, falling back to the
// payer's wallet when the plan carries no source id.
func (s *IntentServiceImpl) resolveWalletID(ctx context.Context, leg domain.FundingAllocation, intent *domain.PaymentIntent) (uuid.UUID, error) {
	if leg.SourceID != "" {
		id, err := uuid.Parse(leg.SourceID)
		if err == nil {
			return id, nil
		}
	}
	wallet, err := s.walletRepo.GetByOwner(ctx, intent.PayerID, intent.Currency)
	if err != nil {
		return uuid.Nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return uuid.Nil, apperror.ErrNotFound("wallet")
	}
	return wallet.ID, nil
}

// unmarshalConfirmResult deserializes a cached confirmation result.
func unmarshalConfirmResult(data []byte) (*ports.ConfirmIntentResult, error) {
	result := &ports.ConfirmIntentResult{}
	if err := json.Unmarshal(data, result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached result: %w", err))
	}
	return result, nil
}
