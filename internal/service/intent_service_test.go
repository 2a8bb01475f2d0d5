package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/core/ports/mocks"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type intentTestDeps struct {
	svc         *IntentServiceImpl
	intentRepo  *mocks.MockIntentRepository
	paymentRepo *mocks.MockExternalPaymentRepository
	walletRepo  *mocks.MockWalletRepository
	ledgerRepo  *mocks.MockLedgerRepository
	idempRepo   *mocks.MockIdempotencyRepository
	idempCache  *mocks.MockIdempotencyCache
	planner     *mocks.MockFundingPlanner
	gateway     *mocks.MockProviderGateway
	poster      *mocks.MockLedgerPoster
	transactor  *mocks.MockDBTransactor
	lock        *mocks.MockProcessingLock
	ctrl        *gomock.Controller
}

func setupIntentService(t *testing.T) *intentTestDeps {
	ctrl := gomock.NewController(t)
	d := &intentTestDeps{
		intentRepo:  mocks.NewMockIntentRepository(ctrl),
		paymentRepo: mocks.NewMockExternalPaymentRepository(ctrl),
		walletRepo:  mocks.NewMockWalletRepository(ctrl),
		ledgerRepo:  mocks.NewMockLedgerRepository(ctrl),
		idempRepo:   mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:  mocks.NewMockIdempotencyCache(ctrl),
		planner:     mocks.NewMockFundingPlanner(ctrl),
		gateway:     mocks.NewMockProviderGateway(ctrl),
		poster:      mocks.NewMockLedgerPoster(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		lock:        mocks.NewMockProcessingLock(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewIntentService(
		d.intentRepo, d.paymentRepo, d.walletRepo, d.ledgerRepo,
		d.idempRepo, d.idempCache, d.planner, d.gateway, d.poster,
		d.transactor, d.lock, zerolog.Nop(),
	)
	return d
}

func pendingIntent(payerID uuid.UUID, plan domain.FundingPlan) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:        uuid.New(),
		PayerID:   payerID,
		AmountDue: plan.Total(),
		Currency:  "KES",
		Status:    domain.IntentStatusPending,
		Plan:      plan,
	}
}

func expectConfirmLock(d *intentTestDeps, intentID uuid.UUID) {
	d.lock.EXPECT().Acquire(gomock.Any(), "confirm:"+intentID.String()).
		Return(func() {}, nil)
}

// ==================== CreateIntent Tests ====================

func TestIntentService_CreateIntent_Success(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	plan := domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, SourceID: uuid.New().String(), Amount: 400, Priority: 0},
		{SourceType: domain.FundingSourceRailA, Amount: 600, Priority: 1},
	}

	d.planner.EXPECT().BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "KES",
	}).Return(plan, nil)
	d.intentRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, intent *domain.PaymentIntent) error {
			assert.Equal(t, domain.IntentStatusPending, intent.Status)
			assert.Equal(t, plan, intent.Plan)
			assert.Equal(t, "KES", intent.Currency)
			return nil
		})

	intent, err := d.svc.CreateIntent(ctx, ports.CreateIntentRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "kes",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusPending, intent.Status)
	assert.Equal(t, int64(1000), intent.AmountDue)
}

func TestIntentService_CreateIntent_PlannerErrorPropagates(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()

	d.planner.EXPECT().BuildPlan(ctx, gomock.Any()).
		Return(nil, apperror.ErrFundingPlanSumMismatch(1000, 950))

	_, err := d.svc.CreateIntent(ctx, ports.CreateIntentRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "KES",
		Override: domain.FundingPlan{
			{SourceType: domain.FundingSourceWallet, Amount: 950},
		},
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "FUNDING_PLAN_SUM_MISMATCH", appErr.Code)
}

func TestIntentService_CreateIntent_InvalidAmount(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.CreateIntent(context.Background(), ports.CreateIntentRequest{
		PayerID:   uuid.New(),
		AmountDue: -5,
		Currency:  "KES",
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_AMOUNT", appErr.Code)
}

// ==================== ConfirmIntent Tests ====================

func TestIntentService_ConfirmIntent_WalletAndExternalLeg(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}

	plan := domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, SourceID: walletID.String(), Amount: 400, Priority: 0},
		{SourceType: domain.FundingSourceRailA, Amount: 600, Priority: 1},
	}
	intent := pendingIntent(payerID, plan)

	req := ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        payerID,
		IdempotencyKey: "idem-1",
		CorrelationID:  "corr-1",
		SourceDetails:  map[string]string{"msisdn": "254700000001"},
	}
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-1")
	walletRef := domain.BuildDispatchKey(intent.ID, 0)
	orderRef := domain.BuildDispatchKey(intent.ID, 1)

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)

	// Wallet leg
	d.poster.EXPECT().DebitWallet(ctx, walletID, int64(400), "KES", walletRef, gomock.Any(), intent.ID).Return(nil)

	// External leg: row + pending settlement entry before the provider call
	var paymentID uuid.UUID
	d.paymentRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p *domain.ExternalPayment) error {
			paymentID = p.ID
			assert.Equal(t, orderRef, p.OrderRef)
			assert.Equal(t, domain.PaymentStatusPending, p.Status)
			return nil
		})
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entry *domain.LedgerEntry) error {
			assert.Equal(t, domain.EntryStatusPending, entry.Status)
			assert.Equal(t, domain.EntryTypeCredit, entry.Type)
			assert.Equal(t, orderRef, entry.Ref)
			return nil
		})
	d.gateway.EXPECT().Execute(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, dr ports.DispatchRequest) (*ports.DispatchResult, error) {
			assert.Equal(t, domain.FundingSourceRailA, dr.Rail)
			assert.Equal(t, ports.ActionPushPayment, dr.Action)
			assert.Equal(t, orderRef, dr.IdempotencyKey)
			assert.Equal(t, "corr-1", dr.CorrelationID)
			assert.Equal(t, orderRef, dr.Payload["reference"])
			assert.Equal(t, "254700000001", dr.Payload["msisdn"])
			return &ports.DispatchResult{
				OK:          true,
				Status:      domain.PaymentStatusPending,
				ProviderRef: "prov-123",
				Raw:         json.RawMessage(`{"status":"processing"}`),
			}, nil
		})
	d.paymentRepo.EXPECT().SetProviderRef(ctx, gomock.Any(), "prov-123").Return(nil)
	d.paymentRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.PaymentStatusPending, gomock.Any()).
		Return(domain.PaymentStatusPending, nil)

	d.intentRepo.EXPECT().UpdateStatus(ctx, intent.ID, domain.IntentStatusFundedPendingSettlement).Return(true, nil)
	d.idempRepo.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.ConfirmIntent(ctx, req)

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFundedPendingSettlement, result.Status)
	require.Len(t, result.WalletDebits, 1)
	assert.Equal(t, walletID, result.WalletDebits[0].WalletID)
	assert.Equal(t, walletRef, result.WalletDebits[0].Ref)
	require.Len(t, result.External, 1)
	assert.Equal(t, paymentID, result.External[0].ID)
	require.NotNil(t, result.External[0].ProviderRef)
	assert.Equal(t, "prov-123", *result.External[0].ProviderRef)
}

func TestIntentService_ConfirmIntent_WalletOnlySettlesImmediately(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	walletID := uuid.New()

	plan := domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, SourceID: walletID.String(), Amount: 1000, Priority: 0},
	}
	intent := pendingIntent(payerID, plan)
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)
	d.poster.EXPECT().DebitWallet(ctx, walletID, int64(1000), "KES", gomock.Any(), gomock.Any(), intent.ID).Return(nil)
	d.intentRepo.EXPECT().UpdateStatus(ctx, intent.ID, domain.IntentStatusSettled).Return(true, nil)
	d.idempRepo.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        payerID,
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSettled, result.Status)
	assert.Empty(t, result.External)
}

func TestIntentService_ConfirmIntent_RedisCacheHitShortCircuits(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intentID := uuid.New()
	idempKey := domain.BuildConfirmKey(intentID, "idem-1")

	cached := ports.ConfirmIntentResult{
		IntentID: intentID,
		Status:   domain.IntentStatusSettled,
	}
	cachedJSON, _ := json.Marshal(cached)

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(cachedJSON, nil)
	// No DB read, no dispatch, no status writes.

	result, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intentID,
		PayerID:        uuid.New(),
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, intentID, result.IntentID)
	assert.Equal(t, domain.IntentStatusSettled, result.Status)
}

func TestIntentService_ConfirmIntent_DBIdempotencyHit(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intentID := uuid.New()
	idempKey := domain.BuildConfirmKey(intentID, "idem-1")

	stored := ports.ConfirmIntentResult{
		IntentID: intentID,
		Status:   domain.IntentStatusFundedPendingSettlement,
	}
	storedJSON, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intentID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(&domain.IdempotencyRecord{
		Key:          idempKey,
		IntentID:     intentID,
		ResponseJSON: storedJSON,
	}, nil)

	result, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intentID,
		PayerID:        uuid.New(),
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFundedPendingSettlement, result.Status)
}

func TestIntentService_ConfirmIntent_RedisDownFallsThroughToDB(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intentID := uuid.New()
	idempKey := domain.BuildConfirmKey(intentID, "idem-1")

	stored := ports.ConfirmIntentResult{IntentID: intentID, Status: domain.IntentStatusSettled}
	storedJSON, _ := json.Marshal(stored)

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, errors.New("redis: connection refused"))
	expectConfirmLock(d, intentID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(&domain.IdempotencyRecord{
		Key:          idempKey,
		ResponseJSON: storedJSON,
	}, nil)

	result, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intentID,
		PayerID:        uuid.New(),
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusSettled, result.Status)
}

func TestIntentService_ConfirmIntent_MissingIdempotencyKey(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.ConfirmIntent(context.Background(), ports.ConfirmIntentRequest{
		IntentID: uuid.New(),
		PayerID:  uuid.New(),
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestIntentService_ConfirmIntent_NotFoundForWrongPayer(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intent := pendingIntent(uuid.New(), domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, Amount: 100},
	})
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)

	_, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        uuid.New(), // Not the owner
		IdempotencyKey: "idem-1",
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestIntentService_ConfirmIntent_TerminalIntentRejected(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	intent := pendingIntent(payerID, domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, Amount: 100},
	})
	intent.Status = domain.IntentStatusSettled
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-2")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)

	_, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        payerID,
		IdempotencyKey: "idem-2",
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INTENT_TERMINAL", appErr.Code)
}

func TestIntentService_ConfirmIntent_InsufficientFundsAbortsBeforeDispatch(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	walletID := uuid.New()

	plan := domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, SourceID: walletID.String(), Amount: 400, Priority: 0},
		{SourceType: domain.FundingSourceRailA, Amount: 600, Priority: 1},
	}
	intent := pendingIntent(payerID, plan)
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)
	d.poster.EXPECT().DebitWallet(ctx, walletID, int64(400), "KES", gomock.Any(), gomock.Any(), intent.ID).
		Return(apperror.ErrInsufficientFunds())
	// No provider call, no external leg rows.

	_, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        payerID,
		IdempotencyKey: "idem-1",
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_FUNDS", appErr.Code)
}

func TestIntentService_ConfirmIntent_DeclineFailsIntentAndCompensates(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}

	plan := domain.FundingPlan{
		{SourceType: domain.FundingSourceWallet, SourceID: walletID.String(), Amount: 400, Priority: 0},
		{SourceType: domain.FundingSourceRailA, Amount: 600, Priority: 1},
	}
	intent := pendingIntent(payerID, plan)
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)
	d.poster.EXPECT().DebitWallet(ctx, walletID, int64(400), "KES", gomock.Any(), gomock.Any(), intent.ID).Return(nil)
	d.paymentRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.gateway.EXPECT().Execute(ctx, gomock.Any()).Return(&ports.DispatchResult{
		OK:         false,
		Status:     domain.PaymentStatusFailed,
		Reason:     "insufficient balance at provider",
		HTTPStatus: 422,
	}, nil)
	d.paymentRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.PaymentStatusFailed, gomock.Any()).
		Return(domain.PaymentStatusFailed, nil)
	d.intentRepo.EXPECT().UpdateStatus(ctx, intent.ID, domain.IntentStatusFailed).Return(true, nil)
	d.poster.EXPECT().ReverseIntentDebits(ctx, intent.ID).Return(nil)
	d.idempRepo.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        payerID,
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFailed, result.Status)
	require.Len(t, result.External, 1)
	assert.Equal(t, domain.PaymentStatusFailed, result.External[0].Status)
}

func TestIntentService_ConfirmIntent_GatewayErrorLeavesLegPending(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	tx := &mockTx{}

	plan := domain.FundingPlan{
		{SourceType: domain.FundingSourceRailB, Amount: 1000, Priority: 0},
	}
	intent := pendingIntent(payerID, plan)
	idempKey := domain.BuildConfirmKey(intent.ID, "idem-1")

	d.idempCache.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	expectConfirmLock(d, intent.ID)
	d.idempRepo.EXPECT().Get(ctx, idempKey).Return(nil, nil)
	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)
	d.paymentRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).Return(nil)
	d.gateway.EXPECT().Execute(ctx, gomock.Any()).
		Return(nil, apperror.ErrCircuitOpen("rail_b"))
	d.paymentRepo.EXPECT().UpdateStatus(ctx, gomock.Any(), domain.PaymentStatusPending, gomock.Any()).
		Return(domain.PaymentStatusPending, nil)
	d.intentRepo.EXPECT().UpdateStatus(ctx, intent.ID, domain.IntentStatusFundedPendingSettlement).Return(true, nil)
	d.idempRepo.EXPECT().Save(ctx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, idempKey, gomock.Any(), idempotencyTTL).Return(nil)

	result, err := d.svc.ConfirmIntent(ctx, ports.ConfirmIntentRequest{
		IntentID:       intent.ID,
		PayerID:        payerID,
		IdempotencyKey: "idem-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.IntentStatusFundedPendingSettlement, result.Status)
	require.Len(t, result.External, 1)
	assert.Equal(t, domain.PaymentStatusPending, result.External[0].Status)
}

// ==================== GetIntent Tests ====================

func TestIntentService_GetIntent_Success(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intent := pendingIntent(uuid.New(), domain.FundingPlan{
		{SourceType: domain.FundingSourceRailA, Amount: 500},
	})
	legs := []domain.ExternalPayment{{ID: uuid.New(), IntentID: intent.ID}}

	d.intentRepo.EXPECT().GetByID(ctx, intent.ID).Return(intent, nil)
	d.paymentRepo.EXPECT().ListByIntentID(ctx, intent.ID).Return(legs, nil)

	got, gotLegs, err := d.svc.GetIntent(ctx, intent.ID)

	require.NoError(t, err)
	assert.Equal(t, intent.ID, got.ID)
	assert.Len(t, gotLegs, 1)
}

func TestIntentService_GetIntent_NotFound(t *testing.T) {
	d := setupIntentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.intentRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, _, err := d.svc.GetIntent(ctx, id)

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}
