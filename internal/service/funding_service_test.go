package service

import (
	"context"
	"errors"
	"testing"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/internal/core/ports/mocks"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fundingTestDeps struct {
	svc        *FundingPlannerImpl
	walletRepo *mocks.MockWalletRepository
	encSvc     *mocks.MockEncryptionService
	ctrl       *gomock.Controller
}

func setupFundingPlanner(t *testing.T) *fundingTestDeps {
	ctrl := gomock.NewController(t)
	d := &fundingTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		encSvc:     mocks.NewMockEncryptionService(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewFundingPlanner(
		d.walletRepo, d.encSvc,
		[]domain.FundingSource{domain.FundingSourceRailA, domain.FundingSourceRailB, domain.FundingSourceRailC},
		domain.FundingSourceRailA,
		zerolog.Nop(),
	)
	return d
}

// ==================== Autopilot Tests ====================

func TestFundingPlanner_Autopilot_WalletThenRail(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()
	walletID := uuid.New()
	sourceID := uuid.New()

	d.walletRepo.EXPECT().GetByOwner(ctx, payerID, "KES").Return(&domain.Wallet{
		ID:               walletID,
		OwnerID:          payerID,
		Currency:         "KES",
		EncryptedBalance: "enc_400",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_400").Return("400", nil)
	d.walletRepo.EXPECT().ListSources(ctx, payerID, "KES").Return([]domain.WalletSource{
		{ID: sourceID, OwnerID: payerID, Rail: domain.FundingSourceRailA, Currency: "KES", Balance: 5000, Active: true},
	}, nil)

	plan, err := d.svc.BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "KES",
	})

	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, domain.FundingSourceWallet, plan[0].SourceType)
	assert.Equal(t, walletID.String(), plan[0].SourceID)
	assert.Equal(t, int64(400), plan[0].Amount)
	assert.Equal(t, 0, plan[0].Priority)
	assert.Equal(t, domain.FundingSourceRailA, plan[1].SourceType)
	assert.Equal(t, int64(600), plan[1].Amount)
	assert.Equal(t, 1, plan[1].Priority)
	assert.Equal(t, int64(1000), plan.Total())
}

func TestFundingPlanner_Autopilot_WalletCoversEverything(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()

	d.walletRepo.EXPECT().GetByOwner(ctx, payerID, "KES").Return(&domain.Wallet{
		ID:               uuid.New(),
		OwnerID:          payerID,
		EncryptedBalance: "enc_2000",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_2000").Return("2000", nil)

	plan, err := d.svc.BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   payerID,
		AmountDue: 1500,
		Currency:  "KES",
	})

	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, domain.FundingSourceWallet, plan[0].SourceType)
	assert.Equal(t, int64(1500), plan[0].Amount)
}

func TestFundingPlanner_Autopilot_HoldReducesWalletAvailability(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()

	d.walletRepo.EXPECT().GetByOwner(ctx, payerID, "KES").Return(&domain.Wallet{
		ID:               uuid.New(),
		OwnerID:          payerID,
		EncryptedBalance: "enc_1000",
		Hold:             700,
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_1000").Return("1000", nil)
	d.walletRepo.EXPECT().ListSources(ctx, payerID, "KES").Return(nil, nil)

	plan, err := d.svc.BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "KES",
	})

	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, int64(300), plan[0].Amount)
	// No rail sources configured: the default rail absorbs the remainder.
	assert.Equal(t, domain.FundingSourceRailA, plan[1].SourceType)
	assert.Equal(t, "", plan[1].SourceID)
	assert.Equal(t, int64(700), plan[1].Amount)
}

func TestFundingPlanner_Autopilot_RailOrderRespected(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()

	d.walletRepo.EXPECT().GetByOwner(ctx, payerID, "KES").Return(nil, nil)
	d.walletRepo.EXPECT().ListSources(ctx, payerID, "KES").Return([]domain.WalletSource{
		{ID: uuid.New(), Rail: domain.FundingSourceRailC, Balance: 10000, Active: true},
		{ID: uuid.New(), Rail: domain.FundingSourceRailB, Balance: 300, Active: true},
		{ID: uuid.New(), Rail: domain.FundingSourceRailA, Balance: 500, Active: true},
	}, nil)

	plan, err := d.svc.BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "KES",
	})

	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, domain.FundingSourceRailA, plan[0].SourceType)
	assert.Equal(t, int64(500), plan[0].Amount)
	assert.Equal(t, domain.FundingSourceRailB, plan[1].SourceType)
	assert.Equal(t, int64(300), plan[1].Amount)
	assert.Equal(t, domain.FundingSourceRailC, plan[2].SourceType)
	assert.Equal(t, int64(200), plan[2].Amount)
}

func TestFundingPlanner_Autopilot_InactiveSourceSkipped(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payerID := uuid.New()

	d.walletRepo.EXPECT().GetByOwner(ctx, payerID, "KES").Return(nil, nil)
	d.walletRepo.EXPECT().ListSources(ctx, payerID, "KES").Return([]domain.WalletSource{
		{ID: uuid.New(), Rail: domain.FundingSourceRailA, Balance: 10000, Active: false},
		{ID: uuid.New(), Rail: domain.FundingSourceRailB, Balance: 10000, Active: true},
	}, nil)

	plan, err := d.svc.BuildPlan(ctx, ports.FundingPlanRequest{
		PayerID:   payerID,
		AmountDue: 1000,
		Currency:  "KES",
	})

	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, domain.FundingSourceRailB, plan[0].SourceType)
	assert.Equal(t, int64(1000), plan[0].Amount)
}

func TestFundingPlanner_Autopilot_InvalidAmount(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	_, err := d.svc.BuildPlan(context.Background(), ports.FundingPlanRequest{
		PayerID:   uuid.New(),
		AmountDue: 0,
		Currency:  "KES",
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_AMOUNT", appErr.Code)
}

// ==================== Override Tests ====================

func TestFundingPlanner_Override_Valid(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	plan, err := d.svc.BuildPlan(context.Background(), ports.FundingPlanRequest{
		PayerID:   uuid.New(),
		AmountDue: 1000,
		Currency:  "KES",
		Override: domain.FundingPlan{
			{SourceType: domain.FundingSourceRailB, Amount: 600, Priority: 99},
			{SourceType: domain.FundingSourceWallet, SourceID: uuid.New().String(), Amount: 400, Priority: 0},
		},
	})

	require.NoError(t, err)
	require.Len(t, plan, 2)
	// The plan comes back sorted by the caller's priorities, not list order.
	assert.Equal(t, domain.FundingSourceWallet, plan[0].SourceType)
	assert.Equal(t, 0, plan[0].Priority)
	assert.Equal(t, domain.FundingSourceRailB, plan[1].SourceType)
	assert.Equal(t, 99, plan[1].Priority)
	assert.Equal(t, int64(1000), plan.Total())
}

func TestFundingPlanner_Override_ResortsBySuppliedPriority(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	walletID := uuid.New().String()
	plan, err := d.svc.BuildPlan(context.Background(), ports.FundingPlanRequest{
		PayerID:   uuid.New(),
		AmountDue: 1000,
		Currency:  "KES",
		Override: domain.FundingPlan{
			{SourceType: domain.FundingSourceRailA, Amount: 700, Priority: 2},
			{SourceType: domain.FundingSourceRailB, Amount: 200, Priority: 1},
			{SourceType: domain.FundingSourceWallet, SourceID: walletID, Amount: 100, Priority: 0},
		},
	})

	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, domain.FundingSourceWallet, plan[0].SourceType)
	assert.Equal(t, domain.FundingSourceRailB, plan[1].SourceType)
	assert.Equal(t, domain.FundingSourceRailA, plan[2].SourceType)
	for i := range plan {
		assert.Equal(t, i, plan[i].Priority)
	}
}

func TestFundingPlanner_Override_SumMismatch(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	_, err := d.svc.BuildPlan(context.Background(), ports.FundingPlanRequest{
		PayerID:   uuid.New(),
		AmountDue: 1000,
		Currency:  "KES",
		Override: domain.FundingPlan{
			{SourceType: domain.FundingSourceWallet, Amount: 400},
			{SourceType: domain.FundingSourceRailA, Amount: 550},
		},
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "FUNDING_PLAN_SUM_MISMATCH", appErr.Code)
	assert.Contains(t, appErr.Message, "950")
	assert.Contains(t, appErr.Message, "1000")
}

func TestFundingPlanner_Override_UnknownSource(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	_, err := d.svc.BuildPlan(context.Background(), ports.FundingPlanRequest{
		PayerID:   uuid.New(),
		AmountDue: 1000,
		Currency:  "KES",
		Override: domain.FundingPlan{
			{SourceType: "CARRIER_PIGEON", Amount: 1000},
		},
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_FUNDING_SOURCE", appErr.Code)
}

func TestFundingPlanner_Override_NonPositiveAllocation(t *testing.T) {
	d := setupFundingPlanner(t)
	defer d.ctrl.Finish()

	_, err := d.svc.BuildPlan(context.Background(), ports.FundingPlanRequest{
		PayerID:   uuid.New(),
		AmountDue: 1000,
		Currency:  "KES",
		Override: domain.FundingPlan{
			{SourceType: domain.FundingSourceWallet, Amount: 1100},
			{SourceType: domain.FundingSourceRailA, Amount: -100},
		},
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_AMOUNT", appErr.Code)
}
