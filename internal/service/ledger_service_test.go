package service

import (
	"context"
	"errors"
	"testing"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports/mocks"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ledgerTestDeps struct {
	svc        *LedgerPosterImpl
	ledgerRepo *mocks.MockLedgerRepository
	walletRepo *mocks.MockWalletRepository
	encSvc     *mocks.MockEncryptionService
	transactor *mocks.MockDBTransactor
	ctrl       *gomock.Controller
}

func setupLedgerPoster(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		ledgerRepo: mocks.NewMockLedgerRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		encSvc:     mocks.NewMockEncryptionService(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewLedgerPoster(d.ledgerRepo, d.walletRepo, d.encSvc, d.transactor, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func externalLeg(intentID uuid.UUID) *domain.ExternalPayment {
	return &domain.ExternalPayment{
		ID:       uuid.New(),
		IntentID: intentID,
		Rail:     domain.FundingSourceRailA,
		Amount:   600,
		Currency: "KES",
		OrderRef: domain.BuildDispatchKey(intentID, 1),
		Status:   domain.PaymentStatusCompleted,
	}
}

// ==================== PostLegSettlement Tests ====================

func TestLedgerPoster_PostLegSettlement_MarksPendingEntryPosted(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := externalLeg(uuid.New())
	pendingID := uuid.New()

	d.ledgerRepo.EXPECT().GetByRef(ctx, payment.OrderRef).Return(&domain.LedgerEntry{
		ID:     pendingID,
		Ref:    payment.OrderRef,
		Type:   domain.EntryTypeCredit,
		Status: domain.EntryStatusPending,
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().MarkPosted(ctx, tx, pendingID).Return(nil)

	err := d.svc.PostLegSettlement(ctx, payment)
	require.NoError(t, err)
}

func TestLedgerPoster_PostLegSettlement_AppendsWhenNoPendingEntry(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	payment := externalLeg(uuid.New())

	d.ledgerRepo.EXPECT().GetByRef(ctx, payment.OrderRef).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entry *domain.LedgerEntry) error {
			assert.Equal(t, payment.OrderRef, entry.Ref)
			assert.Equal(t, domain.EntryTypeCredit, entry.Type)
			assert.Equal(t, domain.EntryStatusPosted, entry.Status)
			assert.Equal(t, payment.Amount, entry.Amount)
			require.NotNil(t, entry.IntentID)
			assert.Equal(t, payment.IntentID, *entry.IntentID)
			require.NotNil(t, entry.PaymentID)
			assert.Equal(t, payment.ID, *entry.PaymentID)
			return nil
		})

	err := d.svc.PostLegSettlement(ctx, payment)
	require.NoError(t, err)
}

func TestLedgerPoster_PostLegSettlement_DoublePostRejected(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	payment := externalLeg(uuid.New())

	d.ledgerRepo.EXPECT().GetByRef(ctx, payment.OrderRef).Return(&domain.LedgerEntry{
		ID:     uuid.New(),
		Ref:    payment.OrderRef,
		Status: domain.EntryStatusPosted,
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)

	err := d.svc.PostLegSettlement(ctx, payment)

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "LEDGER_DOUBLE_POST", appErr.Code)
}

// ==================== DebitWallet Tests ====================

func TestLedgerPoster_DebitWallet_Success(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	walletID := uuid.New()
	intentID := uuid.New()
	ref := domain.BuildDispatchKey(intentID, 0)

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).Return(&domain.Wallet{
		ID:               walletID,
		EncryptedBalance: "enc_1000",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_1000").Return("1000", nil)
	d.encSvc.EXPECT().Encrypt("600").Return("enc_600", nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, "enc_600").Return(nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entry *domain.LedgerEntry) error {
			assert.Equal(t, domain.EntryTypeDebit, entry.Type)
			assert.Equal(t, domain.EntryStatusPosted, entry.Status)
			assert.Equal(t, ref, entry.Ref)
			assert.Equal(t, int64(400), entry.Amount)
			assert.Equal(t, walletID, entry.WalletID)
			return nil
		})

	err := d.svc.DebitWallet(ctx, walletID, 400, "KES", ref, "Wallet funding", intentID)
	require.NoError(t, err)
}

func TestLedgerPoster_DebitWallet_InsufficientFunds(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	walletID := uuid.New()

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).Return(&domain.Wallet{
		ID:               walletID,
		EncryptedBalance: "enc_300",
		Hold:             100,
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_300").Return("300", nil)

	err := d.svc.DebitWallet(ctx, walletID, 250, "KES", "ref-1", "Wallet funding", uuid.New())

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_FUNDS", appErr.Code)
}

func TestLedgerPoster_DebitWallet_InvalidAmount(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	err := d.svc.DebitWallet(context.Background(), uuid.New(), 0, "KES", "ref-1", "n", uuid.New())

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_AMOUNT", appErr.Code)
}

func TestLedgerPoster_DebitWallet_WalletMissing(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	walletID := uuid.New()

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).Return(nil, nil)

	err := d.svc.DebitWallet(ctx, walletID, 100, "KES", "ref-1", "n", uuid.New())

	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

// ==================== ReverseIntentDebits Tests ====================

func TestLedgerPoster_ReverseIntentDebits_CreditsBackDebits(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	intentID := uuid.New()
	walletID := uuid.New()
	debitID := uuid.New()

	entries := []domain.LedgerEntry{
		{ID: debitID, WalletID: walletID, Currency: "KES", Amount: 400,
			Type: domain.EntryTypeDebit, Status: domain.EntryStatusPosted, Ref: "ref-leg-0"},
		// The pending credit for the external leg must not be reversed.
		{ID: uuid.New(), Currency: "KES", Amount: 600,
			Type: domain.EntryTypeCredit, Status: domain.EntryStatusPending, Ref: "ref-leg-1"},
	}

	d.ledgerRepo.EXPECT().ListByIntentID(ctx, intentID).Return(entries, nil)
	d.ledgerRepo.EXPECT().GetByRef(ctx, "ref-leg-0-rev").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).Return(&domain.Wallet{
		ID:               walletID,
		EncryptedBalance: "enc_600",
	}, nil)
	d.encSvc.EXPECT().Decrypt("enc_600").Return("600", nil)
	d.encSvc.EXPECT().Encrypt("1000").Return("enc_1000", nil)
	d.walletRepo.EXPECT().UpdateBalance(ctx, tx, walletID, "enc_1000").Return(nil)
	d.ledgerRepo.EXPECT().Append(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, entry *domain.LedgerEntry) error {
			assert.Equal(t, domain.EntryTypeCredit, entry.Type)
			assert.Equal(t, "ref-leg-0-rev", entry.Ref)
			require.NotNil(t, entry.ReversesID)
			assert.Equal(t, debitID, *entry.ReversesID)
			return nil
		})

	err := d.svc.ReverseIntentDebits(ctx, intentID)
	require.NoError(t, err)
}

func TestLedgerPoster_ReverseIntentDebits_SecondRunIsNoop(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intentID := uuid.New()

	entries := []domain.LedgerEntry{
		{ID: uuid.New(), WalletID: uuid.New(), Amount: 400,
			Type: domain.EntryTypeDebit, Status: domain.EntryStatusPosted, Ref: "ref-leg-0"},
	}

	d.ledgerRepo.EXPECT().ListByIntentID(ctx, intentID).Return(entries, nil)
	d.ledgerRepo.EXPECT().GetByRef(ctx, "ref-leg-0-rev").Return(&domain.LedgerEntry{
		ID:  uuid.New(),
		Ref: "ref-leg-0-rev",
	}, nil)
	// No Begin, no wallet lock, no append.

	err := d.svc.ReverseIntentDebits(ctx, intentID)
	require.NoError(t, err)
}

func TestLedgerPoster_ReverseIntentDebits_NoEntries(t *testing.T) {
	d := setupLedgerPoster(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	intentID := uuid.New()

	d.ledgerRepo.EXPECT().ListByIntentID(ctx, intentID).Return(nil, nil)

	err := d.svc.ReverseIntentDebits(ctx, intentID)
	require.NoError(t, err)
}
