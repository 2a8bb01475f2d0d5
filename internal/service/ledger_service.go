package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerPosterImpl implements ports.LedgerPoster. Entries are append-only;
// the unique reference constraint is the last line of defense against
// double-posting, and violating it is a loud error.
type LedgerPosterImpl struct {
	ledgerRepo ports.LedgerRepository
	walletRepo ports.WalletRepository
	encSvc     ports.EncryptionService
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerPoster creates a new LedgerPosterImpl.
func NewLedgerPoster(
	ledgerRepo ports.LedgerRepository,
	walletRepo ports.WalletRepository,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerPosterImpl {
	return &LedgerPosterImpl{
		ledgerRepo: ledgerRepo,
		walletRepo: walletRepo,
		encSvc:     encSvc,
		transactor: transactor,
		log:        log,
	}
}

// PostLegSettlement records the settlement of a completed external leg. A
// pending entry written at dispatch time is marked posted; with no pending
// entry a posted credit is appended. An already-posted reference means the
// caller's first-transition guard failed, which is a correctness bug.
func (s *LedgerPosterImpl) PostLegSettlement(ctx context.Context, payment *domain.ExternalPayment) error {
	existing, err := s.ledgerRepo.GetByRef(ctx, payment.OrderRef)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lookup ledger ref: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if existing != nil {
		if existing.Status != domain.EntryStatusPending {
			return apperror.ErrLedgerDoublePost(payment.OrderRef)
		}
		if err := s.ledgerRepo.MarkPosted(ctx, dbTx, existing.ID); err != nil {
			return apperror.InternalError(fmt.Errorf("mark posted: %w", err))
		}
	} else {
		entry := &domain.LedgerEntry{
			ID:        uuid.New(),
			Currency:  payment.Currency,
			Amount:    payment.Amount,
			Type:      domain.EntryTypeCredit,
			Status:    domain.EntryStatusPosted,
			Ref:       payment.OrderRef,
			IntentID:  &payment.IntentID,
			PaymentID: &payment.ID,
			Narration: fmt.Sprintf("Settlement of %s leg", payment.Rail),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.ledgerRepo.Append(ctx, dbTx, entry); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("ref", payment.OrderRef).
		Int64("amount", payment.Amount).
		Msg("Leg settlement posted")
	return nil
}

// DebitWallet atomically checks and debits an internal wallet. The wallet row
// is locked for the duration of the transaction, so a balance that moved since
// the advisory planning read is caught here.
func (s *LedgerPosterImpl) DebitWallet(ctx context.Context, walletID uuid.UUID, amount int64, currency, ref, narration string, intentID uuid.UUID) error {
	if amount <= 0 {
		return apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, walletID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}

	balance, err := s.decryptBalance(wallet.EncryptedBalance)
	if err != nil {
		return err
	}

	if balance-wallet.Hold < amount {
		return apperror.ErrInsufficientFunds()
	}

	newBalanceEnc, err := s.encSvc.Encrypt(strconv.FormatInt(balance-amount, 10))
	if err != nil {
		return apperror.ErrEncryptionFailure(fmt.Errorf("encrypt new balance: %w", err))
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalanceEnc); err != nil {
		return apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Currency:  currency,
		Amount:    amount,
		Type:      domain.EntryTypeDebit,
		Status:    domain.EntryStatusPosted,
		Ref:       ref,
		IntentID:  &intentID,
		Narration: narration,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.ledgerRepo.Append(ctx, dbTx, entry); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("wallet_id", wallet.ID.String()).
		Str("ref", ref).
		Int64("amount", amount).
		Msg("Wallet debited")
	return nil
}

// ReverseIntentDebits posts compensating credits for every posted wallet
// debit of a failed intent. Safe to call more than once: already-reversed
// entries are skipped, and the reversal reference is unique.
func (s *LedgerPosterImpl) ReverseIntentDebits(ctx context.Context, intentID uuid.UUID) error {
	entries, err := s.ledgerRepo.ListByIntentID(ctx, intentID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("list intent entries: %w", err))
	}

	for _, entry := range entries {
		if entry.Type != domain.EntryTypeDebit || entry.Status != domain.EntryStatusPosted {
			continue
		}
		existing, err := s.ledgerRepo.GetByRef(ctx, entry.Ref+"-rev")
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lookup reversal ref: %w", err))
		}
		if existing != nil {
			continue
		}
		if err := s.reverseEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerPosterImpl) reverseEntry(ctx context.Context, entry domain.LedgerEntry) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, entry.WalletID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return apperror.ErrNotFound("wallet")
	}

	balance, err := s.decryptBalance(wallet.EncryptedBalance)
	if err != nil {
		return err
	}

	newBalanceEnc, err := s.encSvc.Encrypt(strconv.FormatInt(balance+entry.Amount, 10))
	if err != nil {
		return apperror.ErrEncryptionFailure(fmt.Errorf("encrypt new balance: %w", err))
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, newBalanceEnc); err != nil {
		return apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	reversal := &domain.LedgerEntry{
		ID:         uuid.New(),
		WalletID:   entry.WalletID,
		Currency:   entry.Currency,
		Amount:     entry.Amount,
		Type:       domain.EntryTypeCredit,
		Status:     domain.EntryStatusPosted,
		Ref:        entry.Ref + "-rev",
		IntentID:   entry.IntentID,
		ReversesID: &entry.ID,
		Narration:  "Reversal of " + entry.Ref,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.ledgerRepo.Append(ctx, dbTx, reversal); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("wallet_id", entry.WalletID.String()).
		Str("ref", reversal.Ref).
		Int64("amount", entry.Amount).
		Msg("Wallet debit reversed")
	return nil
}

func (s *LedgerPosterImpl) decryptBalance(encrypted string) (int64, error) {
	balanceStr, err := s.encSvc.Decrypt(encrypted)
	if err != nil {
		return 0, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt balance: %w", err))
	}
	balance, err := strconv.ParseInt(balanceStr, 10, 64)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("parse balance: %w", err))
	}
	return balance, nil
}
