package service

import (
	"context"
	"fmt"
	"strconv"

	"bridge-orchestrator/internal/core/domain"
	"bridge-orchestrator/internal/core/ports"
	"bridge-orchestrator/pkg/apperror"

	"github.com/rs/zerolog"
)

// FundingPlannerImpl implements ports.FundingPlanner. Balance reads here are
// advisory; the authoritative sufficiency check happens at the wallet debit or
// the provider call.
type FundingPlannerImpl struct {
	walletRepo  ports.WalletRepository
	encSvc      ports.EncryptionService
	railOrder   []domain.FundingSource
	defaultRail domain.FundingSource
	log         zerolog.Logger
}

// NewFundingPlanner creates a new FundingPlannerImpl. railOrder is the fixed
// consumption order for external rails; defaultRail absorbs any remainder when
// every source is exhausted.
func NewFundingPlanner(
	walletRepo ports.WalletRepository,
	encSvc ports.EncryptionService,
	railOrder []domain.FundingSource,
	defaultRail domain.FundingSource,
	log zerolog.Logger,
) *FundingPlannerImpl {
	return &FundingPlannerImpl{
		walletRepo:  walletRepo,
		encSvc:      encSvc,
		railOrder:   railOrder,
		defaultRail: defaultRail,
		log:         log,
	}
}

// BuildPlan builds an autopilot plan, or validates the caller's override.
func (s *FundingPlannerImpl) BuildPlan(ctx context.Context, req ports.FundingPlanRequest) (domain.FundingPlan, error) {
	if req.AmountDue <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	if len(req.Override) > 0 {
		return s.validateOverride(req.AmountDue, req.Override)
	}

	return s.autopilot(ctx, req)
}

// validateOverride checks source types, amounts, and the plan-sum invariant at
// minor-unit precision. The validated plan is re-sorted by the caller's
// priorities.
func (s *FundingPlannerImpl) validateOverride(amountDue int64, override domain.FundingPlan) (domain.FundingPlan, error) {
	plan := make(domain.FundingPlan, 0, len(override))
	var total int64
	for _, alloc := range override {
		if !domain.KnownFundingSource(alloc.SourceType) {
			return nil, apperror.ErrInvalidFundingSource(string(alloc.SourceType))
		}
		if alloc.Amount <= 0 {
			return nil, apperror.ErrInvalidAmount()
		}
		total += alloc.Amount
		plan = append(plan, domain.FundingAllocation{
			SourceType: alloc.SourceType,
			SourceID:   alloc.SourceID,
			Amount:     alloc.Amount,
			Priority:   alloc.Priority,
		})
	}
	if total != amountDue {
		return nil, apperror.ErrFundingPlanSumMismatch(amountDue, total)
	}
	plan.SortByPriority()
	return plan, nil
}

// autopilot consumes the internal wallet first, then external rails in the
// configured priority order, and assigns any remainder to the default rail.
func (s *FundingPlannerImpl) autopilot(ctx context.Context, req ports.FundingPlanRequest) (domain.FundingPlan, error) {
	var plan domain.FundingPlan
	remaining := req.AmountDue
	priority := 0

	wallet, err := s.walletRepo.GetByOwner(ctx, req.PayerID, req.Currency)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet != nil {
		available, err := s.walletAvailable(wallet)
		if err != nil {
			return nil, err
		}
		if available > 0 {
			take := min(available, remaining)
			plan = append(plan, domain.FundingAllocation{
				SourceType: domain.FundingSourceWallet,
				SourceID:   wallet.ID.String(),
				Amount:     take,
				Priority:   priority,
			})
			priority++
			remaining -= take
		}
	}

	if remaining > 0 {
		sources, err := s.walletRepo.ListSources(ctx, req.PayerID, req.Currency)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("list rail sources: %w", err))
		}
		byRail := make(map[domain.FundingSource]*domain.WalletSource, len(sources))
		for i := range sources {
			if sources[i].Active {
				byRail[sources[i].Rail] = &sources[i]
			}
		}

		for _, rail := range s.railOrder {
			if remaining == 0 {
				break
			}
			source, ok := byRail[rail]
			if !ok || source.Available() == 0 {
				continue
			}
			take := min(source.Available(), remaining)
			plan = append(plan, domain.FundingAllocation{
				SourceType: rail,
				SourceID:   source.ID.String(),
				Amount:     take,
				Priority:   priority,
			})
			priority++
			remaining -= take
		}
	}

	// Every source exhausted: the default rail absorbs the remainder, and the
	// provider call decides whether it can actually cover it.
	if remaining > 0 {
		plan = append(plan, domain.FundingAllocation{
			SourceType: s.defaultRail,
			Amount:     remaining,
			Priority:   priority,
		})
		remaining = 0
	}

	if total := plan.Total(); total != req.AmountDue {
		return nil, apperror.ErrFundingPlanSumMismatch(req.AmountDue, total)
	}

	s.log.Debug().
		Str("payer_id", req.PayerID.String()).
		Int64("amount_due", req.AmountDue).
		Int("legs", len(plan)).
		Msg("Funding plan built")
	return plan, nil
}

func (s *FundingPlannerImpl) walletAvailable(wallet *domain.Wallet) (int64, error) {
	balanceStr, err := s.encSvc.Decrypt(wallet.EncryptedBalance)
	if err != nil {
		return 0, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt balance: %w", err))
	}
	balance, err := strconv.ParseInt(balanceStr, 10, 64)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("parse balance: %w", err))
	}
	if available := balance - wallet.Hold; available > 0 {
		return available, nil
	}
	return 0, nil
}
