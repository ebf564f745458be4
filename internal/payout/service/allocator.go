package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
	"gorm.io/gorm"
)

// selectClaim walks events oldest first and takes whole events until the
// requested amount is covered. The last event may overshoot.
func selectClaim(events []commissiondomain.CommissionEvent, requested int64) ([]commissiondomain.CommissionEvent, int64, error) {
	var available int64
	for _, event := range events {
		available += event.CommissionAmountCents
	}
	if available < requested {
		return nil, 0, domain.NewError(domain.CodeInsufficientBalance, "requested_amount_exceeds_available")
	}

	var (
		claimed []commissiondomain.CommissionEvent
		total   int64
	)
	for _, event := range events {
		if total >= requested {
			break
		}
		claimed = append(claimed, event)
		total += event.CommissionAmountCents
	}
	return claimed, total, nil
}

// allocate creates the payout row and claims its events in one transaction.
// The guarded claim makes a concurrent winner surface as insufficient balance.
func (s *Service) allocate(ctx context.Context, tenantID snowflake.ID, requested int64, method affiliatedomain.PayoutMethod) (domain.Payout, error) {
	fee := s.payoutCfg.Get().FeeFor(string(method.MethodType))

	var payout domain.Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		program, err := s.affiliateRepo.FindProgram(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		currency := affiliatedomain.SettlementCurrency(program, s.cfg.DefaultCurrency)

		events, err := s.commissionRepo.ListClaimable(ctx, tx, tenantID, method.AffiliateID, currency)
		if err != nil {
			return err
		}
		claimed, total, err := selectClaim(events, requested)
		if err != nil {
			return err
		}

		ids := make([]snowflake.ID, 0, len(claimed))
		for _, event := range claimed {
			ids = append(ids, event.ID)
		}

		net := total - fee
		if net <= 0 {
			return domain.NewError(domain.CodeValidation, "net_amount_not_positive")
		}

		now := s.clock.Now()
		payout = domain.Payout{
			ID:                   s.genID.Generate(),
			TenantID:             tenantID,
			AffiliateID:          method.AffiliateID,
			PayoutMethodID:       method.ID,
			MethodType:           method.MethodType,
			Currency:             currency,
			RequestedAmountCents: requested,
			AmountCents:          total,
			FeeCents:             fee,
			NetAmountCents:       net,
			Status:               domain.StatusProcessing,
			PeriodStart:          claimed[0].OccurredAt,
			PeriodEnd:            now,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.repo.Insert(ctx, tx, &payout); err != nil {
			return err
		}

		affected, err := s.commissionRepo.Claim(ctx, tx, tenantID, payout.ID, ids, now)
		if err != nil {
			return err
		}
		if affected != int64(len(ids)) {
			return domain.NewError(domain.CodeInsufficientBalance, "balance_claimed_concurrently")
		}

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionPayoutRequested,
			TargetType: "payout",
			TargetID:   payout.ID.String(),
			Metadata: map[string]any{
				"affiliate_id":           payout.AffiliateID.String(),
				"method_type":            string(payout.MethodType),
				"requested_amount_cents": requested,
				"amount_cents":           total,
				"fee_cents":              fee,
				"event_count":            len(ids),
			},
		})
	})
	if err != nil {
		var coded *domain.Error
		if errors.As(err, &coded) {
			return domain.Payout{}, coded
		}
		return domain.Payout{}, domain.WrapError(domain.CodeInternal, "claim_failed", err)
	}
	return payout, nil
}
