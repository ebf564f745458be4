package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/option"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

const payoutColumns = `id, tenant_id, affiliate_id, payout_method_id, method_type, currency,
	requested_amount_cents, amount_cents, fee_cents, net_amount_cents, status, external_reference,
	failure_reason, period_start, period_end, rail_response, approved_by, completed_at, failed_at,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (`+payoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.TenantID,
		payout.AffiliateID,
		payout.PayoutMethodID,
		payout.MethodType,
		payout.Currency,
		payout.RequestedAmountCents,
		payout.AmountCents,
		payout.FeeCents,
		payout.NetAmountCents,
		payout.Status,
		payout.ExternalReference,
		payout.FailureReason,
		payout.PeriodStart,
		payout.PeriodEnd,
		payout.RailResponse,
		payout.ApprovedBy,
		payout.CompletedAt,
		payout.FailedAt,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payouts WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListPayoutFilter, page pagination.Pagination) ([]*domain.Payout, error) {
	var payouts []*domain.Payout
	stmt := db.WithContext(ctx).
		Model(&domain.Payout{}).
		Where("tenant_id = ?", tenantID)
	if filter.AffiliateID != 0 {
		stmt = stmt.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	err := option.ApplyPagination(page).Apply(stmt).
		Order("id desc").
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) RecordDispatch(ctx context.Context, db *gorm.DB, payout *domain.Payout) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, external_reference = ?, rail_response = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		payout.Status,
		payout.ExternalReference,
		payout.RailResponse,
		payout.UpdatedAt,
		payout.TenantID,
		payout.ID,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, reason string, from []domain.Status, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, failure_reason = ?, failed_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status IN ?`,
		domain.StatusFailed,
		reason,
		now,
		now,
		tenantID,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, reference, approvedBy string, from []domain.Status, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, external_reference = ?, approved_by = ?, completed_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status IN ?`,
		domain.StatusCompleted,
		reference,
		approvedBy,
		now,
		now,
		tenantID,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
