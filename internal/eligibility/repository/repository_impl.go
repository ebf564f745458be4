package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/eligibility/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) AvailableAmount(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, currency string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(commission_amount_cents), 0) FROM commission_events
		 WHERE tenant_id = ? AND affiliate_id = ? AND status = ? AND payout_id IS NULL AND currency = ?`,
		tenantID,
		affiliateID,
		"approved",
		currency,
	).Scan(&total).Error
	return total, err
}

func (r *repo) CompletedPayoutsSince(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount_cents), 0) FROM payouts
		 WHERE tenant_id = ? AND affiliate_id = ? AND status = ? AND completed_at >= ?`,
		tenantID,
		affiliateID,
		"completed",
		since,
	).Scan(&total).Error
	return total, err
}
