package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/attribution/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTouch(ctx context.Context, db *gorm.DB, touch *domain.Touch) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO touches (id, tenant_id, referral_code_id, affiliate_id, touch_type, visitor_fingerprint,
		 source_reference, converted_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		touch.ID,
		touch.TenantID,
		touch.ReferralCodeID,
		touch.AffiliateID,
		touch.TouchType,
		touch.VisitorFingerprint,
		touch.SourceReference,
		touch.ConvertedAt,
		touch.CreatedAt,
	).Error
}

func (r *repo) FindTouchBySourceReference(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ref string) (*domain.Touch, error) {
	var touch domain.Touch
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, referral_code_id, affiliate_id, touch_type, visitor_fingerprint,
		 source_reference, converted_at, created_at
		 FROM touches WHERE tenant_id = ? AND source_reference = ?`,
		tenantID,
		ref,
	).Scan(&touch).Error
	if err != nil {
		return nil, err
	}
	if touch.ID == 0 {
		return nil, nil
	}
	return &touch, nil
}

func (r *repo) TouchStats(ctx context.Context, db *gorm.DB, tenantID, referralCodeID snowflake.ID) (domain.TouchStats, error) {
	var rows []struct {
		TouchType domain.TouchType
		Total     int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT touch_type, COUNT(1) AS total FROM touches
		 WHERE tenant_id = ? AND referral_code_id = ?
		 GROUP BY touch_type`,
		tenantID,
		referralCodeID,
	).Scan(&rows).Error
	if err != nil {
		return domain.TouchStats{}, err
	}

	stats := domain.TouchStats{ReferralCodeID: referralCodeID}
	for _, row := range rows {
		switch row.TouchType {
		case domain.TouchClick:
			stats.Clicks = row.Total
		case domain.TouchImpression:
			stats.Impressions = row.Total
		case domain.TouchConversion:
			stats.Conversions = row.Total
		}
	}
	return stats, nil
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.CommissionPlan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO commission_plans (id, tenant_id, name, plan_type, flat_cents, rate_bps, applies_to, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.TenantID,
		plan.Name,
		plan.PlanType,
		plan.FlatCents,
		plan.RateBps,
		plan.AppliesTo,
		plan.IsActive,
		plan.CreatedAt,
	).Error
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.CommissionPlan, error) {
	var plan domain.CommissionPlan
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, plan_type, flat_cents, rate_bps, applies_to, is_active, created_at
		 FROM commission_plans WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.CommissionPlan, error) {
	var plans []domain.CommissionPlan
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, plan_type, flat_cents, rate_bps, applies_to, is_active, created_at
		 FROM commission_plans WHERE tenant_id = ? ORDER BY id`,
		tenantID,
	).Scan(&plans).Error
	return plans, err
}

func (r *repo) InsertAssignment(ctx context.Context, db *gorm.DB, assignment *domain.PlanAssignment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_assignments (id, tenant_id, affiliate_id, plan_id, effective_from, effective_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		assignment.ID,
		assignment.TenantID,
		assignment.AffiliateID,
		assignment.PlanID,
		assignment.EffectiveFrom,
		assignment.EffectiveTo,
		assignment.CreatedAt,
	).Error
}

func (r *repo) CountOverlappingAssignments(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, from time.Time, to *time.Time) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.PlanAssignment{}).
		Where("tenant_id = ? AND affiliate_id = ?", tenantID, affiliateID).
		Where("(effective_to IS NULL OR effective_to > ?)", from)
	if to != nil {
		stmt = stmt.Where("effective_from < ?", *to)
	}

	var count int64
	err := stmt.Count(&count).Error
	return count, err
}

func (r *repo) FindActiveAssignment(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, at time.Time) (*domain.PlanAssignment, error) {
	var assignment domain.PlanAssignment
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, affiliate_id, plan_id, effective_from, effective_to, created_at
		 FROM plan_assignments
		 WHERE tenant_id = ? AND affiliate_id = ? AND effective_from <= ?
		 AND (effective_to IS NULL OR effective_to > ?)
		 ORDER BY effective_from DESC LIMIT 1`,
		tenantID,
		affiliateID,
		at,
		at,
	).Scan(&assignment).Error
	if err != nil {
		return nil, err
	}
	if assignment.ID == 0 {
		return nil, nil
	}
	return &assignment, nil
}
