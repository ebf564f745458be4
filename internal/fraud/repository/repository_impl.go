package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/fraud/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/option"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

const alertColumns = `id, tenant_id, affiliate_id, commission_event_id, alert_type, severity, details, status,
	resolution_action, resolution_notes, resolved_by, resolved_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, alert *domain.FraudAlert) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fraud_alerts (`+alertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.TenantID,
		alert.AffiliateID,
		alert.CommissionEventID,
		alert.AlertType,
		alert.Severity,
		alert.Details,
		alert.Status,
		alert.ResolutionAction,
		alert.ResolutionNotes,
		alert.ResolvedBy,
		alert.ResolvedAt,
		alert.CreatedAt,
		alert.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.FraudAlert, error) {
	var alert domain.FraudAlert
	err := db.WithContext(ctx).Raw(
		`SELECT `+alertColumns+` FROM fraud_alerts WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&alert).Error
	if err != nil {
		return nil, err
	}
	if alert.ID == 0 {
		return nil, nil
	}
	return &alert, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListAlertFilter, page pagination.Pagination) ([]*domain.FraudAlert, error) {
	var alerts []*domain.FraudAlert
	stmt := db.WithContext(ctx).
		Model(&domain.FraudAlert{}).
		Where("tenant_id = ?", tenantID)
	if filter.AffiliateID != 0 {
		stmt = stmt.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	err := option.ApplyPagination(page).Apply(stmt).
		Order("id desc").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

func (r *repo) UpdateResolution(ctx context.Context, db *gorm.DB, alert *domain.FraudAlert, from domain.Status) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE fraud_alerts
		 SET status = ?, resolution_action = ?, resolution_notes = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		alert.Status,
		alert.ResolutionAction,
		alert.ResolutionNotes,
		alert.ResolvedBy,
		alert.ResolvedAt,
		alert.UpdatedAt,
		alert.TenantID,
		alert.ID,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
