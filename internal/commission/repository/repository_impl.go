package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/pkg/db"
	"github.com/smallbiznis/commissionrail/pkg/db/option"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

const eventColumns = `id, tenant_id, affiliate_id, source_reference, currency, event_amount_cents,
	commission_amount_cents, status, occurred_at, payout_id, approved_at, approved_by, paid_at,
	reversed_at, reversal_reason, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, event *domain.CommissionEvent) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO commission_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.TenantID,
		event.AffiliateID,
		event.SourceReference,
		event.Currency,
		event.EventAmountCents,
		event.CommissionAmountCents,
		event.Status,
		event.OccurredAt,
		event.PayoutID,
		event.ApprovedAt,
		event.ApprovedBy,
		event.PaidAt,
		event.ReversedAt,
		event.ReversalReason,
		event.CreatedAt,
		event.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.CommissionEvent, error) {
	var event domain.CommissionEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM commission_events WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) FindBySourceReference(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, ref string) (*domain.CommissionEvent, error) {
	var event domain.CommissionEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM commission_events WHERE tenant_id = ? AND source_reference = ?`,
		tenantID,
		ref,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, filter domain.ListEventFilter, page pagination.Pagination) ([]*domain.CommissionEvent, error) {
	var events []*domain.CommissionEvent
	stmt := conn.WithContext(ctx).
		Model(&domain.CommissionEvent{}).
		Where("tenant_id = ?", tenantID)
	if filter.AffiliateID != 0 {
		stmt = stmt.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if filter.PayoutID != 0 {
		stmt = stmt.Where("payout_id = ?", filter.PayoutID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Claimed != nil {
		if *filter.Claimed {
			stmt = stmt.Where("payout_id IS NOT NULL")
		} else {
			stmt = stmt.Where("payout_id IS NULL")
		}
	}
	err := option.ApplyPagination(page).Apply(stmt).
		Order("id desc").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, conn *gorm.DB, event *domain.CommissionEvent, from domain.Status) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE commission_events
		 SET status = ?, approved_at = ?, approved_by = ?, reversed_at = ?, reversal_reason = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ? AND payout_id IS NULL`,
		event.Status,
		event.ApprovedAt,
		event.ApprovedBy,
		event.ReversedAt,
		event.ReversalReason,
		event.UpdatedAt,
		event.TenantID,
		event.ID,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Balance(ctx context.Context, conn *gorm.DB, tenantID, affiliateID snowflake.ID) (domain.Balance, error) {
	var row struct {
		PendingCents   int64
		AvailableCents int64
		ClaimedCents   int64
		PaidCents      int64
		ReversedCents  int64
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN status = ? THEN commission_amount_cents ELSE 0 END), 0) AS pending_cents,
			COALESCE(SUM(CASE WHEN status = ? AND payout_id IS NULL THEN commission_amount_cents ELSE 0 END), 0) AS available_cents,
			COALESCE(SUM(CASE WHEN status = ? AND payout_id IS NOT NULL THEN commission_amount_cents ELSE 0 END), 0) AS claimed_cents,
			COALESCE(SUM(CASE WHEN status = ? THEN commission_amount_cents ELSE 0 END), 0) AS paid_cents,
			COALESCE(SUM(CASE WHEN status = ? THEN commission_amount_cents ELSE 0 END), 0) AS reversed_cents
		 FROM commission_events
		 WHERE tenant_id = ? AND affiliate_id = ?`,
		domain.StatusPending,
		domain.StatusApproved,
		domain.StatusApproved,
		domain.StatusPaid,
		domain.StatusReversed,
		tenantID,
		affiliateID,
	).Scan(&row).Error
	if err != nil {
		return domain.Balance{}, err
	}
	return domain.Balance{
		AffiliateID:    affiliateID,
		PendingCents:   row.PendingCents,
		AvailableCents: row.AvailableCents,
		ClaimedCents:   row.ClaimedCents,
		PaidCents:      row.PaidCents,
		ReversedCents:  row.ReversedCents,
	}, nil
}

// ListClaimable returns unclaimed approved events in currency, oldest first.
// Rows are locked on dialects that support it; callers must pass a
// transaction.
func (r *repo) ListClaimable(ctx context.Context, conn *gorm.DB, tenantID, affiliateID snowflake.ID, currency string) ([]domain.CommissionEvent, error) {
	var events []domain.CommissionEvent
	err := conn.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM commission_events
		 WHERE tenant_id = ? AND affiliate_id = ? AND status = ? AND payout_id IS NULL AND currency = ?
		 ORDER BY occurred_at ASC, id ASC`+db.LockingClause(conn),
		tenantID,
		affiliateID,
		domain.StatusApproved,
		currency,
	).Scan(&events).Error
	return events, err
}

// Claim stamps payoutID on the given events. The guard makes a lost race
// visible as a short row count.
func (r *repo) Claim(ctx context.Context, conn *gorm.DB, tenantID, payoutID snowflake.ID, eventIDs []snowflake.ID, now time.Time) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	result := conn.WithContext(ctx).Exec(
		`UPDATE commission_events SET payout_id = ?, updated_at = ?
		 WHERE tenant_id = ? AND id IN ? AND status = ? AND payout_id IS NULL`,
		payoutID,
		now,
		tenantID,
		eventIDs,
		domain.StatusApproved,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Unclaim(ctx context.Context, conn *gorm.DB, tenantID, payoutID snowflake.ID, now time.Time) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE commission_events SET payout_id = NULL, updated_at = ?
		 WHERE tenant_id = ? AND payout_id = ? AND status = ?`,
		now,
		tenantID,
		payoutID,
		domain.StatusApproved,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkPaid(ctx context.Context, conn *gorm.DB, tenantID, payoutID snowflake.ID, now time.Time) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE commission_events SET status = ?, paid_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND payout_id = ? AND status = ?`,
		domain.StatusPaid,
		now,
		now,
		tenantID,
		payoutID,
		domain.StatusApproved,
	)
	return result.RowsAffected, result.Error
}
