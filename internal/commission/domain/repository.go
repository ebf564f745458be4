package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListEventFilter struct {
	AffiliateID snowflake.ID
	PayoutID    snowflake.ID
	Status      Status
	Claimed     *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *CommissionEvent) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*CommissionEvent, error)
	FindBySourceReference(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ref string) (*CommissionEvent, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListEventFilter, page pagination.Pagination) ([]*CommissionEvent, error)
	// UpdateLifecycle persists an approve or reverse transition. It only
	// matches an unclaimed row still in the from status.
	UpdateLifecycle(ctx context.Context, db *gorm.DB, event *CommissionEvent, from Status) (bool, error)
	Balance(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) (Balance, error)

	// Claim marker operations. Only the payout allocator calls these.
	ListClaimable(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, currency string) ([]CommissionEvent, error)
	Claim(ctx context.Context, db *gorm.DB, tenantID, payoutID snowflake.ID, eventIDs []snowflake.ID, now time.Time) (int64, error)
	Unclaim(ctx context.Context, db *gorm.DB, tenantID, payoutID snowflake.ID, now time.Time) (int64, error)
	MarkPaid(ctx context.Context, db *gorm.DB, tenantID, payoutID snowflake.ID, now time.Time) (int64, error)
}
