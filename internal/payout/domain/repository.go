package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListPayoutFilter struct {
	AffiliateID snowflake.ID
	Status      Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Payout, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListPayoutFilter, page pagination.Pagination) ([]*Payout, error)
	// RecordDispatch stores the rail outcome while the payout is still processing.
	RecordDispatch(ctx context.Context, db *gorm.DB, payout *Payout) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, reason string, from []Status, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, reference, approvedBy string, from []Status, now time.Time) (bool, error)
}
