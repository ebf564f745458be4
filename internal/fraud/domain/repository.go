package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListAlertFilter struct {
	AffiliateID snowflake.ID
	Status      Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, alert *FraudAlert) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*FraudAlert, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListAlertFilter, page pagination.Pagination) ([]*FraudAlert, error)
	// UpdateResolution persists a review step, guarded on the from status.
	UpdateResolution(ctx context.Context, db *gorm.DB, alert *FraudAlert, from Status) (bool, error)
}
