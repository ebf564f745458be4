package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	AvailableAmount(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, currency string) (int64, error)
	CompletedPayoutsSince(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, since time.Time) (int64, error)
}
