package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertTouch(ctx context.Context, db *gorm.DB, touch *Touch) error
	FindTouchBySourceReference(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, ref string) (*Touch, error)
	TouchStats(ctx context.Context, db *gorm.DB, tenantID, referralCodeID snowflake.ID) (TouchStats, error)

	InsertPlan(ctx context.Context, db *gorm.DB, plan *CommissionPlan) error
	FindPlan(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*CommissionPlan, error)
	ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]CommissionPlan, error)

	InsertAssignment(ctx context.Context, db *gorm.DB, assignment *PlanAssignment) error
	// CountOverlappingAssignments counts assignments of the affiliate whose
	// window intersects [from, to). A nil to is open-ended.
	CountOverlappingAssignments(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, from time.Time, to *time.Time) (int64, error)
	FindActiveAssignment(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, at time.Time) (*PlanAssignment, error)
}
