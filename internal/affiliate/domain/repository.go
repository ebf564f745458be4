package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Affiliate, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status Status, page pagination.Pagination) ([]*Affiliate, error)
	// UpdateStatus moves the affiliate from one status to another and reports
	// whether the row still had the expected status.
	UpdateStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, from, to Status, now time.Time) (bool, error)

	InsertReferralCode(ctx context.Context, db *gorm.DB, code *ReferralCode) error
	CountActiveReferralCodes(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) (int64, error)
	FindReferralCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*ReferralCode, error)
	ListReferralCodes(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) ([]ReferralCode, error)
	DeactivateReferralCode(ctx context.Context, db *gorm.DB, tenantID, affiliateID, id snowflake.ID) (bool, error)

	InsertPayoutMethod(ctx context.Context, db *gorm.DB, method *PayoutMethod) error
	FindPayoutMethod(ctx context.Context, db *gorm.DB, tenantID, affiliateID, id snowflake.ID) (*PayoutMethod, error)
	FindVerifiedPayoutMethod(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, methodType MethodType) (*PayoutMethod, error)
	HasVerifiedPayoutMethod(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) (bool, error)
	ListPayoutMethods(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) ([]PayoutMethod, error)
	MarkPayoutMethodVerified(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, now time.Time) error

	InsertTaxDocument(ctx context.Context, db *gorm.DB, doc *TaxDocument) error
	FindTaxDocument(ctx context.Context, db *gorm.DB, tenantID, affiliateID, id snowflake.ID) (*TaxDocument, error)
	HasVerifiedTaxDocument(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, taxYear int) (bool, error)
	MarkTaxDocumentVerified(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, now time.Time) error

	FindProgram(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Program, error)
	UpsertProgram(ctx context.Context, db *gorm.DB, program *Program) error
}
