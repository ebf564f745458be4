package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/option"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO affiliates (id, tenant_id, name, email, external_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		affiliate.ID,
		affiliate.TenantID,
		affiliate.Name,
		affiliate.Email,
		affiliate.ExternalID,
		affiliate.Status,
		affiliate.CreatedAt,
		affiliate.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, email, external_id, status, created_at, updated_at
		 FROM affiliates WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&affiliate).Error
	if err != nil {
		return nil, err
	}
	if affiliate.ID == 0 {
		return nil, nil
	}
	return &affiliate, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status domain.Status, page pagination.Pagination) ([]*domain.Affiliate, error) {
	var affiliates []*domain.Affiliate
	stmt := db.WithContext(ctx).
		Model(&domain.Affiliate{}).
		Where("tenant_id = ?", tenantID)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	err := option.ApplyPagination(page).Apply(stmt).
		Order("id desc").
		Find(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE affiliates SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND status = ?`,
		to,
		now,
		tenantID,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertReferralCode(ctx context.Context, db *gorm.DB, code *domain.ReferralCode) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO referral_codes (id, tenant_id, affiliate_id, code, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.TenantID,
		code.AffiliateID,
		code.Code,
		code.IsActive,
		code.CreatedAt,
	).Error
}

func (r *repo) CountActiveReferralCodes(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM referral_codes
		 WHERE tenant_id = ? AND affiliate_id = ? AND is_active = ?`,
		tenantID,
		affiliateID,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) FindReferralCode(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, code string) (*domain.ReferralCode, error) {
	var item domain.ReferralCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, affiliate_id, code, is_active, created_at
		 FROM referral_codes WHERE tenant_id = ? AND code = ?`,
		tenantID,
		code,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListReferralCodes(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) ([]domain.ReferralCode, error) {
	var codes []domain.ReferralCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, affiliate_id, code, is_active, created_at
		 FROM referral_codes WHERE tenant_id = ? AND affiliate_id = ?
		 ORDER BY id`,
		tenantID,
		affiliateID,
	).Scan(&codes).Error
	return codes, err
}

func (r *repo) DeactivateReferralCode(ctx context.Context, db *gorm.DB, tenantID, affiliateID, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referral_codes SET is_active = ?
		 WHERE tenant_id = ? AND affiliate_id = ? AND id = ?`,
		false,
		tenantID,
		affiliateID,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertPayoutMethod(ctx context.Context, db *gorm.DB, method *domain.PayoutMethod) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payout_methods (id, tenant_id, affiliate_id, method_type, destination, is_verified, verified_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		method.ID,
		method.TenantID,
		method.AffiliateID,
		method.MethodType,
		method.Destination,
		method.IsVerified,
		method.VerifiedAt,
		method.CreatedAt,
		method.UpdatedAt,
	).Error
}

const payoutMethodColumns = `id, tenant_id, affiliate_id, method_type, destination, is_verified, verified_at, created_at, updated_at`

func (r *repo) FindPayoutMethod(ctx context.Context, db *gorm.DB, tenantID, affiliateID, id snowflake.ID) (*domain.PayoutMethod, error) {
	var method domain.PayoutMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutMethodColumns+` FROM payout_methods
		 WHERE tenant_id = ? AND affiliate_id = ? AND id = ?`,
		tenantID,
		affiliateID,
		id,
	).Scan(&method).Error
	if err != nil {
		return nil, err
	}
	if method.ID == 0 {
		return nil, nil
	}
	return &method, nil
}

func (r *repo) FindVerifiedPayoutMethod(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, methodType domain.MethodType) (*domain.PayoutMethod, error) {
	var method domain.PayoutMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutMethodColumns+` FROM payout_methods
		 WHERE tenant_id = ? AND affiliate_id = ? AND method_type = ? AND is_verified = ?`,
		tenantID,
		affiliateID,
		methodType,
		true,
	).Scan(&method).Error
	if err != nil {
		return nil, err
	}
	if method.ID == 0 {
		return nil, nil
	}
	return &method, nil
}

func (r *repo) HasVerifiedPayoutMethod(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payout_methods
		 WHERE tenant_id = ? AND affiliate_id = ? AND is_verified = ?`,
		tenantID,
		affiliateID,
		true,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListPayoutMethods(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID) ([]domain.PayoutMethod, error) {
	var methods []domain.PayoutMethod
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutMethodColumns+` FROM payout_methods
		 WHERE tenant_id = ? AND affiliate_id = ? ORDER BY id`,
		tenantID,
		affiliateID,
	).Scan(&methods).Error
	return methods, err
}

func (r *repo) MarkPayoutMethodVerified(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payout_methods SET is_verified = ?, verified_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		true,
		now,
		now,
		tenantID,
		id,
	).Error
}

func (r *repo) InsertTaxDocument(ctx context.Context, db *gorm.DB, doc *domain.TaxDocument) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tax_documents (id, tenant_id, affiliate_id, tax_year, form_type, is_verified, verified_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.TenantID,
		doc.AffiliateID,
		doc.TaxYear,
		doc.FormType,
		doc.IsVerified,
		doc.VerifiedAt,
		doc.CreatedAt,
	).Error
}

func (r *repo) FindTaxDocument(ctx context.Context, db *gorm.DB, tenantID, affiliateID, id snowflake.ID) (*domain.TaxDocument, error) {
	var doc domain.TaxDocument
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, affiliate_id, tax_year, form_type, is_verified, verified_at, created_at
		 FROM tax_documents WHERE tenant_id = ? AND affiliate_id = ? AND id = ?`,
		tenantID,
		affiliateID,
		id,
	).Scan(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == 0 {
		return nil, nil
	}
	return &doc, nil
}

func (r *repo) HasVerifiedTaxDocument(ctx context.Context, db *gorm.DB, tenantID, affiliateID snowflake.ID, taxYear int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM tax_documents
		 WHERE tenant_id = ? AND affiliate_id = ? AND tax_year = ? AND is_verified = ?`,
		tenantID,
		affiliateID,
		taxYear,
		true,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) MarkTaxDocumentVerified(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tax_documents SET is_verified = ?, verified_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		true,
		now,
		tenantID,
		id,
	).Error
}

func (r *repo) FindProgram(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.Program, error) {
	var program domain.Program
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, min_payout_cents, currency, auto_approve, created_at, updated_at
		 FROM affiliate_programs WHERE tenant_id = ?`,
		tenantID,
	).Scan(&program).Error
	if err != nil {
		return nil, err
	}
	if program.TenantID == 0 {
		return nil, nil
	}
	return &program, nil
}

func (r *repo) UpsertProgram(ctx context.Context, db *gorm.DB, program *domain.Program) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"min_payout_cents", "currency", "auto_approve", "updated_at"}),
		}).
		Create(program).Error
}
