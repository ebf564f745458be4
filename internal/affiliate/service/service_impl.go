package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/events"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"github.com/smallbiznis/commissionrail/pkg/db"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minReferralCodeLength = 3
	maxReferralCodeLength = 32
)

var taxFormTypes = map[string]struct{}{
	"W9":     {},
	"W8BEN":  {},
	"W8BENE": {},
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	PayoutCfg *config.PayoutConfigHolder
	Repo      domain.Repository
	Audit     auditdomain.Service
	Publisher events.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	payoutCfg *config.PayoutConfigHolder
	repo      domain.Repository
	audit     auditdomain.Service
	publisher events.Publisher
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("affiliate.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		payoutCfg: p.PayoutCfg,
		repo:      p.Repo,
		audit:     p.Audit,
		publisher: p.Publisher,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAffiliateRequest) (domain.Affiliate, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Affiliate{}, domain.ErrInvalidTenant
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Affiliate{}, domain.ErrInvalidName
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Affiliate{}, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	affiliate := domain.Affiliate{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		Name:       name,
		Email:      email,
		ExternalID: strings.TrimSpace(req.ExternalID),
		Status:     domain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &affiliate); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionAffiliateCreated,
			TargetType: "affiliate",
			TargetID:   affiliate.ID.String(),
		})
	})
	if err != nil {
		return domain.Affiliate{}, err
	}
	return affiliate, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Affiliate, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Affiliate{}, domain.ErrInvalidTenant
	}

	affiliate, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Affiliate{}, err
	}
	if affiliate == nil {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return *affiliate, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAffiliateRequest) (domain.ListAffiliateResponse, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListAffiliateResponse{}, domain.ErrInvalidTenant
	}

	var status domain.Status
	if strings.TrimSpace(req.Status) != "" {
		parsed, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.ListAffiliateResponse{}, domain.ErrInvalidStatus
		}
		status = parsed
	}

	items, err := s.repo.List(ctx, s.db, tenantID, status, req.Pagination)
	if err != nil {
		return domain.ListAffiliateResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pagination.Size(req.PageSize), func(a *domain.Affiliate) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: a.ID.String()})
		return token
	})

	affiliates := make([]domain.Affiliate, 0, len(items))
	for _, item := range items {
		affiliates = append(affiliates, *item)
	}
	return domain.ListAffiliateResponse{PageInfo: pageInfo, Affiliates: affiliates}, nil
}

func (s *Service) ChangeStatus(ctx context.Context, req domain.ChangeStatusRequest) (domain.Affiliate, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Affiliate{}, domain.ErrInvalidTenant
	}
	next, ok := domain.ParseStatus(req.Status)
	if !ok {
		return domain.Affiliate{}, domain.ErrInvalidStatus
	}

	var (
		updated  domain.Affiliate
		previous domain.Status
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affiliate, err := s.repo.FindByID(ctx, tx, tenantID, req.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return domain.ErrNotFound
		}
		if !affiliate.Status.CanTransitionTo(next) {
			return domain.ErrInvalidStatusTransition
		}

		now := s.clock.Now()
		changed, err := s.repo.UpdateStatus(ctx, tx, tenantID, affiliate.ID, affiliate.Status, next, now)
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrInvalidStatusTransition
		}

		previous = affiliate.Status
		updated = *affiliate
		updated.Status = next
		updated.UpdatedAt = now

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionAffiliateStatusChanged,
			TargetType: "affiliate",
			TargetID:   affiliate.ID.String(),
			Metadata: map[string]any{
				"from":   string(previous),
				"to":     string(next),
				"reason": strings.TrimSpace(req.Reason),
			},
		})
	})
	if err != nil {
		return domain.Affiliate{}, err
	}

	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypeAffiliateStatusChange,
		TenantID:   tenantID,
		SubjectID:  updated.ID,
		OccurredAt: updated.UpdatedAt,
		Data:       map[string]any{"from": previous, "to": next},
	})
	return updated, nil
}

func (s *Service) CreateReferralCode(ctx context.Context, req domain.CreateReferralCodeRequest) (domain.ReferralCode, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.ReferralCode{}, domain.ErrInvalidTenant
	}

	affiliate, err := s.repo.FindByID(ctx, s.db, tenantID, req.AffiliateID)
	if err != nil {
		return domain.ReferralCode{}, err
	}
	if affiliate == nil {
		return domain.ReferralCode{}, domain.ErrNotFound
	}
	if !affiliate.IsActive() {
		return domain.ReferralCode{}, domain.ErrAffiliateNotActive
	}

	id := s.genID.Generate()
	code := normalizeReferralCode(req.Code)
	if code == "" && strings.TrimSpace(req.Code) == "" {
		code = generatedReferralCode(affiliate.Name, id)
	}
	if len(code) < minReferralCodeLength || len(code) > maxReferralCodeLength {
		return domain.ReferralCode{}, domain.ErrInvalidReferralCode
	}

	limit := int64(s.cfg.MaxReferralCodes)
	if limit <= 0 {
		limit = 10
	}

	item := domain.ReferralCode{
		ID:          id,
		TenantID:    tenantID,
		AffiliateID: affiliate.ID,
		Code:        code,
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.CountActiveReferralCodes(ctx, tx, tenantID, affiliate.ID)
		if err != nil {
			return err
		}
		if count >= limit {
			return domain.ErrReferralCodeLimit
		}
		if err := s.repo.InsertReferralCode(ctx, tx, &item); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrReferralCodeTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.ReferralCode{}, err
	}
	return item, nil
}

func (s *Service) ListReferralCodes(ctx context.Context, affiliateID snowflake.ID) ([]domain.ReferralCode, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListReferralCodes(ctx, s.db, tenantID, affiliateID)
}

func (s *Service) DeactivateReferralCode(ctx context.Context, affiliateID, codeID snowflake.ID) error {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidTenant
	}
	found, err := s.repo.DeactivateReferralCode(ctx, s.db, tenantID, affiliateID, codeID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) AddPayoutMethod(ctx context.Context, req domain.AddPayoutMethodRequest) (domain.PayoutMethod, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.PayoutMethod{}, domain.ErrInvalidTenant
	}
	methodType, ok := domain.ParseMethodType(req.MethodType)
	if !ok {
		return domain.PayoutMethod{}, domain.ErrInvalidMethodType
	}
	destination := strings.TrimSpace(req.Destination)
	if destination == "" {
		return domain.PayoutMethod{}, domain.ErrInvalidDestination
	}
	if methodType == domain.MethodPayPal && !strings.Contains(destination, "@") {
		return domain.PayoutMethod{}, domain.ErrInvalidDestination
	}

	affiliate, err := s.repo.FindByID(ctx, s.db, tenantID, req.AffiliateID)
	if err != nil {
		return domain.PayoutMethod{}, err
	}
	if affiliate == nil {
		return domain.PayoutMethod{}, domain.ErrNotFound
	}

	now := s.clock.Now()
	method := domain.PayoutMethod{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		AffiliateID: affiliate.ID,
		MethodType:  methodType,
		Destination: destination,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertPayoutMethod(ctx, s.db, &method); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.PayoutMethod{}, domain.ErrPayoutMethodExists
		}
		return domain.PayoutMethod{}, err
	}
	return method, nil
}

func (s *Service) VerifyPayoutMethod(ctx context.Context, affiliateID, methodID snowflake.ID) (domain.PayoutMethod, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.PayoutMethod{}, domain.ErrInvalidTenant
	}

	var method *domain.PayoutMethod
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindPayoutMethod(ctx, tx, tenantID, affiliateID, methodID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrNotFound
		}
		method = found
		if method.IsVerified {
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.MarkPayoutMethodVerified(ctx, tx, tenantID, method.ID, now); err != nil {
			return err
		}
		method.IsVerified = true
		method.VerifiedAt = &now
		method.UpdatedAt = now

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionPayoutMethodVerified,
			TargetType: "payout_method",
			TargetID:   method.ID.String(),
			Metadata:   map[string]any{"method_type": string(method.MethodType)},
		})
	})
	if err != nil {
		return domain.PayoutMethod{}, err
	}
	return *method, nil
}

func (s *Service) ListPayoutMethods(ctx context.Context, affiliateID snowflake.ID) ([]domain.PayoutMethod, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListPayoutMethods(ctx, s.db, tenantID, affiliateID)
}

func (s *Service) SubmitTaxDocument(ctx context.Context, req domain.SubmitTaxDocumentRequest) (domain.TaxDocument, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.TaxDocument{}, domain.ErrInvalidTenant
	}

	now := s.clock.Now()
	if req.TaxYear < 2000 || req.TaxYear > now.Year()+1 {
		return domain.TaxDocument{}, domain.ErrInvalidTaxYear
	}
	formType := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(req.FormType), "-", ""))
	if _, ok := taxFormTypes[formType]; !ok {
		return domain.TaxDocument{}, domain.ErrInvalidFormType
	}

	affiliate, err := s.repo.FindByID(ctx, s.db, tenantID, req.AffiliateID)
	if err != nil {
		return domain.TaxDocument{}, err
	}
	if affiliate == nil {
		return domain.TaxDocument{}, domain.ErrNotFound
	}

	doc := domain.TaxDocument{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		AffiliateID: affiliate.ID,
		TaxYear:     req.TaxYear,
		FormType:    formType,
		CreatedAt:   now,
	}
	if err := s.repo.InsertTaxDocument(ctx, s.db, &doc); err != nil {
		return domain.TaxDocument{}, err
	}
	return doc, nil
}

func (s *Service) VerifyTaxDocument(ctx context.Context, affiliateID, docID snowflake.ID) (domain.TaxDocument, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.TaxDocument{}, domain.ErrInvalidTenant
	}

	var doc *domain.TaxDocument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindTaxDocument(ctx, tx, tenantID, affiliateID, docID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrNotFound
		}
		doc = found
		if doc.IsVerified {
			return nil
		}

		now := s.clock.Now()
		if err := s.repo.MarkTaxDocumentVerified(ctx, tx, tenantID, doc.ID, now); err != nil {
			return err
		}
		doc.IsVerified = true
		doc.VerifiedAt = &now

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionTaxDocumentVerified,
			TargetType: "tax_document",
			TargetID:   doc.ID.String(),
			Metadata:   map[string]any{"tax_year": doc.TaxYear},
		})
	})
	if err != nil {
		return domain.TaxDocument{}, err
	}
	return *doc, nil
}

// GetProgram returns the tenant's program, or the configured defaults when none is stored.
func (s *Service) GetProgram(ctx context.Context) (domain.Program, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Program{}, domain.ErrInvalidTenant
	}

	program, err := s.repo.FindProgram(ctx, s.db, tenantID)
	if err != nil {
		return domain.Program{}, err
	}
	if program != nil {
		return *program, nil
	}
	return domain.Program{
		TenantID:       tenantID,
		MinPayoutCents: s.payoutCfg.Get().DefaultMinPayoutCents,
		Currency:       s.defaultCurrency(),
	}, nil
}

func (s *Service) UpsertProgram(ctx context.Context, req domain.UpsertProgramRequest) (domain.Program, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Program{}, domain.ErrInvalidTenant
	}
	if req.MinPayoutCents < 0 {
		return domain.Program{}, domain.ErrInvalidMinPayout
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency()
	}
	if len(currency) != 3 {
		return domain.Program{}, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	program := domain.Program{
		TenantID:       tenantID,
		MinPayoutCents: req.MinPayoutCents,
		Currency:       currency,
		AutoApprove:    req.AutoApprove,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertProgram(ctx, tx, &program); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionProgramUpdated,
			TargetType: "affiliate_program",
			TargetID:   tenantID.String(),
			Metadata: map[string]any{
				"min_payout_cents": program.MinPayoutCents,
				"currency":         program.Currency,
				"auto_approve":     program.AutoApprove,
			},
		})
	})
	if err != nil {
		return domain.Program{}, err
	}
	return program, nil
}

func (s *Service) defaultCurrency() string {
	return domain.SettlementCurrency(nil, s.cfg.DefaultCurrency)
}

func normalizeReferralCode(raw string) string {
	return strings.ToUpper(slug.Make(strings.TrimSpace(raw)))
}

func generatedReferralCode(name string, id snowflake.ID) string {
	base := slug.Make(name)
	if len(base) > 12 {
		base = strings.TrimRight(base[:12], "-")
	}
	suffix := strings.ToUpper(id.Base36())
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	if base == "" {
		return "REF-" + suffix
	}
	return strings.ToUpper(fmt.Sprintf("%s-%s", base, suffix))
}
