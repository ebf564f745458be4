package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/eligibility/domain"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	Config        config.Config
	PayoutCfg     *config.PayoutConfigHolder
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	clock         clock.Clock
	cfg           config.Config
	payoutCfg     *config.PayoutConfigHolder
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("eligibility.service"),
		clock:         p.Clock,
		cfg:           p.Config,
		payoutCfg:     p.PayoutCfg,
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
	}
}

// Evaluate reads the affiliate's payout readiness. Every predicate is
// computed so callers can render the full picture, but Reason names only the
// first one that fails.
func (s *Service) Evaluate(ctx context.Context, affiliateID snowflake.ID) (domain.Result, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Result{}, domain.ErrInvalidTenant
	}
	if affiliateID == 0 {
		return domain.Result{}, domain.ErrInvalidAffiliate
	}

	affiliate, err := s.affiliateRepo.FindByID(ctx, s.db, tenantID, affiliateID)
	if err != nil {
		return domain.Result{}, err
	}
	if affiliate == nil {
		return domain.Result{}, domain.ErrNotFound
	}

	cfg := s.payoutCfg.Get()
	now := s.clock.Now()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	result := domain.Result{
		AffiliateID:     affiliate.ID,
		AffiliateStatus: string(affiliate.Status),
		TaxYear:         now.Year(),
	}

	result.MinimumThresholdCents = cfg.DefaultMinPayoutCents
	program, err := s.affiliateRepo.FindProgram(ctx, s.db, tenantID)
	if err != nil {
		return domain.Result{}, err
	}
	if program != nil && program.MinPayoutCents > 0 {
		result.MinimumThresholdCents = program.MinPayoutCents
	}
	result.Currency = affiliatedomain.SettlementCurrency(program, s.cfg.DefaultCurrency)

	result.AvailableAmountCents, err = s.repo.AvailableAmount(ctx, s.db, tenantID, affiliate.ID, result.Currency)
	if err != nil {
		return domain.Result{}, err
	}

	result.HasPayoutMethod, err = s.affiliateRepo.HasVerifiedPayoutMethod(ctx, s.db, tenantID, affiliate.ID)
	if err != nil {
		return domain.Result{}, err
	}

	result.YTDCompletedCents, err = s.repo.CompletedPayoutsSince(ctx, s.db, tenantID, affiliate.ID, yearStart)
	if err != nil {
		return domain.Result{}, err
	}
	result.TaxDocsRequired = result.YTDCompletedCents+result.AvailableAmountCents >= cfg.TaxReportingThresholdCents
	result.HasTaxDocs, err = s.affiliateRepo.HasVerifiedTaxDocument(ctx, s.db, tenantID, affiliate.ID, result.TaxYear)
	if err != nil {
		return domain.Result{}, err
	}

	switch {
	case !affiliate.IsActive():
		result.Reason = domain.ReasonAffiliateNotActive
	case result.AvailableAmountCents < result.MinimumThresholdCents:
		result.Reason = domain.ReasonBelowThreshold
	case !result.HasPayoutMethod:
		result.Reason = domain.ReasonNoPayoutMethod
	case result.TaxDocsRequired && !result.HasTaxDocs:
		result.Reason = domain.ReasonMissingTaxDocs
	default:
		result.Eligible = true
	}
	return result, nil
}
