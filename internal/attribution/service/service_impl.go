package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/internal/attribution/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"github.com/smallbiznis/commissionrail/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultAppliesTo = "all"
	maxRateBps       = 10000
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
	Commission    commissiondomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
	commission    commissiondomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("attribution.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
		commission:    p.Commission,
	}
}

func (s *Service) RecordTouch(ctx context.Context, req domain.RecordTouchRequest) (domain.Touch, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Touch{}, domain.ErrInvalidTenant
	}
	touchType, ok := domain.ParseTouchType(req.TouchType)
	if !ok {
		return domain.Touch{}, domain.ErrInvalidTouchType
	}
	code, err := s.resolveReferralCode(ctx, tenantID, req.ReferralCode)
	if err != nil {
		return domain.Touch{}, err
	}

	touch := domain.Touch{
		ID:                 s.genID.Generate(),
		TenantID:           tenantID,
		ReferralCodeID:     code.ID,
		AffiliateID:        code.AffiliateID,
		TouchType:          touchType,
		VisitorFingerprint: strings.TrimSpace(req.VisitorFingerprint),
		CreatedAt:          s.clock.Now(),
	}
	if req.ConvertedAt != nil {
		convertedAt := req.ConvertedAt.UTC()
		touch.ConvertedAt = &convertedAt
	}
	if err := s.repo.InsertTouch(ctx, s.db, &touch); err != nil {
		return domain.Touch{}, err
	}
	return touch, nil
}

func (s *Service) TouchStats(ctx context.Context, referralCodeID snowflake.ID) (domain.TouchStats, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.TouchStats{}, domain.ErrInvalidTenant
	}
	return s.repo.TouchStats(ctx, s.db, tenantID, referralCodeID)
}

func (s *Service) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (domain.CommissionPlan, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.CommissionPlan{}, domain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.CommissionPlan{}, domain.ErrInvalidPlanName
	}
	planType, ok := domain.ParsePlanType(req.PlanType)
	if !ok {
		return domain.CommissionPlan{}, domain.ErrInvalidPlanType
	}

	plan := domain.CommissionPlan{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		PlanType:  planType,
		AppliesTo: strings.ToLower(strings.TrimSpace(req.AppliesTo)),
		IsActive:  true,
		CreatedAt: s.clock.Now(),
	}
	if plan.AppliesTo == "" {
		plan.AppliesTo = defaultAppliesTo
	}
	switch planType {
	case domain.PlanFlat:
		if req.FlatCents <= 0 {
			return domain.CommissionPlan{}, domain.ErrInvalidPlanAmount
		}
		plan.FlatCents = req.FlatCents
	case domain.PlanPercent:
		if req.RateBps <= 0 || req.RateBps > maxRateBps {
			return domain.CommissionPlan{}, domain.ErrInvalidPlanAmount
		}
		plan.RateBps = req.RateBps
	}

	if err := s.repo.InsertPlan(ctx, s.db, &plan); err != nil {
		return domain.CommissionPlan{}, err
	}
	return plan, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]domain.CommissionPlan, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListPlans(ctx, s.db, tenantID)
}

// AssignPlan rejects windows that intersect an existing assignment for the
// same affiliate. The overlap check and insert share one transaction.
func (s *Service) AssignPlan(ctx context.Context, req domain.AssignPlanRequest) (domain.PlanAssignment, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.PlanAssignment{}, domain.ErrInvalidTenant
	}
	if req.EffectiveFrom.IsZero() {
		return domain.PlanAssignment{}, domain.ErrInvalidWindow
	}
	from := req.EffectiveFrom.UTC()
	var to *time.Time
	if req.EffectiveTo != nil {
		end := req.EffectiveTo.UTC()
		if !end.After(from) {
			return domain.PlanAssignment{}, domain.ErrInvalidWindow
		}
		to = &end
	}

	assignment := domain.PlanAssignment{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		AffiliateID:   req.AffiliateID,
		PlanID:        req.PlanID,
		EffectiveFrom: from,
		EffectiveTo:   to,
		CreatedAt:     s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindPlan(ctx, tx, tenantID, req.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrNotFound
		}
		affiliate, err := s.affiliateRepo.FindByID(ctx, tx, tenantID, req.AffiliateID)
		if err != nil {
			return err
		}
		if affiliate == nil {
			return domain.ErrNotFound
		}

		overlapping, err := s.repo.CountOverlappingAssignments(ctx, tx, tenantID, req.AffiliateID, from, to)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return domain.ErrOverlappingAssignment
		}
		return s.repo.InsertAssignment(ctx, tx, &assignment)
	})
	if err != nil {
		return domain.PlanAssignment{}, err
	}
	return assignment, nil
}

// RecordConversion prices a conversion with the plan active at OccurredAt and
// hands it to the ledger. A replayed source reference returns the original
// event and touch.
func (s *Service) RecordConversion(ctx context.Context, req domain.RecordConversionRequest) (domain.RecordConversionResponse, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.RecordConversionResponse{}, domain.ErrInvalidTenant
	}
	if req.AmountCents <= 0 {
		return domain.RecordConversionResponse{}, domain.ErrInvalidAmount
	}
	if req.OccurredAt.IsZero() {
		return domain.RecordConversionResponse{}, domain.ErrInvalidOccurredAt
	}
	occurredAt := req.OccurredAt.UTC()

	code, err := s.resolveReferralCode(ctx, tenantID, req.ReferralCode)
	if err != nil {
		return domain.RecordConversionResponse{}, err
	}
	affiliate, err := s.affiliateRepo.FindByID(ctx, s.db, tenantID, code.AffiliateID)
	if err != nil {
		return domain.RecordConversionResponse{}, err
	}
	if affiliate == nil {
		return domain.RecordConversionResponse{}, domain.ErrNotFound
	}
	if !affiliate.IsActive() {
		return domain.RecordConversionResponse{}, domain.ErrAffiliateNotActive
	}

	assignment, err := s.repo.FindActiveAssignment(ctx, s.db, tenantID, affiliate.ID, occurredAt)
	if err != nil {
		return domain.RecordConversionResponse{}, err
	}
	if assignment == nil {
		return domain.RecordConversionResponse{}, domain.ErrNoActivePlan
	}
	plan, err := s.repo.FindPlan(ctx, s.db, tenantID, assignment.PlanID)
	if err != nil {
		return domain.RecordConversionResponse{}, err
	}
	if plan == nil || !plan.IsActive {
		return domain.RecordConversionResponse{}, domain.ErrNoActivePlan
	}

	commissionCents := plan.CommissionFor(req.AmountCents)
	if commissionCents <= 0 {
		return domain.RecordConversionResponse{}, domain.ErrZeroCommission
	}

	event, err := s.commission.CreateEvent(ctx, commissiondomain.CreateEventRequest{
		AffiliateID:           affiliate.ID,
		EventAmountCents:      req.AmountCents,
		CommissionAmountCents: commissionCents,
		Currency:              req.Currency,
		OccurredAt:            occurredAt,
		SourceReference:       req.SourceReference,
	})
	if err != nil {
		return domain.RecordConversionResponse{}, err
	}

	touch, err := s.recordConversionTouch(ctx, tenantID, code, req, occurredAt)
	if err != nil {
		return domain.RecordConversionResponse{}, err
	}

	s.log.Debug("conversion recorded",
		zap.String("tenant_id", tenantID.String()),
		zap.String("affiliate_id", affiliate.ID.String()),
		zap.String("commission_event_id", event.ID.String()),
		zap.Int64("commission_amount_cents", event.CommissionAmountCents),
	)
	return domain.RecordConversionResponse{Touch: touch, CommissionEvent: event}, nil
}

func (s *Service) recordConversionTouch(ctx context.Context, tenantID snowflake.ID, code *affiliatedomain.ReferralCode, req domain.RecordConversionRequest, occurredAt time.Time) (domain.Touch, error) {
	touch := domain.Touch{
		ID:                 s.genID.Generate(),
		TenantID:           tenantID,
		ReferralCodeID:     code.ID,
		AffiliateID:        code.AffiliateID,
		TouchType:          domain.TouchConversion,
		VisitorFingerprint: strings.TrimSpace(req.VisitorFingerprint),
		ConvertedAt:        &occurredAt,
		CreatedAt:          s.clock.Now(),
	}
	ref := strings.TrimSpace(req.SourceReference)
	if ref != "" {
		touch.SourceReference = &ref
	}

	err := s.repo.InsertTouch(ctx, s.db, &touch)
	if err == nil {
		return touch, nil
	}
	if ref == "" || !db.IsDuplicateKeyErr(err) {
		return domain.Touch{}, err
	}
	existing, findErr := s.repo.FindTouchBySourceReference(ctx, s.db, tenantID, ref)
	if findErr != nil {
		return domain.Touch{}, findErr
	}
	if existing == nil {
		return domain.Touch{}, err
	}
	return *existing, nil
}

func (s *Service) resolveReferralCode(ctx context.Context, tenantID snowflake.ID, raw string) (*affiliatedomain.ReferralCode, error) {
	value := strings.ToUpper(slug.Make(strings.TrimSpace(raw)))
	if value == "" {
		return nil, domain.ErrInvalidReferralCode
	}
	code, err := s.affiliateRepo.FindReferralCode(ctx, s.db, tenantID, value)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrInvalidReferralCode
	}
	if !code.IsActive {
		return nil, domain.ErrReferralCodeInactive
	}
	return code, nil
}
