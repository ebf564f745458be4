package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	affiliaterepository "github.com/smallbiznis/commissionrail/internal/affiliate/repository"
	"github.com/smallbiznis/commissionrail/internal/attribution/domain"
	"github.com/smallbiznis/commissionrail/internal/attribution/repository"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/commissionrail/internal/commission/repository"
	commissionservice "github.com/smallbiznis/commissionrail/internal/commission/service"
	"github.com/smallbiznis/commissionrail/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	svc       domain.Service
	ctx       context.Context
	tenantID  snowflake.ID
	affiliate affiliatedomain.Affiliate
	code      affiliatedomain.ReferralCode
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	affiliateRepo := affiliaterepository.Provide()

	commission := commissionservice.New(commissionservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          commissionrepository.Provide(),
		AffiliateRepo: affiliateRepo,
		Audit:         testutil.NewAudit(db, node, clk),
		Publisher:     &testutil.RecordingPublisher{},
	})
	svc := New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          repository.Provide(),
		AffiliateRepo: affiliateRepo,
		Commission:    commission,
	})

	tenantID := node.Generate()
	affiliate := testutil.CreateAffiliate(t, db, node, tenantID, affiliatedomain.StatusActive)
	code := affiliatedomain.ReferralCode{
		ID:          node.Generate(),
		TenantID:    tenantID,
		AffiliateID: affiliate.ID,
		Code:        "SPRING-SALE",
		IsActive:    true,
		CreatedAt:   clk.Now(),
	}
	require.NoError(t, db.Create(&code).Error)

	return &fixture{
		db:        db,
		node:      node,
		svc:       svc,
		ctx:       testutil.TenantContext(tenantID),
		tenantID:  tenantID,
		affiliate: affiliate,
		code:      code,
	}
}

func (f *fixture) assign(t *testing.T, plan domain.CommissionPlan, from time.Time, to *time.Time) domain.PlanAssignment {
	t.Helper()
	assignment, err := f.svc.AssignPlan(f.ctx, domain.AssignPlanRequest{
		PlanID:        plan.ID,
		AffiliateID:   f.affiliate.ID,
		EffectiveFrom: from,
		EffectiveTo:   to,
	})
	require.NoError(t, err)
	return assignment
}

func TestRecordTouchNormalisesReferralCode(t *testing.T) {
	f := newFixture(t)

	touch, err := f.svc.RecordTouch(f.ctx, domain.RecordTouchRequest{ReferralCode: " spring sale ", TouchType: "CLICK"})
	require.NoError(t, err)
	assert.Equal(t, f.code.ID, touch.ReferralCodeID)
	assert.Equal(t, f.affiliate.ID, touch.AffiliateID)
	assert.Equal(t, domain.TouchClick, touch.TouchType)

	_, err = f.svc.RecordTouch(f.ctx, domain.RecordTouchRequest{ReferralCode: "spring-sale", TouchType: "impression"})
	require.NoError(t, err)

	stats, err := f.svc.TouchStats(f.ctx, f.code.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Clicks)
	assert.Equal(t, int64(1), stats.Impressions)
	assert.Zero(t, stats.Conversions)

	_, err = f.svc.RecordTouch(f.ctx, domain.RecordTouchRequest{ReferralCode: "nope", TouchType: "click"})
	assert.ErrorIs(t, err, domain.ErrInvalidReferralCode)
	_, err = f.svc.RecordTouch(f.ctx, domain.RecordTouchRequest{ReferralCode: "spring-sale", TouchType: "hover"})
	assert.ErrorIs(t, err, domain.ErrInvalidTouchType)
}

func TestRecordTouchRejectsInactiveCode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(&affiliatedomain.ReferralCode{}).Where("id = ?", f.code.ID).Update("is_active", false).Error)

	_, err := f.svc.RecordTouch(f.ctx, domain.RecordTouchRequest{ReferralCode: "spring-sale", TouchType: "click"})
	assert.ErrorIs(t, err, domain.ErrReferralCodeInactive)
}

func TestCreatePlanValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		req  domain.CreatePlanRequest
		want error
	}{
		{"missing name", domain.CreatePlanRequest{PlanType: "flat", FlatCents: 100}, domain.ErrInvalidPlanName},
		{"unknown type", domain.CreatePlanRequest{Name: "x", PlanType: "tiered"}, domain.ErrInvalidPlanType},
		{"flat without amount", domain.CreatePlanRequest{Name: "x", PlanType: "flat"}, domain.ErrInvalidPlanAmount},
		{"percent above 100", domain.CreatePlanRequest{Name: "x", PlanType: "percent", RateBps: 10001}, domain.ErrInvalidPlanAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreatePlan(f.ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	plan, err := f.svc.CreatePlan(f.ctx, domain.CreatePlanRequest{Name: "Standard", PlanType: "percent", RateBps: 1500})
	require.NoError(t, err)
	assert.Equal(t, "all", plan.AppliesTo)

	plans, err := f.svc.ListPlans(f.ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)
}

func TestAssignPlanRejectsOverlappingWindows(t *testing.T) {
	f := newFixture(t)
	plan, err := f.svc.CreatePlan(f.ctx, domain.CreatePlanRequest{Name: "Flat", PlanType: "flat", FlatCents: 500})
	require.NoError(t, err)

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	f.assign(t, plan, jan, &feb)
	// Half-open windows may touch.
	f.assign(t, plan, feb, &mar)

	_, err = f.svc.AssignPlan(f.ctx, domain.AssignPlanRequest{PlanID: plan.ID, AffiliateID: f.affiliate.ID, EffectiveFrom: jan.AddDate(0, 0, 10)})
	assert.ErrorIs(t, err, domain.ErrOverlappingAssignment)

	f.assign(t, plan, mar, nil)
	_, err = f.svc.AssignPlan(f.ctx, domain.AssignPlanRequest{PlanID: plan.ID, AffiliateID: f.affiliate.ID, EffectiveFrom: mar.AddDate(1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrOverlappingAssignment)

	_, err = f.svc.AssignPlan(f.ctx, domain.AssignPlanRequest{PlanID: plan.ID, AffiliateID: f.affiliate.ID, EffectiveFrom: feb, EffectiveTo: &jan})
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	_, err = f.svc.AssignPlan(f.ctx, domain.AssignPlanRequest{PlanID: f.node.Generate(), AffiliateID: f.affiliate.ID, EffectiveFrom: mar.AddDate(2, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordConversionUsesPlanActiveAtOccurredAt(t *testing.T) {
	f := newFixture(t)
	flat, err := f.svc.CreatePlan(f.ctx, domain.CreatePlanRequest{Name: "Launch", PlanType: "flat", FlatCents: 700})
	require.NoError(t, err)
	percent, err := f.svc.CreatePlan(f.ctx, domain.CreatePlanRequest{Name: "Standard", PlanType: "percent", RateBps: 1250})
	require.NoError(t, err)

	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	f.assign(t, flat, jan, &feb)
	f.assign(t, percent, feb, nil)

	early, err := f.svc.RecordConversion(f.ctx, domain.RecordConversionRequest{
		ReferralCode:    "SPRING-SALE",
		AmountCents:     9999,
		Currency:        "USD",
		OccurredAt:      jan.Add(48 * time.Hour),
		SourceReference: "order-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(700), early.CommissionEvent.CommissionAmountCents)
	assert.Equal(t, commissiondomain.StatusPending, early.CommissionEvent.Status)
	assert.Equal(t, domain.TouchConversion, early.Touch.TouchType)

	late, err := f.svc.RecordConversion(f.ctx, domain.RecordConversionRequest{
		ReferralCode:    "SPRING-SALE",
		AmountCents:     9999,
		Currency:        "USD",
		OccurredAt:      feb,
		SourceReference: "order-2",
	})
	require.NoError(t, err)
	// 12.5% of 9999 rounds down.
	assert.Equal(t, int64(1249), late.CommissionEvent.CommissionAmountCents)
	assert.Equal(t, int64(9999), late.CommissionEvent.EventAmountCents)

	_, err = f.svc.RecordConversion(f.ctx, domain.RecordConversionRequest{
		ReferralCode: "SPRING-SALE",
		AmountCents:  100,
		Currency:     "USD",
		OccurredAt:   jan.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrNoActivePlan)
}

func TestRecordConversionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	plan, err := f.svc.CreatePlan(f.ctx, domain.CreatePlanRequest{Name: "Flat", PlanType: "flat", FlatCents: 300})
	require.NoError(t, err)
	f.assign(t, plan, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)

	req := domain.RecordConversionRequest{
		ReferralCode:    "SPRING-SALE",
		AmountCents:     5000,
		Currency:        "USD",
		OccurredAt:      time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		SourceReference: "order-77",
	}
	first, err := f.svc.RecordConversion(f.ctx, req)
	require.NoError(t, err)
	second, err := f.svc.RecordConversion(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.CommissionEvent.ID, second.CommissionEvent.ID)
	assert.Equal(t, first.Touch.ID, second.Touch.ID)

	var touches int64
	require.NoError(t, f.db.Model(&domain.Touch{}).Count(&touches).Error)
	assert.Equal(t, int64(1), touches)
}

func TestRecordConversionRejectsSuspendedAffiliate(t *testing.T) {
	f := newFixture(t)
	plan, err := f.svc.CreatePlan(f.ctx, domain.CreatePlanRequest{Name: "Flat", PlanType: "flat", FlatCents: 300})
	require.NoError(t, err)
	f.assign(t, plan, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, f.db.Model(&affiliatedomain.Affiliate{}).Where("id = ?", f.affiliate.ID).Update("status", affiliatedomain.StatusSuspended).Error)

	_, err = f.svc.RecordConversion(f.ctx, domain.RecordConversionRequest{
		ReferralCode: "SPRING-SALE",
		AmountCents:  5000,
		Currency:     "USD",
		OccurredAt:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrAffiliateNotActive)
}

func TestRecordConversionValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordConversion(f.ctx, domain.RecordConversionRequest{ReferralCode: "SPRING-SALE", OccurredAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.svc.RecordConversion(f.ctx, domain.RecordConversionRequest{ReferralCode: "SPRING-SALE", AmountCents: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidOccurredAt)
	_, err = f.svc.RecordConversion(context.Background(), domain.RecordConversionRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}
