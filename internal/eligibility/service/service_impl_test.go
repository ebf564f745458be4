package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	affiliaterepository "github.com/smallbiznis/commissionrail/internal/affiliate/repository"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/eligibility/domain"
	"github.com/smallbiznis/commissionrail/internal/eligibility/repository"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var evaluatedAt = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	svc       domain.Service
	ctx       context.Context
	tenantID  snowflake.ID
	affiliate affiliatedomain.Affiliate
}

func newFixture(t *testing.T, status affiliatedomain.Status) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	svc := New(Params{
		DB:            db,
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(evaluatedAt),
		PayoutCfg:     config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig()),
		Repo:          repository.Provide(),
		AffiliateRepo: affiliaterepository.Provide(),
	})

	tenantID := node.Generate()
	return &fixture{
		db:        db,
		node:      node,
		svc:       svc,
		ctx:       testutil.TenantContext(tenantID),
		tenantID:  tenantID,
		affiliate: testutil.CreateAffiliate(t, db, node, tenantID, status),
	}
}

func (f *fixture) approved(t *testing.T, cents int64) commissiondomain.CommissionEvent {
	t.Helper()
	return testutil.CreateEvent(t, f.db, f.node, f.tenantID, f.affiliate.ID, commissiondomain.StatusApproved, cents, evaluatedAt.AddDate(0, -1, 0))
}

func (f *fixture) completedPayout(t *testing.T, cents int64, completedAt time.Time) {
	t.Helper()
	payout := payoutdomain.Payout{
		ID:                   f.node.Generate(),
		TenantID:             f.tenantID,
		AffiliateID:          f.affiliate.ID,
		PayoutMethodID:       f.node.Generate(),
		MethodType:           affiliatedomain.MethodStripeConnect,
		Currency:             "USD",
		RequestedAmountCents: cents,
		AmountCents:          cents,
		NetAmountCents:       cents,
		Status:               payoutdomain.StatusCompleted,
		PeriodStart:          completedAt.AddDate(0, -1, 0),
		PeriodEnd:            completedAt,
		CompletedAt:          &completedAt,
		CreatedAt:            completedAt,
		UpdatedAt:            completedAt,
	}
	require.NoError(t, f.db.Create(&payout).Error)
}

func TestEvaluateEligible(t *testing.T) {
	f := newFixture(t, affiliatedomain.StatusActive)
	testutil.CreatePayoutMethod(t, f.db, f.node, f.tenantID, f.affiliate.ID, affiliatedomain.MethodPayPal, true)
	f.approved(t, 3000)
	f.approved(t, 2500)
	testutil.CreateEvent(t, f.db, f.node, f.tenantID, f.affiliate.ID, commissiondomain.StatusPending, 9000, evaluatedAt)

	result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
	require.NoError(t, err)
	assert.True(t, result.Eligible)
	assert.Empty(t, result.Reason)
	assert.Equal(t, int64(5500), result.AvailableAmountCents)
	assert.Equal(t, int64(5000), result.MinimumThresholdCents)
	assert.True(t, result.HasPayoutMethod)
	assert.False(t, result.TaxDocsRequired)
	assert.Equal(t, 2025, result.TaxYear)
}

func TestEvaluateExcludesClaimedEvents(t *testing.T) {
	f := newFixture(t, affiliatedomain.StatusActive)
	testutil.CreatePayoutMethod(t, f.db, f.node, f.tenantID, f.affiliate.ID, affiliatedomain.MethodPayPal, true)
	f.approved(t, 6000)
	claimed := f.approved(t, 4000)
	require.NoError(t, f.db.Model(&commissiondomain.CommissionEvent{}).Where("id = ?", claimed.ID).Update("payout_id", f.node.Generate()).Error)

	result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), result.AvailableAmountCents)
}

func TestEvaluateReasonOrder(t *testing.T) {
	t.Run("inactive wins over everything", func(t *testing.T) {
		f := newFixture(t, affiliatedomain.StatusSuspended)
		f.approved(t, 100)

		result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.Equal(t, domain.ReasonAffiliateNotActive, result.Reason)
		assert.Equal(t, "suspended", result.AffiliateStatus)
	})

	t.Run("threshold before payout method", func(t *testing.T) {
		f := newFixture(t, affiliatedomain.StatusActive)
		f.approved(t, 4999)

		result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonBelowThreshold, result.Reason)
		assert.False(t, result.HasPayoutMethod)
	})

	t.Run("unverified method does not count", func(t *testing.T) {
		f := newFixture(t, affiliatedomain.StatusActive)
		testutil.CreatePayoutMethod(t, f.db, f.node, f.tenantID, f.affiliate.ID, affiliatedomain.MethodPayPal, false)
		f.approved(t, 5000)

		result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonNoPayoutMethod, result.Reason)
	})

	t.Run("program threshold overrides default", func(t *testing.T) {
		f := newFixture(t, affiliatedomain.StatusActive)
		testutil.CreateProgram(t, f.db, f.tenantID, 1000, false)
		testutil.CreatePayoutMethod(t, f.db, f.node, f.tenantID, f.affiliate.ID, affiliatedomain.MethodPayPal, true)
		f.approved(t, 1000)

		result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.True(t, result.Eligible)
		assert.Equal(t, int64(1000), result.MinimumThresholdCents)
	})
}

func TestEvaluateTaxDocuments(t *testing.T) {
	t.Run("year to date plus available reaches threshold", func(t *testing.T) {
		f := newFixture(t, affiliatedomain.StatusActive)
		testutil.CreatePayoutMethod(t, f.db, f.node, f.tenantID, f.affiliate.ID, affiliatedomain.MethodPayPal, true)
		f.completedPayout(t, 55000, evaluatedAt.AddDate(0, -2, 0))
		// Prior year payouts do not count.
		f.completedPayout(t, 90000, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
		f.approved(t, 5000)

		result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(55000), result.YTDCompletedCents)
		assert.True(t, result.TaxDocsRequired)
		assert.False(t, result.HasTaxDocs)
		assert.Equal(t, domain.ReasonMissingTaxDocs, result.Reason)

		testutil.CreateTaxDocument(t, f.db, f.node, f.tenantID, f.affiliate.ID, 2025)
		result, err = f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.True(t, result.Eligible)
		assert.True(t, result.HasTaxDocs)
	})

	t.Run("document for another year does not satisfy", func(t *testing.T) {
		f := newFixture(t, affiliatedomain.StatusActive)
		testutil.CreatePayoutMethod(t, f.db, f.node, f.tenantID, f.affiliate.ID, affiliatedomain.MethodPayPal, true)
		testutil.CreateTaxDocument(t, f.db, f.node, f.tenantID, f.affiliate.ID, 2024)
		f.approved(t, 60000)

		result, err := f.svc.Evaluate(f.ctx, f.affiliate.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ReasonMissingTaxDocs, result.Reason)
	})
}

func TestEvaluateErrors(t *testing.T) {
	f := newFixture(t, affiliatedomain.StatusActive)

	_, err := f.svc.Evaluate(f.ctx, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAffiliate)
	_, err = f.svc.Evaluate(f.ctx, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Evaluate(context.Background(), f.affiliate.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
	_, err = f.svc.Evaluate(testutil.TenantContext(f.node.Generate()), f.affiliate.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
