package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/internal/affiliate/repository"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/config"
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
	publisher *testutil.RecordingPublisher
	ctx       context.Context
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	publisher := &testutil.RecordingPublisher{}

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Config:    cfg,
		PayoutCfg: config.NewStaticPayoutConfigHolder(config.DefaultPayoutConfig()),
		Repo:      repository.Provide(),
		Audit:     testutil.NewAudit(db, node, clk),
		Publisher: publisher,
	})
	return &fixture{
		db:        db,
		node:      node,
		svc:       svc,
		publisher: publisher,
		ctx:       testutil.TenantContext(node.Generate()),
	}
}

func (f *fixture) create(t *testing.T, name string) domain.Affiliate {
	t.Helper()
	affiliate, err := f.svc.Create(f.ctx, domain.CreateAffiliateRequest{Name: name, Email: " Partner@Example.com "})
	require.NoError(t, err)
	return affiliate
}

func TestCreateAffiliate(t *testing.T) {
	f := newFixture(t, config.Config{})

	affiliate := f.create(t, "Acme Media")
	assert.Equal(t, domain.StatusActive, affiliate.Status)
	assert.Equal(t, "partner@example.com", affiliate.Email)

	got, err := f.svc.Get(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, affiliate.Name, got.Name)

	_, err = f.svc.Create(f.ctx, domain.CreateAffiliateRequest{Name: " ", Email: "a@b.c"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = f.svc.Create(f.ctx, domain.CreateAffiliateRequest{Name: "x", Email: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	var logs int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionAffiliateCreated).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)
}

func TestListAffiliatesPaginates(t *testing.T) {
	f := newFixture(t, config.Config{})
	for _, name := range []string{"One", "Two", "Three"} {
		f.create(t, name)
	}

	resp, err := f.svc.List(f.ctx, domain.ListAffiliateRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Affiliates, 3)

	_, err = f.svc.List(f.ctx, domain.ListAffiliateRequest{Status: "banned"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestChangeStatus(t *testing.T) {
	f := newFixture(t, config.Config{})
	affiliate := f.create(t, "Acme")

	suspended, err := f.svc.ChangeStatus(f.ctx, domain.ChangeStatusRequest{AffiliateID: affiliate.ID, Status: "suspended", Reason: "chargebacks"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuspended, suspended.Status)
	assert.Contains(t, f.publisher.Types(), "affiliate.status_changed")

	_, err = f.svc.ChangeStatus(f.ctx, domain.ChangeStatusRequest{AffiliateID: affiliate.ID, Status: "suspended"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = f.svc.ChangeStatus(f.ctx, domain.ChangeStatusRequest{AffiliateID: affiliate.ID, Status: "inactive"})
	require.NoError(t, err)
	_, err = f.svc.ChangeStatus(f.ctx, domain.ChangeStatusRequest{AffiliateID: affiliate.ID, Status: "active"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
}

func TestReferralCodes(t *testing.T) {
	f := newFixture(t, config.Config{MaxReferralCodes: 2})
	affiliate := f.create(t, "Acme Media Group International")

	code, err := f.svc.CreateReferralCode(f.ctx, domain.CreateReferralCodeRequest{AffiliateID: affiliate.ID, Code: "summer sale"})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER-SALE", code.Code)

	generated, err := f.svc.CreateReferralCode(f.ctx, domain.CreateReferralCodeRequest{AffiliateID: affiliate.ID})
	require.NoError(t, err)
	assert.Regexp(t, `^ACME-MEDIA-G-[0-9A-Z]{1,6}$`, generated.Code)

	_, err = f.svc.CreateReferralCode(f.ctx, domain.CreateReferralCodeRequest{AffiliateID: affiliate.ID, Code: "third"})
	assert.ErrorIs(t, err, domain.ErrReferralCodeLimit)

	require.NoError(t, f.svc.DeactivateReferralCode(f.ctx, affiliate.ID, generated.ID))
	other := f.create(t, "Other")
	_, err = f.svc.CreateReferralCode(f.ctx, domain.CreateReferralCodeRequest{AffiliateID: other.ID, Code: "SUMMER-SALE"})
	assert.ErrorIs(t, err, domain.ErrReferralCodeTaken)

	_, err = f.svc.CreateReferralCode(f.ctx, domain.CreateReferralCodeRequest{AffiliateID: affiliate.ID, Code: "!!"})
	assert.ErrorIs(t, err, domain.ErrInvalidReferralCode)

	codes, err := f.svc.ListReferralCodes(f.ctx, affiliate.ID)
	require.NoError(t, err)
	assert.Len(t, codes, 2)

	assert.ErrorIs(t, f.svc.DeactivateReferralCode(f.ctx, affiliate.ID, f.node.Generate()), domain.ErrNotFound)
}

func TestReferralCodeRequiresActiveAffiliate(t *testing.T) {
	f := newFixture(t, config.Config{})
	affiliate := f.create(t, "Acme")
	_, err := f.svc.ChangeStatus(f.ctx, domain.ChangeStatusRequest{AffiliateID: affiliate.ID, Status: "suspended"})
	require.NoError(t, err)

	_, err = f.svc.CreateReferralCode(f.ctx, domain.CreateReferralCodeRequest{AffiliateID: affiliate.ID, Code: "PROMO"})
	assert.ErrorIs(t, err, domain.ErrAffiliateNotActive)
}

func TestPayoutMethods(t *testing.T) {
	f := newFixture(t, config.Config{})
	affiliate := f.create(t, "Acme")

	_, err := f.svc.AddPayoutMethod(f.ctx, domain.AddPayoutMethodRequest{AffiliateID: affiliate.ID, MethodType: "paypal", Destination: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)
	_, err = f.svc.AddPayoutMethod(f.ctx, domain.AddPayoutMethodRequest{AffiliateID: affiliate.ID, MethodType: "venmo", Destination: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidMethodType)

	method, err := f.svc.AddPayoutMethod(f.ctx, domain.AddPayoutMethodRequest{AffiliateID: affiliate.ID, MethodType: "Stripe_Connect", Destination: "acct_123"})
	require.NoError(t, err)
	assert.False(t, method.IsVerified)

	_, err = f.svc.AddPayoutMethod(f.ctx, domain.AddPayoutMethodRequest{AffiliateID: affiliate.ID, MethodType: "stripe_connect", Destination: "acct_456"})
	assert.ErrorIs(t, err, domain.ErrPayoutMethodExists)

	verified, err := f.svc.VerifyPayoutMethod(f.ctx, affiliate.ID, method.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	require.NotNil(t, verified.VerifiedAt)

	again, err := f.svc.VerifyPayoutMethod(f.ctx, affiliate.ID, method.ID)
	require.NoError(t, err)
	assert.True(t, again.IsVerified)

	var logs int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", auditdomain.ActionPayoutMethodVerified).Count(&logs).Error)
	assert.Equal(t, int64(1), logs)

	methods, err := f.svc.ListPayoutMethods(f.ctx, affiliate.ID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].IsVerified)
}

func TestTaxDocuments(t *testing.T) {
	f := newFixture(t, config.Config{})
	affiliate := f.create(t, "Acme")

	_, err := f.svc.SubmitTaxDocument(f.ctx, domain.SubmitTaxDocumentRequest{AffiliateID: affiliate.ID, TaxYear: 1999, FormType: "W9"})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxYear)
	_, err = f.svc.SubmitTaxDocument(f.ctx, domain.SubmitTaxDocumentRequest{AffiliateID: affiliate.ID, TaxYear: 2025, FormType: "1099"})
	assert.ErrorIs(t, err, domain.ErrInvalidFormType)

	doc, err := f.svc.SubmitTaxDocument(f.ctx, domain.SubmitTaxDocumentRequest{AffiliateID: affiliate.ID, TaxYear: 2025, FormType: "w-8ben"})
	require.NoError(t, err)
	assert.Equal(t, "W8BEN", doc.FormType)
	assert.False(t, doc.IsVerified)

	verified, err := f.svc.VerifyTaxDocument(f.ctx, affiliate.ID, doc.ID)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)

	_, err = f.svc.VerifyTaxDocument(f.ctx, affiliate.ID, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProgramDefaultsAndUpsert(t *testing.T) {
	f := newFixture(t, config.Config{DefaultCurrency: "EUR"})

	program, err := f.svc.GetProgram(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), program.MinPayoutCents)
	assert.Equal(t, "EUR", program.Currency)
	assert.False(t, program.AutoApprove)

	_, err = f.svc.UpsertProgram(f.ctx, domain.UpsertProgramRequest{MinPayoutCents: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidMinPayout)

	_, err = f.svc.UpsertProgram(f.ctx, domain.UpsertProgramRequest{MinPayoutCents: 2500, Currency: "usd", AutoApprove: true})
	require.NoError(t, err)
	updated, err := f.svc.UpsertProgram(f.ctx, domain.UpsertProgramRequest{MinPayoutCents: 3000, Currency: "usd", AutoApprove: true})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), updated.MinPayoutCents)

	program, err = f.svc.GetProgram(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), program.MinPayoutCents)
	assert.Equal(t, "USD", program.Currency)
	assert.True(t, program.AutoApprove)
}
