package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func CreateAffiliate(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, status affiliatedomain.Status) affiliatedomain.Affiliate {
	t.Helper()
	now := time.Now().UTC()
	affiliate := affiliatedomain.Affiliate{
		ID:        node.Generate(),
		TenantID:  tenantID,
		Name:      "Partner",
		Email:     "partner@example.com",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.Create(&affiliate).Error)
	return affiliate
}

func CreatePayoutMethod(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID, affiliateID snowflake.ID, methodType affiliatedomain.MethodType, verified bool) affiliatedomain.PayoutMethod {
	t.Helper()
	now := time.Now().UTC()
	destination := "acct_" + affiliateID.String()
	if methodType == affiliatedomain.MethodPayPal {
		destination = "partner@example.com"
	}
	method := affiliatedomain.PayoutMethod{
		ID:          node.Generate(),
		TenantID:    tenantID,
		AffiliateID: affiliateID,
		MethodType:  methodType,
		Destination: destination,
		IsVerified:  verified,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if verified {
		method.VerifiedAt = &now
	}
	require.NoError(t, db.Create(&method).Error)
	return method
}

func CreateTaxDocument(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID, affiliateID snowflake.ID, taxYear int) affiliatedomain.TaxDocument {
	t.Helper()
	now := time.Now().UTC()
	doc := affiliatedomain.TaxDocument{
		ID:          node.Generate(),
		TenantID:    tenantID,
		AffiliateID: affiliateID,
		TaxYear:     taxYear,
		FormType:    "W9",
		IsVerified:  true,
		VerifiedAt:  &now,
		CreatedAt:   now,
	}
	require.NoError(t, db.Create(&doc).Error)
	return doc
}

func CreateProgram(t *testing.T, db *gorm.DB, tenantID snowflake.ID, minPayoutCents int64, autoApprove bool) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&affiliatedomain.Program{
		TenantID:       tenantID,
		MinPayoutCents: minPayoutCents,
		Currency:       "USD",
		AutoApprove:    autoApprove,
		CreatedAt:      now,
		UpdatedAt:      now,
	}).Error)
}

// CreateEvent inserts a commission event directly, bypassing the ledger
// service.
func CreateEvent(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID, affiliateID snowflake.ID, status commissiondomain.Status, cents int64, occurredAt time.Time) commissiondomain.CommissionEvent {
	t.Helper()
	now := time.Now().UTC()
	event := commissiondomain.CommissionEvent{
		ID:                    node.Generate(),
		TenantID:              tenantID,
		AffiliateID:           affiliateID,
		Currency:              "USD",
		EventAmountCents:      cents * 10,
		CommissionAmountCents: cents,
		Status:                status,
		OccurredAt:            occurredAt.UTC(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if status == commissiondomain.StatusApproved {
		event.ApprovedAt = &now
		event.ApprovedBy = "fixture"
	}
	require.NoError(t, db.Create(&event).Error)
	return event
}

func ReloadEvent(t *testing.T, db *gorm.DB, id snowflake.ID) commissiondomain.CommissionEvent {
	t.Helper()
	var event commissiondomain.CommissionEvent
	require.NoError(t, db.First(&event, "id = ?", id).Error)
	return event
}
