package domain

import "github.com/bwmarrin/snowflake"

// Reasons name the first failing predicate, checked in declaration order.
const (
	ReasonAffiliateNotActive = "affiliate_not_active"
	ReasonBelowThreshold     = "below_minimum_threshold"
	ReasonNoPayoutMethod     = "no_verified_payout_method"
	ReasonMissingTaxDocs     = "missing_tax_documents"
)

// Result is an advisory snapshot. A concurrent claim can invalidate it
// before a payout is created.
type Result struct {
	AffiliateID           snowflake.ID `json:"affiliate_id"`
	Eligible              bool         `json:"eligible"`
	Reason                string       `json:"reason,omitempty"`
	AffiliateStatus       string       `json:"affiliate_status"`
	AvailableAmountCents  int64        `json:"available_amount_cents"`
	Currency              string       `json:"currency"`
	MinimumThresholdCents int64        `json:"minimum_threshold_cents"`
	HasPayoutMethod       bool         `json:"has_payout_method"`
	HasTaxDocs            bool         `json:"has_tax_docs"`
	TaxDocsRequired       bool         `json:"tax_docs_required"`
	YTDCompletedCents     int64        `json:"ytd_completed_cents"`
	TaxYear               int          `json:"tax_year"`
}
