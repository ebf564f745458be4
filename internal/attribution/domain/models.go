package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type TouchType string

const (
	TouchClick      TouchType = "click"
	TouchImpression TouchType = "impression"
	TouchConversion TouchType = "conversion"
)

func ParseTouchType(raw string) (TouchType, bool) {
	switch TouchType(strings.ToLower(strings.TrimSpace(raw))) {
	case TouchClick:
		return TouchClick, true
	case TouchImpression:
		return TouchImpression, true
	case TouchConversion:
		return TouchConversion, true
	default:
		return "", false
	}
}

type PlanType string

const (
	PlanFlat    PlanType = "flat"
	PlanPercent PlanType = "percent"
)

func ParsePlanType(raw string) (PlanType, bool) {
	switch PlanType(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanFlat:
		return PlanFlat, true
	case PlanPercent:
		return PlanPercent, true
	default:
		return "", false
	}
}

// Touch is an immutable attribution record.
type Touch struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID           snowflake.ID `gorm:"not null;index;uniqueIndex:ux_touches_source,priority:1" json:"tenant_id"`
	ReferralCodeID     snowflake.ID `gorm:"not null;index" json:"referral_code_id"`
	AffiliateID        snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	TouchType          TouchType    `gorm:"type:text;not null" json:"touch_type"`
	VisitorFingerprint string       `json:"visitor_fingerprint,omitempty"`
	SourceReference    *string      `gorm:"uniqueIndex:ux_touches_source,priority:2" json:"source_reference,omitempty"`
	ConvertedAt        *time.Time   `json:"converted_at,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
}

type CommissionPlan struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Name      string       `gorm:"not null" json:"name"`
	PlanType  PlanType     `gorm:"type:text;not null" json:"plan_type"`
	FlatCents int64        `gorm:"not null" json:"flat_cents"`
	RateBps   int64        `gorm:"not null" json:"rate_bps"`
	AppliesTo string       `gorm:"not null" json:"applies_to"`
	IsActive  bool         `gorm:"not null" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// CommissionFor derives the commission for a conversion amount. Percent plans
// round down to the cent.
func (p CommissionPlan) CommissionFor(amountCents int64) int64 {
	switch p.PlanType {
	case PlanFlat:
		return p.FlatCents
	case PlanPercent:
		if amountCents <= 0 {
			return 0
		}
		return amountCents * p.RateBps / 10000
	default:
		return 0
	}
}

// PlanAssignment binds a plan to an affiliate for a half-open window
// [EffectiveFrom, EffectiveTo). A nil EffectiveTo is open-ended.
type PlanAssignment struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID `gorm:"not null;index:ix_plan_assignments_affiliate,priority:1" json:"tenant_id"`
	AffiliateID   snowflake.ID `gorm:"not null;index:ix_plan_assignments_affiliate,priority:2" json:"affiliate_id"`
	PlanID        snowflake.ID `gorm:"not null;index" json:"plan_id"`
	EffectiveFrom time.Time    `gorm:"not null" json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (a PlanAssignment) Covers(at time.Time) bool {
	if at.Before(a.EffectiveFrom) {
		return false
	}
	return a.EffectiveTo == nil || at.Before(*a.EffectiveTo)
}

type TouchStats struct {
	ReferralCodeID snowflake.ID `json:"referral_code_id"`
	Clicks         int64        `json:"clicks"`
	Impressions    int64        `json:"impressions"`
	Conversions    int64        `json:"conversions"`
}
