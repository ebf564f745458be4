package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
)

type RecordTouchRequest struct {
	ReferralCode       string     `json:"referral_code"`
	TouchType          string     `json:"touch_type"`
	VisitorFingerprint string     `json:"visitor_fingerprint"`
	ConvertedAt        *time.Time `json:"converted_at"`
}

type CreatePlanRequest struct {
	Name      string `json:"name"`
	PlanType  string `json:"plan_type"`
	FlatCents int64  `json:"flat_cents"`
	RateBps   int64  `json:"rate_bps"`
	AppliesTo string `json:"applies_to"`
}

type AssignPlanRequest struct {
	PlanID        snowflake.ID
	AffiliateID   snowflake.ID `json:"affiliate_id"`
	EffectiveFrom time.Time    `json:"effective_from"`
	EffectiveTo   *time.Time   `json:"effective_to"`
}

type RecordConversionRequest struct {
	ReferralCode       string    `json:"referral_code"`
	AmountCents        int64     `json:"amount_cents"`
	Currency           string    `json:"currency"`
	OccurredAt         time.Time `json:"occurred_at"`
	SourceReference    string    `json:"source_reference"`
	VisitorFingerprint string    `json:"visitor_fingerprint"`
}

type RecordConversionResponse struct {
	Touch           Touch                             `json:"touch"`
	CommissionEvent commissiondomain.CommissionEvent `json:"commission_event"`
}

type Service interface {
	RecordTouch(ctx context.Context, req RecordTouchRequest) (Touch, error)
	TouchStats(ctx context.Context, referralCodeID snowflake.ID) (TouchStats, error)
	CreatePlan(ctx context.Context, req CreatePlanRequest) (CommissionPlan, error)
	ListPlans(ctx context.Context) ([]CommissionPlan, error)
	AssignPlan(ctx context.Context, req AssignPlanRequest) (PlanAssignment, error)
	RecordConversion(ctx context.Context, req RecordConversionRequest) (RecordConversionResponse, error)
}

var (
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidReferralCode   = errors.New("invalid_referral_code")
	ErrReferralCodeInactive  = errors.New("referral_code_inactive")
	ErrInvalidTouchType      = errors.New("invalid_touch_type")
	ErrInvalidPlanName       = errors.New("invalid_plan_name")
	ErrInvalidPlanType       = errors.New("invalid_plan_type")
	ErrInvalidPlanAmount     = errors.New("invalid_plan_amount")
	ErrInvalidWindow         = errors.New("invalid_effective_window")
	ErrOverlappingAssignment = errors.New("overlapping_plan_assignment")
	ErrNoActivePlan          = errors.New("no_active_plan")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidOccurredAt     = errors.New("invalid_occurred_at")
	ErrZeroCommission        = errors.New("zero_commission")
	ErrAffiliateNotActive    = errors.New("affiliate_not_active")
	ErrNotFound              = errors.New("not_found")
)
