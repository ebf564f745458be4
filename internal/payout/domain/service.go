package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type RequestPayoutRequest struct {
	AffiliateID snowflake.ID `json:"affiliate_id"`
	AmountCents int64        `json:"amount_cents"`
	MethodType  string       `json:"method_type"`
}

type CompletePayoutRequest struct {
	PayoutID        snowflake.ID
	ReferenceNumber string `json:"reference_number"`
	ApproverID      string `json:"approver_id"`
}

type RejectPayoutRequest struct {
	PayoutID snowflake.ID
	Reason   string `json:"reason"`
}

// RailOutcomeRequest reports the eventual result of a processing payout.
type RailOutcomeRequest struct {
	PayoutID          snowflake.ID
	Status            string `json:"status"`
	ExternalReference string `json:"external_reference"`
	FailureReason     string `json:"failure_reason"`
}

type ListPayoutRequest struct {
	pagination.Pagination
	AffiliateID snowflake.ID
	Status      string
}

type ListPayoutResponse struct {
	pagination.PageInfo
	Payouts []Payout `json:"payouts"`
}

type Service interface {
	// RequestPayout claims, dispatches and records a payout. When the rail
	// fails the returned Payout is the failed row alongside the error.
	RequestPayout(ctx context.Context, req RequestPayoutRequest) (Payout, error)
	GetPayout(ctx context.Context, id snowflake.ID) (Payout, error)
	ListPayouts(ctx context.Context, req ListPayoutRequest) (ListPayoutResponse, error)
	CompletePayout(ctx context.Context, req CompletePayoutRequest) (Payout, error)
	RejectPayout(ctx context.Context, req RejectPayoutRequest) (Payout, error)
	ReportRailOutcome(ctx context.Context, req RailOutcomeRequest) (Payout, error)
	// ReleaseInTx fails a payout that has not reached an external rail and
	// frees its events inside tx. Call NotifyFailed after commit.
	ReleaseInTx(ctx context.Context, tx *gorm.DB, tenantID, payoutID snowflake.ID, reason string) (Payout, error)
	NotifyFailed(ctx context.Context, payout Payout)
}
