package domain

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
)

type DispatchRequest struct {
	PayoutID       snowflake.ID
	TenantID       snowflake.ID
	AffiliateID    snowflake.ID
	MethodType     affiliatedomain.MethodType
	Destination    string
	NetAmountCents int64
	Currency       string
}

// IdempotencyKey is stable per payout so a retried dispatch never moves
// money twice on rails that honour it.
func (r DispatchRequest) IdempotencyKey() string {
	return "payout_" + r.PayoutID.String()
}

type DispatchResult struct {
	Status            Status
	ExternalReference string
	Metadata          map[string]any
}

// Rail moves a payout's net amount to the affiliate's destination.
type Rail interface {
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// RailError is a structured rejection from an external rail.
type RailError struct {
	Rail       string
	StatusCode int
	Code       string
	Message    string
}

func (e *RailError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%d %s)", e.Rail, e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Rail, e.Message, e.StatusCode)
}
