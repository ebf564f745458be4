package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

// CreateEventRequest is a conversion reported by attribution. The commission
// amount is already plan-derived and is never recomputed.
type CreateEventRequest struct {
	AffiliateID           snowflake.ID `json:"affiliate_id"`
	EventAmountCents      int64        `json:"event_amount_cents"`
	CommissionAmountCents int64        `json:"commission_amount_cents"`
	Currency              string       `json:"currency"`
	OccurredAt            time.Time    `json:"occurred_at"`
	SourceReference       string       `json:"source_reference"`
}

type ReverseEventRequest struct {
	EventID snowflake.ID
	Reason  string `json:"reason"`
}

type ListEventRequest struct {
	pagination.Pagination
	AffiliateID snowflake.ID
	PayoutID    snowflake.ID
	Status      string
	Claimed     *bool
}

type ListEventResponse struct {
	pagination.PageInfo
	Events []CommissionEvent `json:"commission_events"`
}

type Service interface {
	CreateEvent(ctx context.Context, req CreateEventRequest) (CommissionEvent, error)
	ApproveEvent(ctx context.Context, eventID snowflake.ID) (CommissionEvent, error)
	ReverseEvent(ctx context.Context, req ReverseEventRequest) (CommissionEvent, error)
	// ReverseInTx reverses inside a caller-owned transaction and emits no
	// events. It also returns the status the event held before reversal.
	ReverseInTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, req ReverseEventRequest) (CommissionEvent, Status, error)
	// NotifyReversed emits metrics and events once a ReverseInTx commits.
	NotifyReversed(ctx context.Context, event CommissionEvent, from Status)
	GetEvent(ctx context.Context, eventID snowflake.ID) (CommissionEvent, error)
	ListEvents(ctx context.Context, req ListEventRequest) (ListEventResponse, error)
	Balance(ctx context.Context, affiliateID snowflake.ID) (Balance, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidAffiliate  = errors.New("invalid_affiliate")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrCurrencyMismatch  = errors.New("currency_not_program_currency")
	ErrInvalidOccurredAt = errors.New("invalid_occurred_at")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidReason     = errors.New("invalid_reversal_reason")
	ErrInvalidTransition = errors.New("invalid_status_transition")
	ErrTerminalState     = errors.New("commission_event_terminal")
	ErrEventClaimed      = errors.New("commission_event_claimed")
	ErrConcurrentUpdate  = errors.New("commission_event_concurrent_update")
	ErrNotFound          = errors.New("not_found")
)
