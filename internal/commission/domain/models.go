package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusReversed Status = "reversed"
)

// transitions is the complete commission lifecycle. Approved to paid happens
// only when the payout that claimed the event completes.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusReversed},
	StatusApproved: {StatusPaid, StatusReversed},
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusPaid:
		return StatusPaid, true
	case StatusReversed:
		return StatusReversed, true
	default:
		return "", false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusReversed
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CommissionEvent is one ledger line owed to an affiliate. PayoutID is the
// claim marker; it is only set or cleared by the payout allocator.
type CommissionEvent struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID              snowflake.ID  `gorm:"not null;index:ix_commission_events_claimable,priority:1;uniqueIndex:ux_commission_events_source,priority:1" json:"tenant_id"`
	AffiliateID           snowflake.ID  `gorm:"not null;index:ix_commission_events_claimable,priority:2" json:"affiliate_id"`
	SourceReference       *string       `gorm:"uniqueIndex:ux_commission_events_source,priority:2" json:"source_reference,omitempty"`
	Currency              string        `gorm:"not null" json:"currency"`
	EventAmountCents      int64         `gorm:"not null" json:"event_amount_cents"`
	CommissionAmountCents int64         `gorm:"not null" json:"commission_amount_cents"`
	Status                Status        `gorm:"type:text;not null;index:ix_commission_events_claimable,priority:3" json:"status"`
	OccurredAt            time.Time     `gorm:"not null" json:"occurred_at"`
	PayoutID              *snowflake.ID `gorm:"index" json:"payout_id,omitempty"`
	ApprovedAt            *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy            string        `json:"approved_by,omitempty"`
	PaidAt                *time.Time    `json:"paid_at,omitempty"`
	ReversedAt            *time.Time    `json:"reversed_at,omitempty"`
	ReversalReason        string        `json:"reversal_reason,omitempty"`
	CreatedAt             time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null" json:"updated_at"`
}

func (e CommissionEvent) IsClaimed() bool {
	return e.PayoutID != nil && *e.PayoutID != 0
}

// Approve moves a pending event to approved.
func (e *CommissionEvent) Approve(approvedBy string, now time.Time) error {
	if err := e.checkTransition(StatusApproved); err != nil {
		return err
	}
	e.Status = StatusApproved
	e.ApprovedAt = &now
	e.ApprovedBy = approvedBy
	e.UpdatedAt = now
	return nil
}

// Reverse voids an unpaid event. A claimed event must be released by its
// payout before it can be reversed.
func (e *CommissionEvent) Reverse(reason string, now time.Time) error {
	if err := e.checkTransition(StatusReversed); err != nil {
		return err
	}
	if e.IsClaimed() {
		return ErrEventClaimed
	}
	e.Status = StatusReversed
	e.ReversedAt = &now
	e.ReversalReason = reason
	e.UpdatedAt = now
	return nil
}

func (e *CommissionEvent) checkTransition(next Status) error {
	if e.Status.IsTerminal() {
		return ErrTerminalState
	}
	if !e.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	return nil
}

// Balance summarises an affiliate's ledger by bucket.
type Balance struct {
	AffiliateID    snowflake.ID `json:"affiliate_id"`
	PendingCents   int64        `json:"pending_cents"`
	AvailableCents int64        `json:"available_cents"`
	ClaimedCents   int64        `json:"claimed_cents"`
	PaidCents      int64        `json:"paid_cents"`
	ReversedCents  int64        `json:"reversed_cents"`
}
