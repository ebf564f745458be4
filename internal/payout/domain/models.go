package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	// StatusPending is only produced by external tooling; it completes like
	// awaiting_approval.
	StatusPending          Status = "pending"
	StatusProcessing       Status = "processing"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:          {StatusCompleted, StatusFailed},
	StatusProcessing:       {StatusAwaitingApproval, StatusCompleted, StatusFailed},
	StatusAwaitingApproval: {StatusCompleted, StatusFailed},
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusAwaitingApproval:
		return StatusAwaitingApproval, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payout is one disbursement batch. AmountCents is the sum of the claimed
// events and may exceed RequestedAmountCents because events are never split.
type Payout struct {
	ID                   snowflake.ID               `gorm:"primaryKey" json:"id"`
	TenantID             snowflake.ID               `gorm:"not null;index:ix_payouts_affiliate,priority:1" json:"tenant_id"`
	AffiliateID          snowflake.ID               `gorm:"not null;index:ix_payouts_affiliate,priority:2" json:"affiliate_id"`
	PayoutMethodID       snowflake.ID               `gorm:"not null" json:"payout_method_id"`
	MethodType           affiliatedomain.MethodType `gorm:"type:text;not null" json:"method_type"`
	Currency             string                     `gorm:"not null" json:"currency"`
	RequestedAmountCents int64                      `gorm:"not null" json:"requested_amount_cents"`
	AmountCents          int64                      `gorm:"not null" json:"amount_cents"`
	FeeCents             int64                      `gorm:"not null" json:"fee_cents"`
	NetAmountCents       int64                      `gorm:"not null" json:"net_amount_cents"`
	Status               Status                     `gorm:"type:text;not null;index" json:"status"`
	ExternalReference    string                     `json:"external_reference,omitempty"`
	FailureReason        string                     `json:"failure_reason,omitempty"`
	PeriodStart          time.Time                  `gorm:"not null" json:"period_start"`
	PeriodEnd            time.Time                  `gorm:"not null" json:"period_end"`
	RailResponse         datatypes.JSONMap          `json:"rail_response,omitempty"`
	ApprovedBy           string                     `json:"approved_by,omitempty"`
	CompletedAt          *time.Time                 `json:"completed_at,omitempty"`
	FailedAt             *time.Time                 `json:"failed_at,omitempty"`
	CreatedAt            time.Time                  `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time                  `gorm:"not null" json:"updated_at"`
}
