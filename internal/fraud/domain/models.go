package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusOpen           Status = "open"
	StatusInvestigating  Status = "investigating"
	StatusDismissed      Status = "dismissed"
	StatusFalsePositive  Status = "false_positive"
	StatusConfirmedFraud Status = "confirmed_fraud"
)

var transitions = map[Status][]Status{
	StatusOpen:          {StatusInvestigating, StatusDismissed, StatusFalsePositive, StatusConfirmedFraud},
	StatusInvestigating: {StatusDismissed, StatusFalsePositive, StatusConfirmedFraud},
}

func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusOpen:
		return StatusOpen, true
	case StatusInvestigating:
		return StatusInvestigating, true
	case StatusDismissed:
		return StatusDismissed, true
	case StatusFalsePositive:
		return StatusFalsePositive, true
	case StatusConfirmedFraud:
		return StatusConfirmedFraud, true
	default:
		return "", false
	}
}

func (s Status) IsResolved() bool {
	return s == StatusDismissed || s == StatusFalsePositive || s == StatusConfirmedFraud
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionNoAction            Action = "no_action"
	ActionWarningIssued       Action = "warning_issued"
	ActionAffiliateSuspended  Action = "affiliate_suspended"
	ActionAffiliateTerminated Action = "affiliate_terminated"
)

func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionNoAction:
		return ActionNoAction, true
	case ActionWarningIssued:
		return ActionWarningIssued, true
	case ActionAffiliateSuspended:
		return ActionAffiliateSuspended, true
	case ActionAffiliateTerminated:
		return ActionAffiliateTerminated, true
	default:
		return "", false
	}
}

// RequiresConfirmedFraud reports whether the action downgrades the affiliate.
func (a Action) RequiresConfirmedFraud() bool {
	return a == ActionAffiliateSuspended || a == ActionAffiliateTerminated
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(raw string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	default:
		return "", false
	}
}

type FraudAlert struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	AffiliateID       snowflake.ID      `gorm:"not null;index" json:"affiliate_id"`
	CommissionEventID *snowflake.ID     `json:"commission_event_id,omitempty"`
	AlertType         string            `gorm:"not null" json:"alert_type"`
	Severity          Severity          `gorm:"type:text;not null" json:"severity"`
	Details           datatypes.JSONMap `json:"details,omitempty"`
	Status            Status            `gorm:"type:text;not null;index" json:"status"`
	ResolutionAction  Action            `gorm:"type:text" json:"resolution_action,omitempty"`
	ResolutionNotes   string            `json:"resolution_notes,omitempty"`
	ResolvedBy        string            `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
}
