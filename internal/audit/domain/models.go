package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	ActorType  string            `gorm:"not null" json:"actor_type"`
	ActorID    string            `gorm:"not null" json:"actor_id"`
	Action     string            `gorm:"not null;index" json:"action"`
	TargetType string            `gorm:"not null" json:"target_type"`
	TargetID   string            `gorm:"not null;index" json:"target_id"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
}

// Entry is a single audit record before persistence. Actor and request id are
// taken from the context.
type Entry struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

const (
	ActionAffiliateCreated       = "affiliate.created"
	ActionAffiliateStatusChanged = "affiliate.status_changed"
	ActionPayoutMethodVerified   = "payout_method.verified"
	ActionTaxDocumentVerified    = "tax_document.verified"
	ActionCommissionApproved     = "commission.approved"
	ActionCommissionReversed     = "commission.reversed"
	ActionPayoutRequested        = "payout.requested"
	ActionPayoutFailed           = "payout.failed"
	ActionPayoutCompleted        = "payout.completed"
	ActionPayoutRejected         = "payout.rejected"
	ActionFraudAlertResolved     = "fraud_alert.resolved"
	ActionProgramUpdated         = "program.updated"
	ActionAuthorizationDenied    = "authorization.denied"
)
