package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
)

type CreateAlertRequest struct {
	AffiliateID       snowflake.ID   `json:"affiliate_id"`
	CommissionEventID *snowflake.ID  `json:"commission_event_id"`
	AlertType         string         `json:"alert_type"`
	Severity          string         `json:"severity"`
	Details           map[string]any `json:"details"`
}

type ResolveAlertRequest struct {
	AlertID          snowflake.ID
	Status           string `json:"status"`
	ResolutionAction string `json:"resolution_action"`
	ReverseEvent     bool   `json:"reverse_event"`
	Notes            string `json:"notes"`
}

type ListAlertRequest struct {
	pagination.Pagination
	AffiliateID snowflake.ID
	Status      string
}

type ListAlertResponse struct {
	pagination.PageInfo
	Alerts []FraudAlert `json:"fraud_alerts"`
}

type Service interface {
	CreateAlert(ctx context.Context, req CreateAlertRequest) (FraudAlert, error)
	GetAlert(ctx context.Context, id snowflake.ID) (FraudAlert, error)
	ListAlerts(ctx context.Context, req ListAlertRequest) (ListAlertResponse, error)
	// ResolveAlert applies a review decision, including any reversal and
	// affiliate downgrade, atomically.
	ResolveAlert(ctx context.Context, req ResolveAlertRequest) (FraudAlert, error)
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidAffiliate     = errors.New("invalid_affiliate")
	ErrInvalidAlertType     = errors.New("invalid_alert_type")
	ErrInvalidSeverity      = errors.New("invalid_severity")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidAction        = errors.New("invalid_resolution_action")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrAlreadyResolved      = errors.New("fraud_alert_resolved")
	ErrActionRequiresFraud  = errors.New("action_requires_confirmed_fraud")
	ErrReverseRequiresFraud = errors.New("reverse_requires_confirmed_fraud")
	ErrNoLinkedEvent        = errors.New("no_linked_commission_event")
	ErrInvalidCommission    = errors.New("invalid_commission_event")
	ErrConcurrentResolution = errors.New("fraud_alert_concurrent_update")
	ErrNotFound             = errors.New("not_found")
)
