package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
)

const (
	ObjectAffiliate   = "affiliate"
	ObjectProgram     = "program"
	ObjectAttribution = "attribution"
	ObjectPlan        = "plan"
	ObjectCommission  = "commission"
	ObjectEligibility = "eligibility"
	ObjectPayout      = "payout"
	ObjectFraud       = "fraud"
	ObjectAudit       = "audit"
)

const (
	ActionRead     = "read"
	ActionCreate   = "create"
	ActionUpdate   = "update"
	ActionStatus   = "status"
	ActionVerify   = "verify"
	ActionIngest   = "ingest"
	ActionAssign   = "assign"
	ActionApprove  = "approve"
	ActionReverse  = "reverse"
	ActionRequest  = "request"
	ActionComplete = "complete"
	ActionOutcome  = "outcome"
	ActionResolve  = "resolve"
)

type Service interface {
	Authorize(ctx context.Context, actor orgcontext.Actor, tenantID snowflake.ID, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
