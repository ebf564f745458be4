package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"github.com/smallbiznis/commissionrail/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tenantID = snowflake.ID(9001)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		AuditSvc: testutil.NewAudit(db, testutil.NewNode(t), clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))),
	})
	return svc, db
}

func actorCtx(actor orgcontext.Actor) context.Context {
	return orgcontext.WithActor(orgcontext.WithTenantID(context.Background(), tenantID), actor)
}

func TestAuthorizeRoles(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		role    string
		object  string
		action  string
		allowed bool
	}{
		{role: "admin", object: ObjectAudit, action: ActionRead, allowed: true},
		{role: "admin", object: ObjectPayout, action: ActionComplete, allowed: true},
		{role: "finance", object: ObjectPayout, action: ActionComplete, allowed: true},
		{role: "finance", object: ObjectEligibility, action: ActionRead, allowed: true},
		{role: "finance", object: ObjectCommission, action: ActionApprove, allowed: false},
		{role: "reviewer", object: ObjectCommission, action: ActionReverse, allowed: true},
		{role: "reviewer", object: ObjectFraud, action: ActionResolve, allowed: true},
		{role: "reviewer", object: ObjectPayout, action: ActionRequest, allowed: false},
		{role: "system", object: ObjectAttribution, action: ActionIngest, allowed: true},
		{role: "system", object: ObjectPayout, action: ActionOutcome, allowed: true},
		{role: "system", object: ObjectPayout, action: ActionComplete, allowed: false},
		{role: "affiliate", object: ObjectPayout, action: ActionRequest, allowed: true},
		{role: "affiliate", object: ObjectCommission, action: ActionRead, allowed: false},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.object+":"+tc.action, func(t *testing.T) {
			actor := orgcontext.Actor{Type: orgcontext.ActorTypeUser, ID: tc.role + "-user", Role: tc.role}
			err := svc.Authorize(actorCtx(actor), actor, tenantID, tc.object, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestAuthorizeDenialIsAudited(t *testing.T) {
	svc, db := newTestService(t)
	actor := orgcontext.Actor{Type: orgcontext.ActorTypeUser, ID: "fin-1", Role: "finance"}

	err := svc.Authorize(actorCtx(actor), actor, tenantID, ObjectFraud, ActionResolve)
	require.ErrorIs(t, err, ErrForbidden)

	var logs []auditdomain.AuditLog
	require.NoError(t, db.Where("action = ?", auditdomain.ActionAuthorizationDenied).Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "fraud:resolve", logs[0].TargetID)
	assert.Equal(t, "fin-1", logs[0].ActorID)
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc, _ := newTestService(t)

	asFinance := orgcontext.Actor{Type: orgcontext.ActorTypeUser, ID: "u-7", Role: "finance"}
	require.ErrorIs(t, svc.Authorize(actorCtx(asFinance), asFinance, tenantID, ObjectCommission, ActionApprove), ErrForbidden)

	asReviewer := orgcontext.Actor{Type: orgcontext.ActorTypeUser, ID: "u-7", Role: "reviewer"}
	require.NoError(t, svc.Authorize(actorCtx(asReviewer), asReviewer, tenantID, ObjectCommission, ActionApprove))

	// The finance link was replaced, not added to.
	require.ErrorIs(t, svc.Authorize(actorCtx(asReviewer), asReviewer, tenantID, ObjectPayout, ActionComplete), ErrForbidden)
}

func TestAuthorizeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	admin := orgcontext.Actor{Type: orgcontext.ActorTypeUser, ID: "root", Role: "admin"}
	ctx := actorCtx(admin)

	assert.ErrorIs(t, svc.Authorize(ctx, orgcontext.Actor{Type: "user", ID: "x"}, tenantID, ObjectPayout, ActionRead), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, admin, 0, ObjectPayout, ActionRead), ErrInvalidTenant)
	assert.ErrorIs(t, svc.Authorize(ctx, admin, tenantID, " ", ActionRead), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, admin, tenantID, ObjectPayout, ""), ErrInvalidAction)
}
