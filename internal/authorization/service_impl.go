package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor orgcontext.Actor, tenantID snowflake.ID, object string, action string) error {
	subject := actorSubject(actor)
	if subject == "" {
		return ErrInvalidActor
	}
	if tenantID == 0 {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName := fmt.Sprintf("role:%s", strings.ToLower(strings.TrimSpace(actor.Role)))
	domain := fmt.Sprintf("tenant:%s", tenantID.String())
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("role", roleName),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, tenantID, subject, object, action)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping binds subject to exactly one role within domain. The role is
// taken from the verified token, so a changed claim replaces the old link.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, tenantID snowflake.ID, subject string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, nil, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: "authorization",
		TargetID:   object + ":" + action,
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"subject": subject,
		},
	}); err != nil {
		s.log.Warn("failed to audit authorization denial", zap.Error(err))
	}
}

func actorSubject(actor orgcontext.Actor) string {
	actorType := strings.TrimSpace(actor.Type)
	actorID := strings.TrimSpace(actor.ID)
	if actorType == "" || actorID == "" || strings.TrimSpace(actor.Role) == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", actorType, actorID)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", "*", "*"},

		// Finance settles money
		{"role:finance", ObjectPayout, ActionRead},
		{"role:finance", ObjectPayout, ActionRequest},
		{"role:finance", ObjectPayout, ActionComplete},
		{"role:finance", ObjectEligibility, ActionRead},
		{"role:finance", ObjectCommission, ActionRead},
		{"role:finance", ObjectAffiliate, ActionRead},

		// Reviewer works the commission and fraud queues
		{"role:reviewer", ObjectCommission, ActionRead},
		{"role:reviewer", ObjectCommission, ActionApprove},
		{"role:reviewer", ObjectCommission, ActionReverse},
		{"role:reviewer", ObjectFraud, ActionRead},
		{"role:reviewer", ObjectFraud, ActionResolve},
		{"role:reviewer", ObjectAffiliate, ActionRead},
		{"role:reviewer", ObjectAffiliate, ActionStatus},

		// System integrations
		{"role:system", ObjectCommission, ActionCreate},
		{"role:system", ObjectAttribution, ActionIngest},
		{"role:system", ObjectFraud, ActionCreate},
		{"role:system", ObjectPayout, ActionOutcome},

		// Affiliate self-service, scoped to its own affiliate by the handler
		{"role:affiliate", ObjectEligibility, ActionRead},
		{"role:affiliate", ObjectPayout, ActionRequest},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
