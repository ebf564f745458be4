package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/events"
	"github.com/smallbiznis/commissionrail/internal/fraud/domain"
	"github.com/smallbiznis/commissionrail/internal/observability/metrics"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	payoutdomain "github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	AffiliateRepo  affiliatedomain.Repository
	CommissionRepo commissiondomain.Repository
	Commission     commissiondomain.Service
	Payouts        payoutdomain.Service
	Audit          auditdomain.Service
	Publisher      events.Publisher
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	affiliateRepo  affiliatedomain.Repository
	commissionRepo commissiondomain.Repository
	commission     commissiondomain.Service
	payouts        payoutdomain.Service
	audit          auditdomain.Service
	publisher      events.Publisher
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("fraud.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		affiliateRepo:  p.AffiliateRepo,
		commissionRepo: p.CommissionRepo,
		commission:     p.Commission,
		payouts:        p.Payouts,
		audit:          p.Audit,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
	}
}

func (s *Service) CreateAlert(ctx context.Context, req domain.CreateAlertRequest) (domain.FraudAlert, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.FraudAlert{}, domain.ErrInvalidTenant
	}
	alertType := strings.ToLower(strings.TrimSpace(req.AlertType))
	if alertType == "" {
		return domain.FraudAlert{}, domain.ErrInvalidAlertType
	}
	severity, ok := domain.ParseSeverity(req.Severity)
	if !ok {
		return domain.FraudAlert{}, domain.ErrInvalidSeverity
	}

	affiliate, err := s.affiliateRepo.FindByID(ctx, s.db, tenantID, req.AffiliateID)
	if err != nil {
		return domain.FraudAlert{}, err
	}
	if affiliate == nil {
		return domain.FraudAlert{}, domain.ErrInvalidAffiliate
	}

	if req.CommissionEventID != nil && *req.CommissionEventID != 0 {
		event, err := s.commission.GetEvent(ctx, *req.CommissionEventID)
		if err != nil {
			if errors.Is(err, commissiondomain.ErrNotFound) {
				return domain.FraudAlert{}, domain.ErrInvalidCommission
			}
			return domain.FraudAlert{}, err
		}
		if event.AffiliateID != affiliate.ID {
			return domain.FraudAlert{}, domain.ErrInvalidCommission
		}
	}

	now := s.clock.Now()
	alert := domain.FraudAlert{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		AffiliateID: affiliate.ID,
		AlertType:   alertType,
		Severity:    severity,
		Details:     datatypes.JSONMap(req.Details),
		Status:      domain.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.CommissionEventID != nil && *req.CommissionEventID != 0 {
		eventID := *req.CommissionEventID
		alert.CommissionEventID = &eventID
	}
	if err := s.repo.Insert(ctx, s.db, &alert); err != nil {
		return domain.FraudAlert{}, err
	}
	return alert, nil
}

func (s *Service) GetAlert(ctx context.Context, id snowflake.ID) (domain.FraudAlert, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.FraudAlert{}, domain.ErrInvalidTenant
	}
	alert, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.FraudAlert{}, err
	}
	if alert == nil {
		return domain.FraudAlert{}, domain.ErrNotFound
	}
	return *alert, nil
}

func (s *Service) ListAlerts(ctx context.Context, req domain.ListAlertRequest) (domain.ListAlertResponse, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListAlertResponse{}, domain.ErrInvalidTenant
	}

	filter := domain.ListAlertFilter{AffiliateID: req.AffiliateID}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.ListAlertResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, tenantID, filter, req.Pagination)
	if err != nil {
		return domain.ListAlertResponse{}, err
	}
	items, pageInfo := pagination.Page(items, pagination.Size(req.PageSize), func(a *domain.FraudAlert) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: a.ID.String()})
		return token
	})

	alerts := make([]domain.FraudAlert, 0, len(items))
	for _, item := range items {
		alerts = append(alerts, *item)
	}
	return domain.ListAlertResponse{PageInfo: pageInfo, Alerts: alerts}, nil
}

type resolution struct {
	alert         domain.FraudAlert
	reversed      *commissiondomain.CommissionEvent
	reversedFrom  commissiondomain.Status
	released      *payoutdomain.Payout
	statusFrom    affiliatedomain.Status
	statusTo      affiliatedomain.Status
	statusChanged bool
}

func (s *Service) ResolveAlert(ctx context.Context, req domain.ResolveAlertRequest) (domain.FraudAlert, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.FraudAlert{}, domain.ErrInvalidTenant
	}
	next, ok := domain.ParseStatus(req.Status)
	if !ok {
		return domain.FraudAlert{}, domain.ErrInvalidStatus
	}

	action := domain.ActionNoAction
	if strings.TrimSpace(req.ResolutionAction) != "" {
		action, ok = domain.ParseAction(req.ResolutionAction)
		if !ok {
			return domain.FraudAlert{}, domain.ErrInvalidAction
		}
	}
	if !next.IsResolved() && action != domain.ActionNoAction {
		return domain.FraudAlert{}, domain.ErrInvalidAction
	}
	if action.RequiresConfirmedFraud() && next != domain.StatusConfirmedFraud {
		return domain.FraudAlert{}, domain.ErrActionRequiresFraud
	}
	if req.ReverseEvent && next != domain.StatusConfirmedFraud {
		return domain.FraudAlert{}, domain.ErrReverseRequiresFraud
	}

	actor := orgcontext.ActorFromContext(ctx)
	resolvedBy := actor.Type + ":" + actor.ID

	var res resolution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, tenantID, req.AlertID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if current.Status.IsResolved() {
			return domain.ErrAlreadyResolved
		}
		if !current.Status.CanTransitionTo(next) {
			return domain.ErrInvalidTransition
		}

		if req.ReverseEvent {
			if current.CommissionEventID == nil {
				return domain.ErrNoLinkedEvent
			}
			if err := s.releaseClaim(ctx, tx, tenantID, *current.CommissionEventID, current.ID, &res); err != nil {
				return err
			}
			reversed, from, err := s.commission.ReverseInTx(ctx, tx, tenantID, commissiondomain.ReverseEventRequest{
				EventID: *current.CommissionEventID,
				Reason:  "fraud_alert:" + current.ID.String(),
			})
			if err != nil {
				return err
			}
			res.reversed = &reversed
			res.reversedFrom = from
		}

		if action.RequiresConfirmedFraud() {
			if err := s.downgradeAffiliate(ctx, tx, tenantID, current, action, &res); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		alert := *current
		alert.Status = next
		alert.UpdatedAt = now
		if next.IsResolved() {
			alert.ResolutionAction = action
			alert.ResolutionNotes = strings.TrimSpace(req.Notes)
			alert.ResolvedBy = resolvedBy
			alert.ResolvedAt = &now
		}
		changed, err := s.repo.UpdateResolution(ctx, tx, &alert, current.Status)
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrConcurrentResolution
		}
		res.alert = alert

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionFraudAlertResolved,
			TargetType: "fraud_alert",
			TargetID:   alert.ID.String(),
			Metadata: map[string]any{
				"from":           string(current.Status),
				"to":             string(next),
				"action":         string(action),
				"reverse_event":  req.ReverseEvent,
				"affiliate_id":   alert.AffiliateID.String(),
				"status_changed": res.statusChanged,
			},
		})
	})
	if err != nil {
		return domain.FraudAlert{}, err
	}

	s.afterResolve(ctx, tenantID, res, action)
	return res.alert, nil
}

// releaseClaim fails the payout holding the event when that payout has not
// reached an external rail, so the event can be reversed in the same
// transaction. Claims held by processing payouts are left in place.
func (s *Service) releaseClaim(ctx context.Context, tx *gorm.DB, tenantID, eventID, alertID snowflake.ID, res *resolution) error {
	event, err := s.commissionRepo.FindByID(ctx, tx, tenantID, eventID)
	if err != nil {
		return err
	}
	if event == nil || !event.IsClaimed() || event.Status != commissiondomain.StatusApproved {
		return nil
	}

	released, err := s.payouts.ReleaseInTx(ctx, tx, tenantID, *event.PayoutID, "commission_reversed:fraud_alert:"+alertID.String())
	switch {
	case errors.Is(err, payoutdomain.ErrInvalidTransition),
		errors.Is(err, payoutdomain.ErrTerminalState),
		errors.Is(err, payoutdomain.ErrNotFound):
		return commissiondomain.ErrEventClaimed
	case err != nil:
		return err
	}
	res.released = &released
	return nil
}

// downgradeAffiliate applies a suspension or termination inside the
// resolution transaction. An affiliate already at or past the target status
// is left unchanged.
func (s *Service) downgradeAffiliate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, alert *domain.FraudAlert, action domain.Action, res *resolution) error {
	affiliate, err := s.affiliateRepo.FindByID(ctx, tx, tenantID, alert.AffiliateID)
	if err != nil {
		return err
	}
	if affiliate == nil {
		return domain.ErrInvalidAffiliate
	}

	target := affiliatedomain.StatusSuspended
	if action == domain.ActionAffiliateTerminated {
		target = affiliatedomain.StatusInactive
	}
	if affiliate.Status == target || !affiliate.Status.CanTransitionTo(target) {
		return nil
	}

	changed, err := s.affiliateRepo.UpdateStatus(ctx, tx, tenantID, affiliate.ID, affiliate.Status, target, s.clock.Now())
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrConcurrentResolution
	}
	res.statusFrom = affiliate.Status
	res.statusTo = target
	res.statusChanged = true

	return s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionAffiliateStatusChanged,
		TargetType: "affiliate",
		TargetID:   affiliate.ID.String(),
		Metadata: map[string]any{
			"from":           string(affiliate.Status),
			"to":             string(target),
			"fraud_alert_id": alert.ID.String(),
		},
	})
}

func (s *Service) afterResolve(ctx context.Context, tenantID snowflake.ID, res resolution, action domain.Action) {
	s.metrics.RecordFraudResolution(ctx, string(res.alert.Status), string(action))

	if res.released != nil {
		s.payouts.NotifyFailed(ctx, *res.released)
	}
	if res.reversed != nil {
		s.commission.NotifyReversed(ctx, *res.reversed, res.reversedFrom)
	}
	if res.statusChanged {
		events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
			Type:       events.TypeAffiliateStatusChange,
			TenantID:   tenantID,
			SubjectID:  res.alert.AffiliateID,
			OccurredAt: res.alert.UpdatedAt,
			Data: map[string]any{
				"from":           res.statusFrom,
				"to":             res.statusTo,
				"fraud_alert_id": res.alert.ID.String(),
			},
		})
	}
	if res.alert.Status.IsResolved() {
		events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
			Type:       events.TypeFraudAlertResolved,
			TenantID:   tenantID,
			SubjectID:  res.alert.ID,
			OccurredAt: res.alert.UpdatedAt,
			Data: map[string]any{
				"status":       string(res.alert.Status),
				"action":       string(action),
				"affiliate_id": res.alert.AffiliateID.String(),
			},
		})
	}
}
