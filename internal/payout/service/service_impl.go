package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	commissiondomain "github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/config"
	eligibilitydomain "github.com/smallbiznis/commissionrail/internal/eligibility/domain"
	"github.com/smallbiznis/commissionrail/internal/events"
	"github.com/smallbiznis/commissionrail/internal/locking"
	"github.com/smallbiznis/commissionrail/internal/observability/logger"
	"github.com/smallbiznis/commissionrail/internal/observability/metrics"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
	"github.com/smallbiznis/commissionrail/internal/payout/rails"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultLockTTL = 30 * time.Second

var (
	completableStatuses = []domain.Status{domain.StatusAwaitingApproval, domain.StatusPending}
	rejectableStatuses  = []domain.Status{domain.StatusAwaitingApproval, domain.StatusPending}
	processingStatuses  = []domain.Status{domain.StatusProcessing}
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         config.Config
	PayoutCfg      *config.PayoutConfigHolder
	Repo           domain.Repository
	CommissionRepo commissiondomain.Repository
	AffiliateRepo  affiliatedomain.Repository
	Eligibility    eligibilitydomain.Service
	Rails          *rails.Registry
	Locker         *locking.Locker `optional:"true"`
	Audit          auditdomain.Service
	Publisher      events.Publisher
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	cfg            config.Config
	payoutCfg      *config.PayoutConfigHolder
	repo           domain.Repository
	commissionRepo commissiondomain.Repository
	affiliateRepo  affiliatedomain.Repository
	eligibility    eligibilitydomain.Service
	rails          *rails.Registry
	locker         *locking.Locker
	audit          auditdomain.Service
	publisher      events.Publisher
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payout.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		cfg:            p.Config,
		payoutCfg:      p.PayoutCfg,
		repo:           p.Repo,
		commissionRepo: p.CommissionRepo,
		affiliateRepo:  p.AffiliateRepo,
		eligibility:    p.Eligibility,
		rails:          p.Rails,
		locker:         p.Locker,
		audit:          p.Audit,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
	}
}

// RequestPayout validates, claims, then dispatches. A failure after the claim
// but before the rail accepts fails the payout and releases its events. Once
// the rail has accepted, the claim is never released.
func (s *Service) RequestPayout(ctx context.Context, req domain.RequestPayoutRequest) (result domain.Payout, err error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Payout{}, domain.ErrInvalidTenant
	}
	methodType, ok := affiliatedomain.ParseMethodType(req.MethodType)
	if !ok {
		return domain.Payout{}, domain.NewError(domain.CodeValidation, "invalid_method_type")
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("affiliate_id", req.AffiliateID.String()),
		zap.String("method_type", string(methodType)),
		zap.Int64("requested_amount_cents", req.AmountCents),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(domain.CodeOf(err))
			log.Warn("payout request rejected",
				zap.String("payout_id", result.ID.String()),
				zap.Error(err),
			)
		}
		s.metrics.RecordPayoutRequest(ctx, string(methodType), outcome)
	}()

	if req.AffiliateID == 0 {
		return domain.Payout{}, domain.NewError(domain.CodeValidation, "affiliate_id_required")
	}
	if req.AmountCents <= 0 {
		return domain.Payout{}, domain.NewError(domain.CodeValidation, "amount_must_be_positive")
	}

	if err := s.checkEligibility(ctx, req); err != nil {
		return domain.Payout{}, err
	}

	method, err := s.affiliateRepo.FindVerifiedPayoutMethod(ctx, s.db, tenantID, req.AffiliateID, methodType)
	if err != nil {
		return domain.Payout{}, domain.WrapError(domain.CodeInternal, "payout_method_lookup_failed", err)
	}
	if method == nil {
		return domain.Payout{}, domain.NewError(domain.CodeNoVerifiedMethod, fmt.Sprintf("no_verified_%s_method", methodType))
	}

	release, err := s.acquireLock(ctx, tenantID, req.AffiliateID, log)
	if err != nil {
		return domain.Payout{}, err
	}
	defer release()

	payout, err := s.allocate(ctx, tenantID, req.AmountCents, *method)
	if err != nil {
		return domain.Payout{}, err
	}
	log = log.With(zap.String("payout_id", payout.ID.String()))

	railAccepted := false
	defer func() {
		if r := recover(); r != nil {
			if railAccepted {
				log.Error("panic after rail accepted, payout left processing", zap.Any("panic", r), zap.Stack("stack"))
				result = payout
				err = domain.NewError(domain.CodeInternal, "internal_error")
				return
			}
			log.Error("panic after claim, compensating", zap.Any("panic", r), zap.Stack("stack"))
			failed, compErr := s.compensate(ctx, payout, "internal_error")
			if compErr != nil {
				log.Error("compensation failed", zap.Error(compErr))
			}
			result = failed
			err = domain.NewError(domain.CodeInternal, "internal_error")
		}
	}()

	dispatched, dispatchErr := s.dispatch(ctx, payout, method.Destination)
	if dispatchErr != nil {
		reason := failureReason(dispatchErr)
		failed, compErr := s.compensate(ctx, payout, reason)
		if compErr != nil {
			log.Error("compensation failed", zap.Error(compErr))
			return payout, domain.WrapError(domain.CodeInternal, "compensation_failed", compErr)
		}
		return failed, domain.WrapError(domain.CodeRailFailure, reason, dispatchErr)
	}

	railAccepted = true

	// Money may already be moving; the record must outlive the caller.
	recorded, err := s.recordDispatch(context.WithoutCancel(ctx), payout, dispatched)
	if err != nil {
		log.Error("failed to record accepted dispatch, needs reconciliation",
			zap.String("external_reference", dispatched.ExternalReference),
			zap.String("rail_status", string(dispatched.Status)),
			zap.Error(err),
		)
		return payout, domain.WrapError(domain.CodeInternal, "record_dispatch_failed", err)
	}

	log.Info("payout dispatched",
		zap.String("status", string(recorded.Status)),
		zap.String("external_reference", recorded.ExternalReference),
		zap.Int64("amount_cents", recorded.AmountCents),
	)
	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypePayoutRequested,
		TenantID:   tenantID,
		SubjectID:  recorded.ID,
		OccurredAt: recorded.UpdatedAt,
		Data: map[string]any{
			"affiliate_id":     recorded.AffiliateID.String(),
			"status":           string(recorded.Status),
			"method_type":      string(recorded.MethodType),
			"amount_cents":     recorded.AmountCents,
			"net_amount_cents": recorded.NetAmountCents,
		},
	})
	return recorded, nil
}

// checkEligibility maps the advisory read onto request codes. Status is
// checked before balance so suspended affiliates always read INELIGIBLE.
func (s *Service) checkEligibility(ctx context.Context, req domain.RequestPayoutRequest) error {
	result, err := s.eligibility.Evaluate(ctx, req.AffiliateID)
	if err != nil {
		if errors.Is(err, eligibilitydomain.ErrNotFound) {
			return domain.NewError(domain.CodeValidation, "affiliate_not_found")
		}
		return domain.WrapError(domain.CodeInternal, "eligibility_failed", err)
	}

	switch {
	case result.Reason == eligibilitydomain.ReasonAffiliateNotActive:
		return domain.NewError(domain.CodeIneligible, result.Reason)
	case req.AmountCents > result.AvailableAmountCents:
		return domain.NewError(domain.CodeInsufficientBalance, "requested_amount_exceeds_available")
	case result.Reason == eligibilitydomain.ReasonNoPayoutMethod:
		return domain.NewError(domain.CodeNoVerifiedMethod, result.Reason)
	case !result.Eligible:
		return domain.NewError(domain.CodeIneligible, result.Reason)
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context, tenantID, affiliateID snowflake.ID, log *zap.Logger) (func(), error) {
	ttl := s.cfg.PayoutLockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	key := locking.PayoutKey(tenantID.String(), affiliateID.String())
	token, acquired, err := s.locker.TryLock(ctx, key, ttl)
	if err != nil {
		// Advisory only; the claim transaction stays authoritative.
		log.Warn("payout lock unavailable", zap.Error(err))
		return func() {}, nil
	}
	if !acquired {
		return nil, domain.NewError(domain.CodeInsufficientBalance, "payout_in_progress")
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn("failed to release payout lock", zap.Error(err))
		}
	}, nil
}

func (s *Service) recordDispatch(ctx context.Context, payout domain.Payout, dispatched domain.DispatchResult) (domain.Payout, error) {
	payout.Status = dispatched.Status
	payout.ExternalReference = dispatched.ExternalReference
	payout.RailResponse = datatypes.JSONMap(dispatched.Metadata)
	payout.UpdatedAt = s.clock.Now()

	changed, err := s.repo.RecordDispatch(ctx, s.db, &payout)
	if err != nil {
		return domain.Payout{}, err
	}
	if !changed {
		current, err := s.repo.FindByID(ctx, s.db, payout.TenantID, payout.ID)
		if err != nil {
			return domain.Payout{}, err
		}
		if current == nil {
			return domain.Payout{}, domain.ErrNotFound
		}
		return *current, nil
	}
	return payout, nil
}

// compensate fails a processing payout and releases its events. It runs
// detached from the caller's cancellation.
func (s *Service) compensate(ctx context.Context, payout domain.Payout, reason string) (domain.Payout, error) {
	ctx = context.WithoutCancel(ctx)
	failed, err := s.failPayout(ctx, payout.TenantID, payout.ID, reason, processingStatuses)
	if err != nil {
		return payout, err
	}
	s.metrics.RecordCompensation(ctx, string(payout.MethodType), compensationLabel(reason))
	return failed, nil
}

func compensationLabel(reason string) string {
	switch {
	case reason == "rail_timeout", reason == "internal_error":
		return reason
	default:
		return "rail_error"
	}
}

// failPayout marks the payout failed and clears every claim in one
// transaction, then notifies.
func (s *Service) failPayout(ctx context.Context, tenantID, payoutID snowflake.ID, reason string, from []domain.Status) (domain.Payout, error) {
	var (
		payout   domain.Payout
		released int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, released, err = s.failInTx(ctx, tx, tenantID, payoutID, reason, from)
		return err
	})
	if err != nil {
		return domain.Payout{}, err
	}
	s.notifyFailed(ctx, payout, released)
	return payout, nil
}

// ReleaseInTx fails a payout that has not reached an external rail and frees
// its events inside the caller's transaction. A processing payout returns
// ErrInvalidTransition.
func (s *Service) ReleaseInTx(ctx context.Context, tx *gorm.DB, tenantID, payoutID snowflake.ID, reason string) (domain.Payout, error) {
	payout, _, err := s.failInTx(ctx, tx, tenantID, payoutID, reason, rejectableStatuses)
	return payout, err
}

func (s *Service) NotifyFailed(ctx context.Context, payout domain.Payout) {
	s.notifyFailed(ctx, payout, -1)
}

func (s *Service) failInTx(ctx context.Context, tx *gorm.DB, tenantID, payoutID snowflake.ID, reason string, from []domain.Status) (domain.Payout, int64, error) {
	current, err := s.repo.FindByID(ctx, tx, tenantID, payoutID)
	if err != nil {
		return domain.Payout{}, 0, err
	}
	if current == nil {
		return domain.Payout{}, 0, domain.ErrNotFound
	}
	if err := checkTransition(current.Status, domain.StatusFailed, from); err != nil {
		return domain.Payout{}, 0, err
	}

	now := s.clock.Now()
	changed, err := s.repo.MarkFailed(ctx, tx, tenantID, payoutID, reason, from, now)
	if err != nil {
		return domain.Payout{}, 0, err
	}
	if !changed {
		return domain.Payout{}, 0, domain.ErrInvalidTransition
	}
	released, err := s.commissionRepo.Unclaim(ctx, tx, tenantID, payoutID, now)
	if err != nil {
		return domain.Payout{}, 0, err
	}

	payout := *current
	payout.Status = domain.StatusFailed
	payout.FailureReason = reason
	payout.FailedAt = &now
	payout.UpdatedAt = now

	err = s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionPayoutFailed,
		TargetType: "payout",
		TargetID:   payoutID.String(),
		Metadata: map[string]any{
			"from":            string(current.Status),
			"reason":          reason,
			"released_events": released,
		},
	})
	if err != nil {
		return domain.Payout{}, 0, err
	}
	return payout, released, nil
}

// notifyFailed logs and publishes a committed failure. released is -1 when
// the count is unknown to the caller.
func (s *Service) notifyFailed(ctx context.Context, payout domain.Payout, released int64) {
	fields := []zap.Field{
		zap.String("tenant_id", payout.TenantID.String()),
		zap.String("affiliate_id", payout.AffiliateID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("reason", payout.FailureReason),
	}
	if released >= 0 {
		fields = append(fields, zap.Int64("released_events", released))
	}
	s.log.Info("payout failed", fields...)
	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypePayoutFailed,
		TenantID:   payout.TenantID,
		SubjectID:  payout.ID,
		OccurredAt: payout.UpdatedAt,
		Data: map[string]any{
			"affiliate_id": payout.AffiliateID.String(),
			"reason":       payout.FailureReason,
		},
	})
}

// completePayout settles the payout and moves every claimed event to paid.
func (s *Service) completePayout(ctx context.Context, tenantID, payoutID snowflake.ID, reference, approvedBy string, from []domain.Status) (domain.Payout, error) {
	var (
		payout domain.Payout
		paid   int64
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, tenantID, payoutID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if err := checkTransition(current.Status, domain.StatusCompleted, from); err != nil {
			return err
		}
		if reference == "" {
			reference = current.ExternalReference
		}

		now := s.clock.Now()
		changed, err := s.repo.MarkCompleted(ctx, tx, tenantID, payoutID, reference, approvedBy, from, now)
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrInvalidTransition
		}
		paid, err = s.commissionRepo.MarkPaid(ctx, tx, tenantID, payoutID, now)
		if err != nil {
			return err
		}

		payout = *current
		payout.Status = domain.StatusCompleted
		payout.ExternalReference = reference
		payout.ApprovedBy = approvedBy
		payout.CompletedAt = &now
		payout.UpdatedAt = now

		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionPayoutCompleted,
			TargetType: "payout",
			TargetID:   payoutID.String(),
			Metadata: map[string]any{
				"from":               string(current.Status),
				"external_reference": reference,
				"approved_by":        approvedBy,
				"paid_events":        paid,
			},
		})
	})
	if err != nil {
		return domain.Payout{}, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(commissiondomain.StatusApproved), string(commissiondomain.StatusPaid))
	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypePayoutCompleted,
		TenantID:   tenantID,
		SubjectID:  payoutID,
		OccurredAt: payout.UpdatedAt,
		Data: map[string]any{
			"affiliate_id":       payout.AffiliateID.String(),
			"external_reference": reference,
			"paid_events":        paid,
		},
	})
	return payout, nil
}

func checkTransition(current, next domain.Status, from []domain.Status) error {
	if current.IsTerminal() {
		return domain.ErrTerminalState
	}
	if !current.CanTransitionTo(next) {
		return domain.ErrInvalidTransition
	}
	for _, allowed := range from {
		if current == allowed {
			return nil
		}
	}
	return domain.ErrInvalidTransition
}

func (s *Service) CompletePayout(ctx context.Context, req domain.CompletePayoutRequest) (domain.Payout, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Payout{}, domain.ErrInvalidTenant
	}
	reference := strings.TrimSpace(req.ReferenceNumber)
	if reference == "" {
		return domain.Payout{}, domain.ErrInvalidReference
	}
	approver := strings.TrimSpace(req.ApproverID)
	if approver == "" {
		actor := orgcontext.ActorFromContext(ctx)
		approver = actor.Type + ":" + actor.ID
	}
	return s.completePayout(ctx, tenantID, req.PayoutID, reference, approver, completableStatuses)
}

func (s *Service) RejectPayout(ctx context.Context, req domain.RejectPayoutRequest) (domain.Payout, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Payout{}, domain.ErrInvalidTenant
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Payout{}, domain.ErrInvalidReason
	}
	actor := orgcontext.ActorFromContext(ctx)
	return s.failPayout(ctx, tenantID, req.PayoutID, "rejected by "+actor.Type+":"+actor.ID+": "+reason, rejectableStatuses)
}

// ReportRailOutcome settles a processing payout once the rail reports back.
func (s *Service) ReportRailOutcome(ctx context.Context, req domain.RailOutcomeRequest) (domain.Payout, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Payout{}, domain.ErrInvalidTenant
	}
	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		return domain.Payout{}, domain.ErrInvalidStatus
	}

	switch status {
	case domain.StatusCompleted:
		actor := orgcontext.ActorFromContext(ctx)
		return s.completePayout(ctx, tenantID, req.PayoutID, strings.TrimSpace(req.ExternalReference), actor.Type+":"+actor.ID, processingStatuses)
	case domain.StatusFailed:
		reason := strings.TrimSpace(req.FailureReason)
		if reason == "" {
			reason = "rail_reported_failure"
		}
		return s.failPayout(ctx, tenantID, req.PayoutID, reason, processingStatuses)
	default:
		return domain.Payout{}, domain.ErrInvalidStatus
	}
}

func (s *Service) GetPayout(ctx context.Context, id snowflake.ID) (domain.Payout, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Payout{}, domain.ErrInvalidTenant
	}
	payout, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Payout{}, err
	}
	if payout == nil {
		return domain.Payout{}, domain.ErrNotFound
	}
	return *payout, nil
}

func (s *Service) ListPayouts(ctx context.Context, req domain.ListPayoutRequest) (domain.ListPayoutResponse, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListPayoutResponse{}, domain.ErrInvalidTenant
	}

	filter := domain.ListPayoutFilter{AffiliateID: req.AffiliateID}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.ListPayoutResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, tenantID, filter, req.Pagination)
	if err != nil {
		return domain.ListPayoutResponse{}, err
	}
	items, pageInfo := pagination.Page(items, pagination.Size(req.PageSize), func(p *domain.Payout) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: p.ID.String()})
		return token
	})

	payouts := make([]domain.Payout, 0, len(items))
	for _, item := range items {
		payouts = append(payouts, *item)
	}
	return domain.ListPayoutResponse{PageInfo: pageInfo, Payouts: payouts}, nil
}
