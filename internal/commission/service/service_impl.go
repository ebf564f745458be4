package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	auditdomain "github.com/smallbiznis/commissionrail/internal/audit/domain"
	"github.com/smallbiznis/commissionrail/internal/clock"
	"github.com/smallbiznis/commissionrail/internal/commission/domain"
	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/events"
	"github.com/smallbiznis/commissionrail/internal/observability/metrics"
	"github.com/smallbiznis/commissionrail/internal/orgcontext"
	"github.com/smallbiznis/commissionrail/pkg/db"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const autoApprover = "system:auto_approve"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Config        config.Config
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
	Audit         auditdomain.Service
	Publisher     events.Publisher
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	cfg           config.Config
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
	audit         auditdomain.Service
	publisher     events.Publisher
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("commission.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		cfg:           p.Config,
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
		audit:         p.Audit,
		publisher:     p.Publisher,
		metrics:       p.Metrics,
	}
}

// CreateEvent records a conversion as a pending commission, or approved when
// the tenant program auto-approves. A repeated source reference returns the
// existing event unchanged.
func (s *Service) CreateEvent(ctx context.Context, req domain.CreateEventRequest) (domain.CommissionEvent, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.CommissionEvent{}, domain.ErrInvalidTenant
	}
	if req.AffiliateID == 0 {
		return domain.CommissionEvent{}, domain.ErrInvalidAffiliate
	}
	if req.CommissionAmountCents <= 0 || req.EventAmountCents < 0 {
		return domain.CommissionEvent{}, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return domain.CommissionEvent{}, domain.ErrInvalidCurrency
	}
	if req.OccurredAt.IsZero() {
		return domain.CommissionEvent{}, domain.ErrInvalidOccurredAt
	}

	var sourceRef *string
	if ref := strings.TrimSpace(req.SourceReference); ref != "" {
		sourceRef = &ref
		existing, err := s.repo.FindBySourceReference(ctx, s.db, tenantID, ref)
		if err != nil {
			return domain.CommissionEvent{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	affiliate, err := s.affiliateRepo.FindByID(ctx, s.db, tenantID, req.AffiliateID)
	if err != nil {
		return domain.CommissionEvent{}, err
	}
	if affiliate == nil {
		return domain.CommissionEvent{}, domain.ErrInvalidAffiliate
	}
	program, err := s.affiliateRepo.FindProgram(ctx, s.db, tenantID)
	if err != nil {
		return domain.CommissionEvent{}, err
	}
	if currency != affiliatedomain.SettlementCurrency(program, s.cfg.DefaultCurrency) {
		return domain.CommissionEvent{}, domain.ErrCurrencyMismatch
	}

	now := s.clock.Now()
	event := domain.CommissionEvent{
		ID:                    s.genID.Generate(),
		TenantID:              tenantID,
		AffiliateID:           affiliate.ID,
		SourceReference:       sourceRef,
		Currency:              currency,
		EventAmountCents:      req.EventAmountCents,
		CommissionAmountCents: req.CommissionAmountCents,
		Status:                domain.StatusPending,
		OccurredAt:            req.OccurredAt.UTC(),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if program != nil && program.AutoApprove {
		if err := event.Approve(autoApprover, now); err != nil {
			return domain.CommissionEvent{}, err
		}
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		if sourceRef != nil && db.IsDuplicateKeyErr(err) {
			existing, findErr := s.repo.FindBySourceReference(ctx, s.db, tenantID, *sourceRef)
			if findErr == nil && existing != nil {
				return *existing, nil
			}
		}
		return domain.CommissionEvent{}, err
	}

	s.metrics.RecordCommissionTransition(ctx, "", string(event.Status))
	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypeCommissionCreated,
		TenantID:   tenantID,
		SubjectID:  event.ID,
		OccurredAt: now,
		Data: map[string]any{
			"affiliate_id":            event.AffiliateID.String(),
			"commission_amount_cents": event.CommissionAmountCents,
			"status":                  string(event.Status),
		},
	})
	return event, nil
}

func (s *Service) ApproveEvent(ctx context.Context, eventID snowflake.ID) (domain.CommissionEvent, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.CommissionEvent{}, domain.ErrInvalidTenant
	}
	actor := orgcontext.ActorFromContext(ctx)

	var event domain.CommissionEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, tenantID, eventID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrNotFound
		}
		event = *found

		from := event.Status
		if err := event.Approve(actor.Type+":"+actor.ID, s.clock.Now()); err != nil {
			return err
		}
		changed, err := s.repo.UpdateLifecycle(ctx, tx, &event, from)
		if err != nil {
			return err
		}
		if !changed {
			return domain.ErrConcurrentUpdate
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     auditdomain.ActionCommissionApproved,
			TargetType: "commission_event",
			TargetID:   event.ID.String(),
			Metadata:   map[string]any{"approved_by": event.ApprovedBy},
		})
	})
	if err != nil {
		return domain.CommissionEvent{}, err
	}

	s.metrics.RecordCommissionTransition(ctx, string(domain.StatusPending), string(domain.StatusApproved))
	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypeCommissionApproved,
		TenantID:   tenantID,
		SubjectID:  event.ID,
		OccurredAt: event.UpdatedAt,
		Data:       map[string]any{"affiliate_id": event.AffiliateID.String()},
	})
	return event, nil
}

func (s *Service) ReverseEvent(ctx context.Context, req domain.ReverseEventRequest) (domain.CommissionEvent, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.CommissionEvent{}, domain.ErrInvalidTenant
	}

	var (
		event domain.CommissionEvent
		from  domain.Status
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, tenantID, req.EventID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.ErrNotFound
		}
		from = found.Status
		event, err = s.reverse(ctx, tx, tenantID, *found, req.Reason)
		return err
	})
	if err != nil {
		return domain.CommissionEvent{}, err
	}

	s.NotifyReversed(ctx, event, from)
	return event, nil
}

func (s *Service) ReverseInTx(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, req domain.ReverseEventRequest) (domain.CommissionEvent, domain.Status, error) {
	found, err := s.repo.FindByID(ctx, tx, tenantID, req.EventID)
	if err != nil {
		return domain.CommissionEvent{}, "", err
	}
	if found == nil {
		return domain.CommissionEvent{}, "", domain.ErrNotFound
	}
	event, err := s.reverse(ctx, tx, tenantID, *found, req.Reason)
	if err != nil {
		return domain.CommissionEvent{}, "", err
	}
	return event, found.Status, nil
}

func (s *Service) NotifyReversed(ctx context.Context, event domain.CommissionEvent, from domain.Status) {
	s.metrics.RecordCommissionTransition(ctx, string(from), string(domain.StatusReversed))
	events.PublishBestEffort(ctx, s.publisher, s.log, events.Event{
		Type:       events.TypeCommissionReversed,
		TenantID:   event.TenantID,
		SubjectID:  event.ID,
		OccurredAt: event.UpdatedAt,
		Data: map[string]any{
			"affiliate_id": event.AffiliateID.String(),
			"reason":       event.ReversalReason,
		},
	})
}

func (s *Service) reverse(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, event domain.CommissionEvent, reason string) (domain.CommissionEvent, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.CommissionEvent{}, domain.ErrInvalidReason
	}

	from := event.Status
	if err := event.Reverse(reason, s.clock.Now()); err != nil {
		return domain.CommissionEvent{}, err
	}
	changed, err := s.repo.UpdateLifecycle(ctx, tx, &event, from)
	if err != nil {
		return domain.CommissionEvent{}, err
	}
	if !changed {
		// Claimed between read and write.
		return domain.CommissionEvent{}, domain.ErrEventClaimed
	}
	err = s.audit.Record(ctx, tx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     auditdomain.ActionCommissionReversed,
		TargetType: "commission_event",
		TargetID:   event.ID.String(),
		Metadata: map[string]any{
			"from":   string(from),
			"reason": reason,
		},
	})
	if err != nil {
		return domain.CommissionEvent{}, err
	}
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID snowflake.ID) (domain.CommissionEvent, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.CommissionEvent{}, domain.ErrInvalidTenant
	}
	event, err := s.repo.FindByID(ctx, s.db, tenantID, eventID)
	if err != nil {
		return domain.CommissionEvent{}, err
	}
	if event == nil {
		return domain.CommissionEvent{}, domain.ErrNotFound
	}
	return *event, nil
}

func (s *Service) ListEvents(ctx context.Context, req domain.ListEventRequest) (domain.ListEventResponse, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListEventResponse{}, domain.ErrInvalidTenant
	}

	filter := domain.ListEventFilter{
		AffiliateID: req.AffiliateID,
		PayoutID:    req.PayoutID,
		Claimed:     req.Claimed,
	}
	if strings.TrimSpace(req.Status) != "" {
		status, ok := domain.ParseStatus(req.Status)
		if !ok {
			return domain.ListEventResponse{}, domain.ErrInvalidStatus
		}
		filter.Status = status
	}

	items, err := s.repo.List(ctx, s.db, tenantID, filter, req.Pagination)
	if err != nil {
		return domain.ListEventResponse{}, err
	}
	items, pageInfo := pagination.Page(items, pagination.Size(req.PageSize), func(e *domain.CommissionEvent) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: e.ID.String()})
		return token
	})

	out := make([]domain.CommissionEvent, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListEventResponse{PageInfo: pageInfo, Events: out}, nil
}

func (s *Service) Balance(ctx context.Context, affiliateID snowflake.ID) (domain.Balance, error) {
	tenantID, ok := orgcontext.TenantIDFromContext(ctx)
	if !ok {
		return domain.Balance{}, domain.ErrInvalidTenant
	}
	return s.repo.Balance(ctx, s.db, tenantID, affiliateID)
}
