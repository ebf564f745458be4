package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/commissionrail/internal/payout/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultRailTimeout = 15 * time.Second

var tracer = otel.Tracer("github.com/smallbiznis/commissionrail/internal/payout")

// dispatch calls the rail outside any transaction with a bounded timeout.
// A timeout is a dispatch failure even if the rail completes later.
func (s *Service) dispatch(ctx context.Context, payout domain.Payout, destination string) (domain.DispatchResult, error) {
	rail, ok := s.rails.Lookup(payout.MethodType)
	if !ok {
		return domain.DispatchResult{}, &domain.RailError{
			Rail:    string(payout.MethodType),
			Message: "no rail registered for method type",
		}
	}

	timeout := s.cfg.PayoutRailTimeout
	if timeout <= 0 {
		timeout = defaultRailTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "payout.dispatch", trace.WithAttributes(
		attribute.String("payout.id", payout.ID.String()),
		attribute.String("payout.method_type", string(payout.MethodType)),
		attribute.Int64("payout.net_amount_cents", payout.NetAmountCents),
	))
	defer span.End()

	started := time.Now()
	result, err := rail.Dispatch(ctx, domain.DispatchRequest{
		PayoutID:       payout.ID,
		TenantID:       payout.TenantID,
		AffiliateID:    payout.AffiliateID,
		MethodType:     payout.MethodType,
		Destination:    destination,
		NetAmountCents: payout.NetAmountCents,
		Currency:       payout.Currency,
	})
	if err == nil && result.Status != domain.StatusProcessing && result.Status != domain.StatusAwaitingApproval {
		err = fmt.Errorf("rail returned unexpected status %q", result.Status)
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.ObserveRailDispatch(ctx, string(payout.MethodType), outcome, time.Since(started))
	return result, err
}

// failureReason renders a rail error for storage on the payout row.
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "rail_timeout"
	}
	var railErr *domain.RailError
	if errors.As(err, &railErr) {
		return railErr.Error()
	}
	return err.Error()
}
