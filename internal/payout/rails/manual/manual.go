package manual

import (
	"context"

	"github.com/smallbiznis/commissionrail/internal/payout/domain"
)

// Rail parks wire, check and manual payouts until a reviewer completes them.
type Rail struct{}

func New() *Rail {
	return &Rail{}
}

func (r *Rail) Dispatch(_ context.Context, req domain.DispatchRequest) (domain.DispatchResult, error) {
	return domain.DispatchResult{
		Status: domain.StatusAwaitingApproval,
		Metadata: map[string]any{
			"rail":        "manual",
			"method_type": string(req.MethodType),
		},
	}, nil
}
