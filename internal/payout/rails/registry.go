package rails

import (
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/internal/payout/domain"
)

// Binding attaches a rail to the method types it serves.
type Binding struct {
	Rail        domain.Rail
	MethodTypes []affiliatedomain.MethodType
}

type Registry struct {
	rails map[affiliatedomain.MethodType]domain.Rail
}

func NewRegistry(bindings ...Binding) *Registry {
	registry := &Registry{rails: map[affiliatedomain.MethodType]domain.Rail{}}
	for _, binding := range bindings {
		if binding.Rail == nil {
			continue
		}
		for _, methodType := range binding.MethodTypes {
			registry.rails[methodType] = binding.Rail
		}
	}
	return registry
}

func (r *Registry) Lookup(methodType affiliatedomain.MethodType) (domain.Rail, bool) {
	if r == nil {
		return nil, false
	}
	rail, ok := r.rails[methodType]
	return rail, ok
}
