package attribution

import (
	"github.com/smallbiznis/commissionrail/internal/attribution/repository"
	"github.com/smallbiznis/commissionrail/internal/attribution/service"
	"go.uber.org/fx"
)

var Module = fx.Module("attribution.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
