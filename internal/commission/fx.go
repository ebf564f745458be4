package commission

import (
	"github.com/smallbiznis/commissionrail/internal/commission/repository"
	"github.com/smallbiznis/commissionrail/internal/commission/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commission.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
