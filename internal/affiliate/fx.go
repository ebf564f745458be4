package affiliate

import (
	"github.com/smallbiznis/commissionrail/internal/affiliate/repository"
	"github.com/smallbiznis/commissionrail/internal/affiliate/service"
	"go.uber.org/fx"
)

var Module = fx.Module("affiliate.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
