package fraud

import (
	"github.com/smallbiznis/commissionrail/internal/fraud/repository"
	"github.com/smallbiznis/commissionrail/internal/fraud/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fraud.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
