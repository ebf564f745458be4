package payout

import (
	affiliatedomain "github.com/smallbiznis/commissionrail/internal/affiliate/domain"
	"github.com/smallbiznis/commissionrail/internal/payout/rails"
	"github.com/smallbiznis/commissionrail/internal/payout/rails/manual"
	"github.com/smallbiznis/commissionrail/internal/payout/rails/paypal"
	"github.com/smallbiznis/commissionrail/internal/payout/rails/stripeconnect"
	"github.com/smallbiznis/commissionrail/internal/payout/repository"
	"github.com/smallbiznis/commissionrail/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(
		stripeconnect.New,
		paypal.New,
		manual.New,
		newRegistry,
	),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

func newRegistry(stripe *stripeconnect.Rail, pp *paypal.Rail, man *manual.Rail) *rails.Registry {
	return rails.NewRegistry(
		rails.Binding{Rail: stripe, MethodTypes: []affiliatedomain.MethodType{affiliatedomain.MethodStripeConnect}},
		rails.Binding{Rail: pp, MethodTypes: []affiliatedomain.MethodType{affiliatedomain.MethodPayPal}},
		rails.Binding{Rail: man, MethodTypes: []affiliatedomain.MethodType{
			affiliatedomain.MethodBankWire,
			affiliatedomain.MethodCheck,
			affiliatedomain.MethodManual,
		}},
	)
}
