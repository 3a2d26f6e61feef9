package reconciliation

import (
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"github.com/smallbiznis/connectpay/internal/reconciliation/domain"
	"github.com/smallbiznis/connectpay/internal/reconciliation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconciliation",
	fx.Provide(
		func(c *stripe.Client) domain.Processor { return c },
		service.NewService,
	),
)
