package connect

import (
	"github.com/smallbiznis/connectpay/internal/connect/domain"
	"github.com/smallbiznis/connectpay/internal/connect/service"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("connect",
	fx.Provide(
		func(c *stripe.Client) domain.Processor { return c },
		service.NewService,
	),
)
