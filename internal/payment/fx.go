package payment

import (
	"github.com/smallbiznis/connectpay/internal/payment/domain"
	"github.com/smallbiznis/connectpay/internal/payment/repository"
	"github.com/smallbiznis/connectpay/internal/payment/service"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.NewRepository,
		func(c *stripe.Client) domain.Processor { return c },
		service.NewService,
	),
)
