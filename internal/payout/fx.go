package payout

import (
	"github.com/smallbiznis/connectpay/internal/payout/domain"
	"github.com/smallbiznis/connectpay/internal/payout/repository"
	"github.com/smallbiznis/connectpay/internal/payout/service"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("payout",
	fx.Provide(
		repository.NewRepository,
		func(c *stripe.Client) domain.Processor { return c },
		service.NewService,
	),
)
