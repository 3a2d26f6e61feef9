package webhook

import (
	"github.com/smallbiznis/connectpay/internal/webhook/repository"
	"github.com/smallbiznis/connectpay/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(
		repository.NewRepository,
		service.NewService,
	),
)
