package migration

import (
	"github.com/smallbiznis/connectpay/internal/config"
	invoicedomain "github.com/smallbiznis/connectpay/internal/invoice/domain"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/connectpay/internal/payout/domain"
	webhookdomain "github.com/smallbiznis/connectpay/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite has no migrate driver wired; let gorm derive the
			// schema from the models for local and test databases.
			return conn.AutoMigrate(
				&orgdomain.Organization{},
				&invoicedomain.Invoice{},
				&paymentdomain.Payment{},
				&payoutdomain.Payout{},
				&webhookdomain.WebhookEvent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
