package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/config"
	"github.com/smallbiznis/connectpay/internal/connect"
	"github.com/smallbiznis/connectpay/internal/invoice"
	"github.com/smallbiznis/connectpay/internal/migration"
	"github.com/smallbiznis/connectpay/internal/notification"
	obsmetrics "github.com/smallbiznis/connectpay/internal/observability/metrics"
	"github.com/smallbiznis/connectpay/internal/organization"
	"github.com/smallbiznis/connectpay/internal/payment"
	"github.com/smallbiznis/connectpay/internal/payout"
	"github.com/smallbiznis/connectpay/internal/providers/email"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"github.com/smallbiznis/connectpay/internal/ratelimit"
	"github.com/smallbiznis/connectpay/internal/reconciliation"
	"github.com/smallbiznis/connectpay/internal/server"
	"github.com/smallbiznis/connectpay/internal/webhook"
	"github.com/smallbiznis/connectpay/pkg/db"
	"github.com/smallbiznis/connectpay/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		obsmetrics.Module,
		ratelimit.Module,

		// Providers
		stripe.Module,
		email.Module,
		notification.Module,

		// Domain modules
		organization.Module,
		invoice.Module,
		payment.Module,
		payout.Module,
		reconciliation.Module,
		connect.Module,
		webhook.Module,

		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
