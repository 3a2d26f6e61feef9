// Package metrics exposes the payment domain's business event counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(New),
)

func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

type Metrics struct {
	PaymentsCreated      *prometheus.CounterVec
	PayoutsCreated       *prometheus.CounterVec
	WebhookEvents        *prometheus.CounterVec
	ReconciliationSweeps *prometheus.CounterVec
	PaymentsSwept        prometheus.Counter
	NotificationsSent    *prometheus.CounterVec
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		PaymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectpay_payments_created_total",
			Help: "Payments created, by outcome.",
		}, []string{"outcome"}),
		PayoutsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectpay_instant_payouts_total",
			Help: "Instant payouts requested, by fee model and outcome.",
		}, []string{"model", "outcome"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectpay_webhook_events_total",
			Help: "Webhook events received, by type and outcome.",
		}, []string{"type", "outcome"}),
		ReconciliationSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectpay_reconciliation_sweeps_total",
			Help: "Accumulated funds sweeps, by outcome.",
		}, []string{"outcome"}),
		PaymentsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "connectpay_reconciliation_payments_swept_total",
			Help: "Payments included in completed sweeps.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connectpay_notifications_total",
			Help: "Payee notifications dispatched, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	registry.MustRegister(
		m.PaymentsCreated,
		m.PayoutsCreated,
		m.WebhookEvents,
		m.ReconciliationSweeps,
		m.PaymentsSwept,
		m.NotificationsSent,
	)
	return m
}
