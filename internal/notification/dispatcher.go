// Package notification delivers best-effort payee notifications off the
// critical path. Enqueue never blocks and delivery failures are logged,
// never surfaced to the operation that triggered them.
package notification

import (
	"context"
	"fmt"

	"github.com/smallbiznis/connectpay/internal/observability/metrics"
	"github.com/smallbiznis/connectpay/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindAccountActivated = "account_activated"
	KindPayoutSucceeded  = "payout_succeeded"
)

// Notification is a single payee-facing message.
type Notification struct {
	Kind             string
	Recipient        string
	OrganizationName string
	Amount           float64
	Currency         string
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Enqueue(n Notification)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Email      email.Provider
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Dispatcher struct {
	log        *zap.Logger
	email      email.Provider
	obsMetrics *metrics.Metrics
	queue      chan Notification
	done       chan struct{}
}

func NewDispatcher(p Params) *Dispatcher {
	return &Dispatcher{
		log:        p.Log.Named("notification"),
		email:      p.Email,
		obsMetrics: p.ObsMetrics,
		queue:      make(chan Notification, 256),
		done:       make(chan struct{}),
	}
}

// Enqueue hands a notification to the background worker. A full queue drops
// the notification with a warning rather than blocking the caller.
func (d *Dispatcher) Enqueue(n Notification) {
	select {
	case d.queue <- n:
	default:
		d.log.Warn("notification queue full, dropping",
			zap.String("kind", n.Kind),
			zap.String("recipient", n.Recipient),
		)
		d.count(n.Kind, "dropped")
	}
}

func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) Stop() {
	close(d.queue)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	if n.Recipient == "" {
		d.count(n.Kind, "skipped")
		return
	}

	subject, body := render(n)
	if err := d.email.Send(context.Background(), []string{n.Recipient}, subject, body); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("kind", n.Kind),
			zap.String("recipient", n.Recipient),
			zap.Error(err),
		)
		d.count(n.Kind, "failed")
		return
	}
	d.count(n.Kind, "sent")
}

func (d *Dispatcher) count(kind, outcome string) {
	if d.obsMetrics == nil {
		return
	}
	d.obsMetrics.NotificationsSent.WithLabelValues(kind, outcome).Inc()
}

func render(n Notification) (string, string) {
	switch n.Kind {
	case KindAccountActivated:
		return "Your payment account is now active",
			fmt.Sprintf("<p>The payment account for <strong>%s</strong> has been activated. Payments will now be deposited automatically.</p>", n.OrganizationName)
	case KindPayoutSucceeded:
		return "Your instant payout is on the way",
			fmt.Sprintf("<p>An instant payout of %.2f %s for <strong>%s</strong> has been issued.</p>", n.Amount, n.Currency, n.OrganizationName)
	default:
		return "Notification", fmt.Sprintf("<p>%s</p>", n.Kind)
	}
}
