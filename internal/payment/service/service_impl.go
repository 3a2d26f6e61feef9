package service

import (
	"context"
	"math"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/config"
	"github.com/smallbiznis/connectpay/internal/fees"
	invoicedomain "github.com/smallbiznis/connectpay/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/connectpay/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Fees       *config.FeeScheduleHolder
	Orgs       orgdomain.Repository
	Invoices   invoicedomain.Repository
	Repo       paymentdomain.Repository
	Processor  paymentdomain.Processor
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	fees       *config.FeeScheduleHolder
	orgs       orgdomain.Repository
	invoices   invoicedomain.Repository
	repo       paymentdomain.Repository
	processor  paymentdomain.Processor
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		fees:       p.Fees,
		orgs:       p.Orgs,
		invoices:   p.Invoices,
		repo:       p.Repo,
		processor:  p.Processor,
		obsMetrics: p.ObsMetrics,
	}
}

type CreatePaymentRequest struct {
	OrgID     snowflake.ID
	Amount    float64
	InvoiceID *snowflake.ID
	Metadata  map[string]string
}

type CreatePaymentResponse struct {
	PaymentID    snowflake.ID   `json:"payment_id"`
	ClientSecret string         `json:"client_secret"`
	FeeBreakdown fees.Breakdown `json:"fee_breakdown"`
}

// CreatePayment validates the requested amount against the invoice of
// record, applies the platform fee and creates a destination charge on the
// organization's connected account.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	org, err := s.orgs.Get(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if !org.IsComplete() || org.ConnectAccountID == "" {
		return nil, orgdomain.ErrNotReady
	}
	if req.Amount < fees.MinimumPaymentAmount {
		return nil, fees.ErrBelowMinimum
	}

	if req.InvoiceID != nil {
		if err := s.validateInvoice(ctx, req); err != nil {
			return nil, err
		}
	}

	schedule := s.fees.Current()
	pct := org.PlatformFeePercentage
	fixed := org.PlatformFeeFixed
	if pct == 0 && fixed == 0 {
		pct = schedule.PlatformFeePercentage
		fixed = schedule.PlatformFeeFixed
	}

	breakdown, err := fees.PlatformFee(req.Amount, pct, fixed)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{
		"organization_id": org.ID.String(),
		"product_context": org.ProductContext,
	}
	if req.InvoiceID != nil {
		metadata["invoice_id"] = req.InvoiceID.String()
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		Amount:         fees.ToCents(req.Amount),
		Currency:       org.Currency,
		ApplicationFee: fees.ToCents(breakdown.FeeAmount),
		Destination:    org.ConnectAccountID,
		Metadata:       metadata,
		IdempotencyKey: "pi:" + uuid.NewString(),
	})
	if err != nil {
		s.countPayment("processor_error")
		s.log.Error("create payment intent failed",
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	payment := paymentdomain.Payment{
		ID:               s.genID.Generate(),
		OrgID:            org.ID,
		InvoiceID:        req.InvoiceID,
		PaymentIntentID:  intent.ID,
		Amount:           fees.ToCents(req.Amount),
		ApplicationFee:   fees.ToCents(breakdown.FeeAmount),
		Currency:         org.Currency,
		Status:           paymentdomain.StatusPending,
		ConnectAccountID: org.ConnectAccountID,
		CreatedAt:        s.clock.Now(),
		UpdatedAt:        s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, &payment); err != nil {
		return nil, err
	}

	s.countPayment("created")
	s.log.Info("payment created",
		zap.String("org_id", org.ID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.String("amount", strconv.FormatInt(payment.Amount, 10)),
		zap.Float64("platform_fee", breakdown.FeeAmount),
	)

	return &CreatePaymentResponse{
		PaymentID:    payment.ID,
		ClientSecret: intent.ClientSecret,
		FeeBreakdown: breakdown,
	}, nil
}

// validateInvoice guards invoice-bound payments against caller-supplied
// amounts that disagree with the invoice of record.
func (s *Service) validateInvoice(ctx context.Context, req CreatePaymentRequest) error {
	invoice, err := s.invoices.Get(ctx, *req.InvoiceID)
	if err != nil {
		return err
	}
	if invoice.OrgID != req.OrgID {
		return paymentdomain.ErrOrgMismatch
	}
	if invoice.Status == invoicedomain.StatusPaid {
		return paymentdomain.ErrAlreadyPaid
	}
	due := fees.FromCents(invoice.AmountDue())
	if math.Abs(req.Amount-due) > 0.01 {
		return paymentdomain.ErrAmountMismatch
	}
	return nil
}

func (s *Service) GetPayment(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, orgID snowflake.ID) ([]paymentdomain.Payment, error) {
	return s.repo.List(ctx, orgID)
}

func (s *Service) countPayment(outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.PaymentsCreated.WithLabelValues(outcome).Inc()
}
