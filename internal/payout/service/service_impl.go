package service

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/config"
	"github.com/smallbiznis/connectpay/internal/fees"
	"github.com/smallbiznis/connectpay/internal/notification"
	obsmetrics "github.com/smallbiznis/connectpay/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	payoutdomain "github.com/smallbiznis/connectpay/internal/payout/domain"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"github.com/smallbiznis/connectpay/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// payoutLockTTL bounds how long a crashed request can hold an
// organization's payout lock.
const payoutLockTTL = 30 * time.Second

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Fees       *config.FeeScheduleHolder
	Orgs       orgdomain.Repository
	Repo       payoutdomain.Repository
	Processor  payoutdomain.Processor
	Locker     ratelimit.Locker
	Notifier   notification.Notifier
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	fees       *config.FeeScheduleHolder
	orgs       orgdomain.Repository
	repo       payoutdomain.Repository
	processor  payoutdomain.Processor
	locker     ratelimit.Locker
	notifier   notification.Notifier
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		fees:       p.Fees,
		orgs:       p.Orgs,
		repo:       p.Repo,
		processor:  p.Processor,
		locker:     p.Locker,
		notifier:   p.Notifier,
		obsMetrics: p.ObsMetrics,
	}
}

type InstantPayoutRequest struct {
	OrgID       snowflake.ID
	Amount      float64
	Destination string
}

// FeeBreakdown is the fee split returned to the caller. MarkupFee is zero
// under the base model.
type FeeBreakdown struct {
	FeeModel        string  `json:"fee_model"`
	RequestedAmount float64 `json:"requested_amount"`
	MarkupFee       float64 `json:"markup_fee"`
	ProcessorFee    float64 `json:"processor_fee"`
	NetAmount       float64 `json:"net_amount"`
}

type InstantPayoutResponse struct {
	PayoutID        snowflake.ID `json:"payout_id"`
	FeeBreakdown    FeeBreakdown `json:"fee_breakdown"`
	ArrivalEstimate *time.Time   `json:"arrival_estimate,omitempty"`
}

// RequestInstantPayout checks eligibility and balance on the connected
// account, applies the fee model selected by the organization's product
// context and issues an instant payout. The per-organization lock closes
// the race between concurrent requests against the same balance.
func (s *Service) RequestInstantPayout(ctx context.Context, req InstantPayoutRequest) (*InstantPayoutResponse, error) {
	org, err := s.orgs.Get(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if !org.PayoutsEnabled || org.ConnectAccountID == "" {
		return nil, orgdomain.ErrNotReady
	}

	lockKey := "payout:" + org.ID.String()
	token, ok, err := s.locker.TryLock(ctx, lockKey, payoutLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, payoutdomain.ErrPayoutInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("payout lock release failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	balance, err := s.processor.RetrieveBalance(ctx, org.ConnectAccountID)
	if err != nil {
		s.countPayout(feeModel(org), "processor_error")
		return nil, err
	}
	if balance.InstantAvailable <= 0 {
		return nil, payoutdomain.ErrNotEligible
	}
	if balance.InstantAvailable < fees.ToCents(req.Amount) {
		return nil, payoutdomain.ErrInsufficientBalance
	}

	breakdown, err := s.computeFees(org, req.Amount)
	if err != nil {
		return nil, err
	}

	// Under the markup model the processor only ever sees the reduced
	// amount; the platform markup stays in the platform balance.
	processorAmount := req.Amount
	if breakdown.FeeModel == payoutdomain.FeeModelMarkup {
		processorAmount = fees.Round2(req.Amount - breakdown.MarkupFee)
	}

	payout, err := s.processor.CreatePayout(ctx, org.ConnectAccountID, stripe.PayoutParams{
		Amount:      fees.ToCents(processorAmount),
		Currency:    org.Currency,
		Destination: req.Destination,
		Metadata: map[string]string{
			"organization_id":  org.ID.String(),
			"fee_model":        breakdown.FeeModel,
			"requested_amount": strconv.FormatInt(fees.ToCents(req.Amount), 10),
		},
		IdempotencyKey: "po:" + uuid.NewString(),
	})
	if err != nil {
		s.countPayout(breakdown.FeeModel, "processor_error")
		s.log.Error("create instant payout failed",
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	record := payoutdomain.Payout{
		ID:                s.genID.Generate(),
		OrgID:             org.ID,
		ProcessorPayoutID: payout.ID,
		RequestedAmount:   fees.ToCents(req.Amount),
		ProcessorAmount:   fees.ToCents(processorAmount),
		MarkupFee:         fees.ToCents(breakdown.MarkupFee),
		ProcessorFee:      fees.ToCents(breakdown.ProcessorFee),
		NetAmount:         fees.ToCents(breakdown.NetAmount),
		FeeModel:          breakdown.FeeModel,
		Currency:          org.Currency,
		Status:            payout.Status,
		Destination:       payout.Destination,
		CreatedAt:         s.clock.Now(),
		UpdatedAt:         s.clock.Now(),
	}
	var arrival *time.Time
	if payout.ArrivalDate > 0 {
		at := time.Unix(payout.ArrivalDate, 0).UTC()
		arrival = &at
		record.ArrivalDate = &at
	}
	if err := s.repo.Insert(ctx, &record); err != nil {
		// The payout already went out; losing the local record is an
		// operator problem, not a caller problem.
		s.log.Error("payout record insert failed",
			zap.String("org_id", org.ID.String()),
			zap.String("processor_payout_id", payout.ID),
			zap.Error(err),
		)
	}

	s.notifier.Enqueue(notification.Notification{
		Kind:             notification.KindPayoutSucceeded,
		Recipient:        org.ContactEmail,
		OrganizationName: org.Name,
		Amount:           breakdown.NetAmount,
		Currency:         org.Currency,
	})

	s.countPayout(breakdown.FeeModel, "created")
	s.log.Info("instant payout created",
		zap.String("org_id", org.ID.String()),
		zap.String("processor_payout_id", payout.ID),
		zap.String("fee_model", breakdown.FeeModel),
		zap.Float64("requested_amount", req.Amount),
		zap.Float64("net_amount", breakdown.NetAmount),
	)

	return &InstantPayoutResponse{
		PayoutID:        record.ID,
		FeeBreakdown:    breakdown,
		ArrivalEstimate: arrival,
	}, nil
}

// computeFees selects the fee model by product context and rejects amounts
// below the model's minimum viable amount.
func (s *Service) computeFees(org *orgdomain.Organization, amount float64) (FeeBreakdown, error) {
	schedule := s.fees.Current()
	basePct := org.InstantPayoutFeePercentage
	if basePct == 0 {
		basePct = schedule.InstantPayoutFeePercentage
	}

	if org.UsesMarkupModel() {
		markupPct := org.MarkupFeePercentage
		markupFixed := org.MarkupFeeFixed
		if markupPct == 0 && markupFixed == 0 {
			markupPct = schedule.MarkupFeePercentage
			markupFixed = schedule.MarkupFeeFixed
		}
		minimum := fees.MinimumViableMarkupAmount(basePct, markupPct, markupFixed, org.Currency)
		if amount < minimum {
			return FeeBreakdown{}, fees.ErrBelowMinimum
		}
		b := fees.MarkupInstantPayoutFee(amount, markupPct, markupFixed, basePct, org.Currency)
		return FeeBreakdown{
			FeeModel:        payoutdomain.FeeModelMarkup,
			RequestedAmount: amount,
			MarkupFee:       b.MarkupFee,
			ProcessorFee:    b.ProcessorFee,
			NetAmount:       b.PayoutAmount,
		}, nil
	}

	minimum := fees.MinimumViableInstantAmount(basePct, org.Currency)
	if amount < minimum {
		return FeeBreakdown{}, fees.ErrBelowMinimum
	}
	b := fees.InstantPayoutFee(amount, basePct, org.Currency)
	return FeeBreakdown{
		FeeModel:        payoutdomain.FeeModelBase,
		RequestedAmount: amount,
		ProcessorFee:    b.FeeAmount,
		NetAmount:       b.PayoutAmount,
	}, nil
}

type BalanceResponse struct {
	Available        float64 `json:"available"`
	InstantAvailable float64 `json:"instant_available"`
	Pending          float64 `json:"pending"`
	Currency         string  `json:"currency"`
}

func (s *Service) GetBalance(ctx context.Context, orgID snowflake.ID) (*BalanceResponse, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.ConnectAccountID == "" {
		return nil, orgdomain.ErrNotReady
	}
	balance, err := s.processor.RetrieveBalance(ctx, org.ConnectAccountID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{
		Available:        fees.FromCents(balance.Available),
		InstantAvailable: fees.FromCents(balance.InstantAvailable),
		Pending:          fees.FromCents(balance.Pending),
		Currency:         balance.Currency,
	}, nil
}

// ListPayouts returns the connected account's payouts from the processor,
// which includes payouts issued outside this service.
func (s *Service) ListPayouts(ctx context.Context, orgID snowflake.ID, limit int) ([]stripe.Payout, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.ConnectAccountID == "" {
		return nil, orgdomain.ErrNotReady
	}
	return s.processor.ListPayouts(ctx, org.ConnectAccountID, limit)
}

func feeModel(org *orgdomain.Organization) string {
	if org.UsesMarkupModel() {
		return payoutdomain.FeeModelMarkup
	}
	return payoutdomain.FeeModelBase
}

func (s *Service) countPayout(model, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.PayoutsCreated.WithLabelValues(model, outcome).Inc()
}
