package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/fees"
	obsmetrics "github.com/smallbiznis/connectpay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"github.com/smallbiznis/connectpay/internal/ratelimit"
	reconciliationdomain "github.com/smallbiznis/connectpay/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepLockTTL = 60 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Payments   paymentdomain.Repository
	Processor  reconciliationdomain.Processor
	Locker     ratelimit.Locker
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	payments   paymentdomain.Repository
	processor  reconciliationdomain.Processor
	locker     ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("reconciliation.service"),
		clock:      p.Clock,
		payments:   p.Payments,
		processor:  p.Processor,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

type SweepRequest struct {
	OrgID       snowflake.ID
	Destination string
	Currency    string
	FeePct      float64
	FeeFixed    float64
}

type SweepResult struct {
	TotalPayments int     `json:"total_payments"`
	GrossAmount   float64 `json:"gross_amount"`
	FeeAmount     float64 `json:"fee_amount"`
	NetAmount     float64 `json:"net_amount"`
	TransferID    string  `json:"transfer_id,omitempty"`
}

// TransferAccumulatedFunds sweeps every payment collected while the
// organization was not yet payout-capable into one transfer to its connected
// account. The platform fee is taken once on the sum. Swept rows are marked
// in a single transaction after the transfer is acknowledged, and the
// transfer's idempotency key is derived from the exact set of payments so a
// retry after a partial failure cannot double-send the funds.
func (s *Service) TransferAccumulatedFunds(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	lockKey := "sweep:" + req.OrgID.String()
	token, ok, err := s.locker.TryLock(ctx, lockKey, sweepLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, reconciliationdomain.ErrSweepInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("sweep lock release failed", zap.String("key", lockKey), zap.Error(err))
		}
	}()

	pending, err := s.payments.ListUntransferred(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		s.log.Info("no accumulated funds to transfer", zap.String("org_id", req.OrgID.String()))
		return &SweepResult{}, nil
	}

	var grossCents int64
	ids := make([]snowflake.ID, 0, len(pending))
	for _, p := range pending {
		grossCents += p.Amount
		ids = append(ids, p.ID)
	}
	gross := fees.FromCents(grossCents)

	breakdown, err := fees.PlatformFee(gross, req.FeePct, req.FeeFixed)
	if err != nil {
		return nil, err
	}

	transfer, err := s.processor.CreateTransfer(ctx, stripe.TransferParams{
		Amount:      fees.ToCents(breakdown.PayoutAmount),
		Currency:    req.Currency,
		Destination: req.Destination,
		Metadata: map[string]string{
			"organization_id": req.OrgID.String(),
			"payment_count":   strconv.Itoa(len(pending)),
			"reason":          "accumulated_funds",
		},
		IdempotencyKey: sweepIdempotencyKey(req.OrgID, ids),
	})
	if err != nil {
		s.countSweep("processor_error")
		s.log.Error("accumulated funds transfer failed",
			zap.String("org_id", req.OrgID.String()),
			zap.Int("payment_count", len(pending)),
			zap.Error(err),
		)
		return nil, err
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.payments.WithTx(tx).MarkTransferred(ctx, ids, now)
	})
	if err != nil {
		// The transfer already went out. The idempotency key above makes a
		// re-driven sweep safe: the processor will replay the same transfer
		// instead of creating a new one.
		s.countSweep("mark_failed")
		s.log.Error("marking swept payments failed, sweep must be re-driven",
			zap.String("org_id", req.OrgID.String()),
			zap.String("transfer_id", transfer.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.countSweep("completed")
	if s.obsMetrics != nil {
		s.obsMetrics.PaymentsSwept.Add(float64(len(pending)))
	}
	s.log.Info("accumulated funds transferred",
		zap.String("org_id", req.OrgID.String()),
		zap.String("transfer_id", transfer.ID),
		zap.Int("payment_count", len(pending)),
		zap.Float64("gross_amount", gross),
		zap.Float64("net_amount", breakdown.PayoutAmount),
	)

	return &SweepResult{
		TotalPayments: len(pending),
		GrossAmount:   gross,
		FeeAmount:     breakdown.FeeAmount,
		NetAmount:     breakdown.PayoutAmount,
		TransferID:    transfer.ID,
	}, nil
}

// sweepIdempotencyKey is stable for a given set of payments, so retrying a
// sweep that died between transfer and marking replays the same transfer.
func sweepIdempotencyKey(orgID snowflake.ID, ids []snowflake.ID) string {
	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id.String()))
		h.Write([]byte{':'})
	}
	return "sweep:" + orgID.String() + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

func (s *Service) countSweep(outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.ReconciliationSweeps.WithLabelValues(outcome).Inc()
}
