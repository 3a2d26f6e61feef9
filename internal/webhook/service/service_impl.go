package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/config"
	connectservice "github.com/smallbiznis/connectpay/internal/connect/service"
	obsmetrics "github.com/smallbiznis/connectpay/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	webhookdomain "github.com/smallbiznis/connectpay/internal/webhook/domain"
	"github.com/smallbiznis/connectpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       webhookdomain.Repository
	Orgs       orgdomain.Repository
	Connect    *connectservice.Service
	Payments   paymentdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log           *zap.Logger
	webhookSecret string
	genID         *snowflake.Node
	clock         clock.Clock
	repo          webhookdomain.Repository
	orgs          orgdomain.Repository
	connect       *connectservice.Service
	payments      paymentdomain.Repository
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		log:           p.Log.Named("webhook.service"),
		webhookSecret: strings.TrimSpace(p.Cfg.StripeWebhookSecret),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		orgs:          p.Orgs,
		connect:       p.Connect,
		payments:      p.Payments,
		obsMetrics:    p.ObsMetrics,
	}
}

// VerifySignature checks the processor's signed-payload HMAC before any
// business logic runs.
func (s *Service) VerifySignature(payload []byte, header string) error {
	if s.webhookSecret == "" {
		return webhookdomain.ErrInvalidSignature
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return webhookdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return webhookdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return webhookdomain.ErrInvalidSignature
}

type event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Account string `json:"account"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ProcessEvent records and dispatches a verified processor event. Internal
// failures are logged and folded into the result; callers acknowledge every
// result so the event subscription survives our own bugs.
func (s *Service) ProcessEvent(ctx context.Context, payload []byte) webhookdomain.Result {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil || strings.TrimSpace(evt.ID) == "" {
		s.log.Warn("malformed webhook payload", zap.Error(err))
		s.count("malformed", "ignored")
		return webhookdomain.ResultIgnored
	}

	record := webhookdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		ProviderEventID: evt.ID,
		EventType:       evt.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, &record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.log.Info("duplicate webhook event",
				zap.String("event_id", evt.ID),
				zap.String("event_type", evt.Type),
			)
			s.count(evt.Type, "duplicate")
			return webhookdomain.ResultDuplicate
		}
		s.log.Error("webhook event insert failed", zap.String("event_id", evt.ID), zap.Error(err))
		s.count(evt.Type, "error")
		return webhookdomain.ResultProcessedWithError
	}

	result := s.dispatch(ctx, evt)

	processingError := ""
	if result == webhookdomain.ResultProcessedWithError {
		processingError = "internal_error"
	}
	if err := s.repo.MarkProcessed(ctx, record.ID, s.clock.Now(), processingError); err != nil {
		s.log.Error("webhook event mark failed", zap.String("event_id", evt.ID), zap.Error(err))
	}

	s.count(evt.Type, string(result))
	return result
}

func (s *Service) dispatch(ctx context.Context, evt event) webhookdomain.Result {
	switch evt.Type {
	case "account.updated":
		return s.handleAccountUpdated(ctx, evt)
	case "payment_intent.succeeded":
		return s.handlePaymentIntentSucceeded(ctx, evt)
	case "transfer.created":
		var transfer struct {
			ID     string `json:"id"`
			Amount int64  `json:"amount"`
		}
		_ = json.Unmarshal(evt.Data.Object, &transfer)
		s.log.Info("transfer created",
			zap.String("event_id", evt.ID),
			zap.String("transfer_id", transfer.ID),
			zap.Int64("amount", transfer.Amount),
		)
		return webhookdomain.ResultProcessed
	default:
		s.log.Debug("webhook event ignored",
			zap.String("event_id", evt.ID),
			zap.String("event_type", evt.Type),
		)
		return webhookdomain.ResultIgnored
	}
}

// handleAccountUpdated recomputes the full lifecycle status from the
// processor rather than patching flags from the event payload, so duplicate
// or out-of-order deliveries converge to the same state.
func (s *Service) handleAccountUpdated(ctx context.Context, evt event) webhookdomain.Result {
	accountID := strings.TrimSpace(evt.Account)
	if accountID == "" {
		var object struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(evt.Data.Object, &object)
		accountID = strings.TrimSpace(object.ID)
	}
	if accountID == "" {
		s.log.Warn("account.updated without account id", zap.String("event_id", evt.ID))
		return webhookdomain.ResultIgnored
	}

	org, err := s.orgs.GetByConnectAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, orgdomain.ErrNotFound) {
			s.log.Warn("account.updated for unknown account",
				zap.String("event_id", evt.ID),
				zap.String("account_id", accountID),
			)
			return webhookdomain.ResultIgnored
		}
		s.log.Error("organization lookup failed", zap.String("event_id", evt.ID), zap.Error(err))
		return webhookdomain.ResultProcessedWithError
	}

	status, crossed, err := s.connect.RefreshStatus(ctx, org.ID)
	if err != nil {
		s.log.Error("lifecycle refresh failed",
			zap.String("event_id", evt.ID),
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
		return webhookdomain.ResultProcessedWithError
	}

	s.log.Info("lifecycle status refreshed",
		zap.String("event_id", evt.ID),
		zap.String("org_id", org.ID.String()),
		zap.Bool("is_complete", status.IsComplete),
		zap.Bool("crossed_completion", crossed),
	)
	return webhookdomain.ResultProcessed
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, evt event) webhookdomain.Result {
	var intent struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
	}
	if err := json.Unmarshal(evt.Data.Object, &intent); err != nil || intent.ID == "" {
		s.log.Warn("payment_intent.succeeded without intent id", zap.String("event_id", evt.ID))
		return webhookdomain.ResultIgnored
	}

	if err := s.payments.UpdateStatus(ctx, intent.ID, paymentdomain.StatusSucceeded); err != nil {
		s.log.Error("payment status update failed",
			zap.String("event_id", evt.ID),
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err),
		)
		return webhookdomain.ResultProcessedWithError
	}

	s.log.Info("payment intent succeeded",
		zap.String("event_id", evt.ID),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
	)
	return webhookdomain.ResultProcessed
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func (s *Service) count(eventType, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
