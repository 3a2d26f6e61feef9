package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/config"
	connectservice "github.com/smallbiznis/connectpay/internal/connect/service"
	invoicedomain "github.com/smallbiznis/connectpay/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/connectpay/internal/invoice/repository"
	"github.com/smallbiznis/connectpay/internal/notification"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	orgrepo "github.com/smallbiznis/connectpay/internal/organization/repository"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/connectpay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/connectpay/internal/payment/service"
	payoutdomain "github.com/smallbiznis/connectpay/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/connectpay/internal/payout/repository"
	payoutservice "github.com/smallbiznis/connectpay/internal/payout/service"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"github.com/smallbiznis/connectpay/internal/ratelimit"
	reconciliationservice "github.com/smallbiznis/connectpay/internal/reconciliation/service"
	webhookdomain "github.com/smallbiznis/connectpay/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/connectpay/internal/webhook/repository"
	webhookservice "github.com/smallbiznis/connectpay/internal/webhook/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const serverTestSecret = "whsec_server_test"

// stubProcessor stands in for the payment processor across every service
// the server wires up.
type stubProcessor struct {
	balance stripe.Balance
	account stripe.Account
}

func (s *stubProcessor) CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error) {
	return stripe.PaymentIntent{
		ID:       "pi_server_test",
		Status:   "requires_payment_method",
		Amount:   params.Amount,
		Currency: params.Currency,
	}, nil
}

func (s *stubProcessor) RetrieveBalance(ctx context.Context, accountID string) (stripe.Balance, error) {
	return s.balance, nil
}

func (s *stubProcessor) CreatePayout(ctx context.Context, accountID string, params stripe.PayoutParams) (stripe.Payout, error) {
	return stripe.Payout{ID: "po_server_test", Amount: params.Amount, Currency: params.Currency, Status: "paid"}, nil
}

func (s *stubProcessor) ListPayouts(ctx context.Context, accountID string, limit int) ([]stripe.Payout, error) {
	return []stripe.Payout{{ID: "po_server_test", Status: "paid"}}, nil
}

func (s *stubProcessor) CreateTransfer(ctx context.Context, params stripe.TransferParams) (stripe.Transfer, error) {
	return stripe.Transfer{ID: "tr_server_test", Amount: params.Amount}, nil
}

func (s *stubProcessor) CreateAccount(ctx context.Context, params stripe.CreateAccountParams) (stripe.Account, error) {
	return stripe.Account{ID: "acct_server_test"}, nil
}

func (s *stubProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (stripe.AccountLink, error) {
	return stripe.AccountLink{URL: "https://connect.stripe.com/setup/server-test"}, nil
}

func (s *stubProcessor) RetrieveAccount(ctx context.Context, accountID string) (stripe.Account, error) {
	account := s.account
	account.ID = accountID
	return account, nil
}

type serverFixture struct {
	server    *Server
	db        *gorm.DB
	node      *snowflake.Node
	processor *stubProcessor
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&payoutdomain.Payout{},
		&webhookdomain.WebhookEvent{},
	))

	node, err := snowflake.NewNode(15)
	require.NoError(t, err)

	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticFeeScheduleHolder(config.DefaultFeeSchedule())
	cfg := config.Config{
		PlatformBaseURL:     "https://app.example.com",
		StripeWebhookSecret: serverTestSecret,
	}

	orgs := orgrepo.NewRepository(db)
	payments := paymentrepo.NewRepository(db)
	processor := &stubProcessor{}
	notifier := noopTestNotifier{}

	recon := reconciliationservice.NewService(reconciliationservice.Params{
		DB:        db,
		Log:       log,
		Clock:     fakeClock,
		Payments:  payments,
		Processor: processor,
		Locker:    ratelimit.NewLocalLocker(),
	})

	connectSvc := connectservice.NewService(connectservice.Params{
		Log:       log,
		Cfg:       cfg,
		Fees:      holder,
		Orgs:      orgs,
		Processor: processor,
		Recon:     recon,
		Notifier:  notifier,
	})

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		Log:       log,
		GenID:     node,
		Clock:     fakeClock,
		Fees:      holder,
		Orgs:      orgs,
		Invoices:  invoicerepo.NewRepository(db),
		Repo:      payments,
		Processor: processor,
	})

	payoutSvc := payoutservice.NewService(payoutservice.Params{
		Log:       log,
		GenID:     node,
		Clock:     fakeClock,
		Fees:      holder,
		Orgs:      orgs,
		Repo:      payoutrepo.NewRepository(db),
		Processor: processor,
		Locker:    ratelimit.NewLocalLocker(),
		Notifier:  notifier,
	})

	webhookSvc := webhookservice.NewService(webhookservice.Params{
		Log:      log,
		Cfg:      cfg,
		GenID:    node,
		Clock:    fakeClock,
		Repo:     webhookrepo.NewRepository(db),
		Orgs:     orgs,
		Connect:  connectSvc,
		Payments: payments,
	})

	engine := NewEngine(log, prometheus.NewRegistry())
	srv := NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Log:        log,
		ConnectSvc: connectSvc,
		PaymentSvc: paymentSvc,
		PayoutSvc:  payoutSvc,
		WebhookSvc: webhookSvc,
	})

	return &serverFixture{server: srv, db: db, node: node, processor: processor}
}

type noopTestNotifier struct{}

func (noopTestNotifier) Enqueue(n notification.Notification) {}

func (f *serverFixture) seedOrg(t *testing.T, ready bool) *orgdomain.Organization {
	t.Helper()

	org := &orgdomain.Organization{
		ID:             f.node.Generate(),
		Name:           "Server Test Org",
		Slug:           fmt.Sprintf("server-test-%d", f.node.Generate()),
		ProductContext: orgdomain.ProductContextM10DJ,
		Currency:       "usd",
	}
	if ready {
		org.ConnectAccountID = "acct_ready"
		org.ChargesEnabled = true
		org.PayoutsEnabled = true
		org.OnboardingComplete = true
		org.InstantPayoutEnabled = true
	}
	require.NoError(t, f.db.Create(org).Error)
	return org
}

func (f *serverFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)
	w := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePaymentEndpoint(t *testing.T) {
	f := newServerFixture(t)
	org := f.seedOrg(t, true)

	w := f.do(http.MethodPost, "/v1/organizations/"+org.ID.String()+"/payments", gin.H{"amount": 10.00})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "pi_server_test")
}

func TestCreatePaymentRejectsNonPositiveAmount(t *testing.T) {
	f := newServerFixture(t)
	org := f.seedOrg(t, true)

	w := f.do(http.MethodPost, "/v1/organizations/"+org.ID.String()+"/payments", gin.H{"amount": -5.00})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeError(t, w).Type)
}

func TestCreatePaymentForIncompleteOrgConflicts(t *testing.T) {
	f := newServerFixture(t)
	org := f.seedOrg(t, false)

	w := f.do(http.MethodPost, "/v1/organizations/"+org.ID.String()+"/payments", gin.H{"amount": 10.00})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeError(t, w).Type)
}

func TestUnknownOrganizationIsNotFound(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(http.MethodPost, "/v1/organizations/123456789/payments", gin.H{"amount": 10.00})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Type)
}

func TestInstantPayoutInsufficientBalanceIsBadRequest(t *testing.T) {
	f := newServerFixture(t)
	org := f.seedOrg(t, true)
	f.processor.balance = stripe.Balance{InstantAvailable: 500, Currency: "usd"}

	w := f.do(http.MethodPost, "/v1/organizations/"+org.ID.String()+"/payouts/instant", gin.H{"amount": 100.00})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	payload := decodeError(t, w)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "insufficient_balance", payload.Errors[0].Code)
}

func TestInstantPayoutEndpoint(t *testing.T) {
	f := newServerFixture(t)
	org := f.seedOrg(t, true)
	f.processor.balance = stripe.Balance{InstantAvailable: 20000, Currency: "usd"}

	w := f.do(http.MethodPost, "/v1/organizations/"+org.ID.String()+"/payouts/instant", gin.H{"amount": 100.00})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "po_server_test")
}

func TestGetBalanceEndpoint(t *testing.T) {
	f := newServerFixture(t)
	org := f.seedOrg(t, true)
	f.processor.balance = stripe.Balance{Available: 12345, InstantAvailable: 10000, Currency: "usd"}

	w := f.do(http.MethodGet, "/v1/organizations/"+org.ID.String()+"/balance", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "123.45")
}

func signWebhookPayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(serverTestSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{"id":"evt_1","type":"transfer.created"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcknowledgesVerifiedEvent(t *testing.T) {
	f := newServerFixture(t)

	payload := []byte(`{"id":"evt_server_1","type":"transfer.created","data":{"object":{"id":"tr_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBuffer(payload))
	req.Header.Set("Stripe-Signature", signWebhookPayload(payload))
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
}
