package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/connectpay/internal/clock"
	"github.com/smallbiznis/connectpay/internal/config"
	connectdomain "github.com/smallbiznis/connectpay/internal/connect/domain"
	connectservice "github.com/smallbiznis/connectpay/internal/connect/service"
	"github.com/smallbiznis/connectpay/internal/notification"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	orgrepo "github.com/smallbiznis/connectpay/internal/organization/repository"
	paymentdomain "github.com/smallbiznis/connectpay/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/connectpay/internal/payment/repository"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	"github.com/smallbiznis/connectpay/internal/ratelimit"
	reconciliationservice "github.com/smallbiznis/connectpay/internal/reconciliation/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubAccountProcessor struct {
	account       stripe.Account
	createErr     error
	createCalls   int
	lastCreate    stripe.CreateAccountParams
	linkURL       string
	retrieveCalls int
}

func (s *stubAccountProcessor) CreateAccount(ctx context.Context, params stripe.CreateAccountParams) (stripe.Account, error) {
	s.createCalls++
	s.lastCreate = params
	if s.createErr != nil {
		return stripe.Account{}, s.createErr
	}
	return stripe.Account{ID: fmt.Sprintf("acct_new_%d", s.createCalls)}, nil
}

func (s *stubAccountProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (stripe.AccountLink, error) {
	return stripe.AccountLink{URL: s.linkURL, ExpiresAt: time.Now().Add(time.Hour).Unix()}, nil
}

func (s *stubAccountProcessor) RetrieveAccount(ctx context.Context, accountID string) (stripe.Account, error) {
	s.retrieveCalls++
	account := s.account
	account.ID = accountID
	return account, nil
}

type stubTransferProcessor struct {
	calls int
}

func (s *stubTransferProcessor) CreateTransfer(ctx context.Context, params stripe.TransferParams) (stripe.Transfer, error) {
	s.calls++
	return stripe.Transfer{ID: fmt.Sprintf("tr_%d", s.calls), Amount: params.Amount}, nil
}

type recordingNotifier struct {
	sent []notification.Notification
}

func (r *recordingNotifier) Enqueue(n notification.Notification) {
	r.sent = append(r.sent, n)
}

type fixture struct {
	svc       *connectservice.Service
	processor *stubAccountProcessor
	transfers *stubTransferProcessor
	notifier  *recordingNotifier
	db        *gorm.DB
	node      *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&paymentdomain.Payment{},
	))

	node, err := snowflake.NewNode(13)
	require.NoError(t, err)

	transfers := &stubTransferProcessor{}
	recon := reconciliationservice.NewService(reconciliationservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Payments:  paymentrepo.NewRepository(db),
		Processor: transfers,
		Locker:    ratelimit.NewLocalLocker(),
	})

	processor := &stubAccountProcessor{linkURL: "https://connect.stripe.com/setup/test"}
	notifier := &recordingNotifier{}
	svc := connectservice.NewService(connectservice.Params{
		Log: zap.NewNop(),
		Cfg: config.Config{
			ConnectReturnURL:  "https://app.example.com/return",
			ConnectRefreshURL: "https://app.example.com/refresh",
			PlatformBaseURL:   "https://app.example.com",
		},
		Fees:      config.NewStaticFeeScheduleHolder(config.DefaultFeeSchedule()),
		Orgs:      orgrepo.NewRepository(db),
		Processor: processor,
		Recon:     recon,
		Notifier:  notifier,
	})
	return &fixture{svc: svc, processor: processor, transfers: transfers, notifier: notifier, db: db, node: node}
}

func seedOrg(t *testing.T, f *fixture, mutate func(*orgdomain.Organization)) *orgdomain.Organization {
	t.Helper()

	org := &orgdomain.Organization{
		ID:             f.node.Generate(),
		Name:           "M10 DJ Company",
		Slug:           fmt.Sprintf("m10-dj-%d", f.node.Generate()),
		ContactEmail:   "owner@example.com",
		ProductContext: orgdomain.ProductContextM10DJ,
		Currency:       "usd",
	}
	if mutate != nil {
		mutate(org)
	}
	require.NoError(t, f.db.Create(org).Error)
	return org
}

func TestCreateAccountProvisionsAndPersists(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, nil)

	resp, err := f.svc.CreateAccount(context.Background(), org.ID)
	require.NoError(t, err)
	assert.False(t, resp.Existing)
	assert.Equal(t, "acct_new_1", resp.AccountID)
	assert.Equal(t, org.ID.String(), f.processor.lastCreate.OrganizationID)
	assert.Contains(t, f.processor.lastCreate.ProfileURL, "https://app.example.com/")

	var stored orgdomain.Organization
	require.NoError(t, f.db.First(&stored, "id = ?", org.ID).Error)
	assert.Equal(t, "acct_new_1", stored.ConnectAccountID)
}

func TestCreateAccountShortCircuitsWhenExisting(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, func(o *orgdomain.Organization) {
		o.ConnectAccountID = "acct_existing"
	})

	resp, err := f.svc.CreateAccount(context.Background(), org.ID)
	require.NoError(t, err)
	assert.True(t, resp.Existing)
	assert.Equal(t, "acct_existing", resp.AccountID)
	assert.Zero(t, f.processor.createCalls)
}

func TestCreateAccountDetectsPlatformRestriction(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, nil)
	f.processor.createErr = &stripe.Error{
		Type:    "invalid_request_error",
		Message: "You cannot currently create connected accounts. Please contact support.",
	}

	_, err := f.svc.CreateAccount(context.Background(), org.ID)
	assert.ErrorIs(t, err, connectdomain.ErrPlatformOnboardingDisabled)
}

func TestOnboardingLinkProvisionsAccountWhenMissing(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, nil)

	resp, err := f.svc.OnboardingLink(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://connect.stripe.com/setup/test", resp.URL)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 1, f.processor.createCalls)
}

func TestGetStatusIsIdempotent(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, func(o *orgdomain.Organization) {
		o.ConnectAccountID = "acct_test"
	})
	f.processor.account = stripe.Account{ChargesEnabled: true, PayoutsEnabled: false, DetailsSubmitted: true}

	first, err := f.svc.GetStatus(context.Background(), org.ID)
	require.NoError(t, err)
	second, err := f.svc.GetStatus(context.Background(), org.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.False(t, first.IsComplete)
}

func TestRefreshStatusTriggersSweepOnCompletionEdge(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, func(o *orgdomain.Organization) {
		o.ConnectAccountID = "acct_test"
	})

	// Funds accumulated while the account could not receive payouts.
	require.NoError(t, f.db.Create(&paymentdomain.Payment{
		ID:              f.node.Generate(),
		OrgID:           org.ID,
		PaymentIntentID: "pi_accumulated",
		Amount:          5000,
		Currency:        "usd",
		Status:          paymentdomain.StatusSucceeded,
	}).Error)

	f.processor.account = stripe.Account{ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}

	status, crossed, err := f.svc.RefreshStatus(context.Background(), org.ID)
	require.NoError(t, err)
	assert.True(t, crossed)
	assert.True(t, status.IsComplete)
	assert.Equal(t, 1, f.transfers.calls)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notification.KindAccountActivated, f.notifier.sent[0].Kind)

	// Still complete on the next refresh: no edge, no second sweep.
	_, crossed, err = f.svc.RefreshStatus(context.Background(), org.ID)
	require.NoError(t, err)
	assert.False(t, crossed)
	assert.Equal(t, 1, f.transfers.calls)
	assert.Len(t, f.notifier.sent, 1)
}

func TestRefreshStatusRequiresConnectAccount(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(t, f, nil)

	_, _, err := f.svc.RefreshStatus(context.Background(), org.ID)
	assert.ErrorIs(t, err, orgdomain.ErrNotReady)
}
