package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	connectdomain "github.com/smallbiznis/connectpay/internal/connect/domain"
	"github.com/smallbiznis/connectpay/internal/config"
	"github.com/smallbiznis/connectpay/internal/notification"
	orgdomain "github.com/smallbiznis/connectpay/internal/organization/domain"
	"github.com/smallbiznis/connectpay/internal/providers/stripe"
	reconciliationservice "github.com/smallbiznis/connectpay/internal/reconciliation/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Fees      *config.FeeScheduleHolder
	Orgs      orgdomain.Repository
	Processor connectdomain.Processor
	Recon     *reconciliationservice.Service
	Notifier  notification.Notifier
}

type Service struct {
	log       *zap.Logger
	cfg       config.Config
	fees      *config.FeeScheduleHolder
	orgs      orgdomain.Repository
	processor connectdomain.Processor
	recon     *reconciliationservice.Service
	notifier  notification.Notifier
}

func NewService(p Params) *Service {
	return &Service{
		log:       p.Log.Named("connect.service"),
		cfg:       p.Cfg,
		fees:      p.Fees,
		orgs:      p.Orgs,
		processor: p.Processor,
		recon:     p.Recon,
		notifier:  p.Notifier,
	}
}

type CreateAccountResponse struct {
	AccountID string `json:"account_id"`
	Existing  bool   `json:"existing"`
}

// CreateAccount provisions a connected account for the organization. An
// organization that already has one gets it back unchanged.
func (s *Service) CreateAccount(ctx context.Context, orgID snowflake.ID) (*CreateAccountResponse, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.ConnectAccountID != "" {
		return &CreateAccountResponse{AccountID: org.ConnectAccountID, Existing: true}, nil
	}

	orgSlug := org.Slug
	if orgSlug == "" {
		orgSlug = slug.Make(org.Name)
	}

	account, err := s.processor.CreateAccount(ctx, stripe.CreateAccountParams{
		Email:            org.ContactEmail,
		OrganizationID:   org.ID.String(),
		OrganizationName: org.Name,
		OrganizationSlug: orgSlug,
		ProfileURL:       s.cfg.PlatformBaseURL + "/" + orgSlug,
		IdempotencyKey:   "acct:" + org.ID.String(),
	})
	if err != nil {
		if stripe.IsAccountCreationRestricted(err) {
			s.log.Error("platform cannot create connected accounts",
				zap.String("org_id", org.ID.String()),
				zap.Error(err),
			)
			return nil, connectdomain.ErrPlatformOnboardingDisabled
		}
		return nil, err
	}

	if err := s.orgs.SetConnectAccount(ctx, org.ID, account.ID); err != nil {
		return nil, err
	}

	s.log.Info("connected account created",
		zap.String("org_id", org.ID.String()),
		zap.String("account_id", account.ID),
	)
	return &CreateAccountResponse{AccountID: account.ID}, nil
}

type OnboardingLinkResponse struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// OnboardingLink returns a fresh onboarding link, provisioning the
// connected account first if the organization does not have one yet.
func (s *Service) OnboardingLink(ctx context.Context, orgID snowflake.ID) (*OnboardingLinkResponse, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	accountID := org.ConnectAccountID
	if accountID == "" {
		created, err := s.CreateAccount(ctx, orgID)
		if err != nil {
			return nil, err
		}
		accountID = created.AccountID
	}

	link, err := s.processor.CreateAccountLink(ctx, accountID, s.cfg.ConnectReturnURL, s.cfg.ConnectRefreshURL)
	if err != nil {
		return nil, err
	}

	status := "pending"
	if org.IsComplete() {
		status = "complete"
	}
	return &OnboardingLinkResponse{URL: link.URL, Status: status}, nil
}

// GetStatus refreshes the lifecycle snapshot from the processor and returns
// it. With no processor-side change, repeated calls return the same result.
func (s *Service) GetStatus(ctx context.Context, orgID snowflake.ID) (*connectdomain.Status, error) {
	status, _, err := s.RefreshStatus(ctx, orgID)
	return status, err
}

// RefreshStatus pulls the connected account's current flags from the
// processor, persists them and reports whether the refresh crossed the
// not-complete to complete edge. On that edge, and only there, it sweeps the
// funds accumulated while the account could not receive payouts and sends
// the activation notification. Sweep failures are logged, not returned; the
// refresh itself already succeeded and the sweep re-drives on the next edge
// detection or operator action.
func (s *Service) RefreshStatus(ctx context.Context, orgID snowflake.ID) (*connectdomain.Status, bool, error) {
	org, err := s.orgs.Get(ctx, orgID)
	if err != nil {
		return nil, false, err
	}
	if org.ConnectAccountID == "" {
		return nil, false, orgdomain.ErrNotReady
	}

	account, err := s.processor.RetrieveAccount(ctx, org.ConnectAccountID)
	if err != nil {
		return nil, false, err
	}

	wasComplete := org.IsComplete()
	if err := s.orgs.UpdateConnectStatus(ctx, org.ID, orgdomain.ConnectStatus{
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
	}); err != nil {
		return nil, false, err
	}

	status := &connectdomain.Status{
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		IsComplete:       account.ChargesEnabled && account.PayoutsEnabled,
	}

	crossed := !wasComplete && status.IsComplete
	if crossed {
		s.onActivated(ctx, org)
	}
	return status, crossed, nil
}

// onActivated runs the one-time activation path: sweep accumulated funds
// and notify the payee. The sweep's per-organization lock keeps concurrent
// refreshes that both observe the edge from double-transferring.
func (s *Service) onActivated(ctx context.Context, org *orgdomain.Organization) {
	s.log.Info("organization onboarding complete",
		zap.String("org_id", org.ID.String()),
		zap.String("account_id", org.ConnectAccountID),
	)

	schedule := s.fees.Current()
	pct := org.PlatformFeePercentage
	fixed := org.PlatformFeeFixed
	if pct == 0 && fixed == 0 {
		pct = schedule.PlatformFeePercentage
		fixed = schedule.PlatformFeeFixed
	}

	if _, err := s.recon.TransferAccumulatedFunds(ctx, reconciliationservice.SweepRequest{
		OrgID:       org.ID,
		Destination: org.ConnectAccountID,
		Currency:    org.Currency,
		FeePct:      pct,
		FeeFixed:    fixed,
	}); err != nil {
		s.log.Error("accumulated funds sweep on activation failed",
			zap.String("org_id", org.ID.String()),
			zap.Error(err),
		)
	}

	s.notifier.Enqueue(notification.Notification{
		Kind:             notification.KindAccountActivated,
		Recipient:        org.ContactEmail,
		OrganizationName: org.Name,
		Currency:         org.Currency,
	})
}
