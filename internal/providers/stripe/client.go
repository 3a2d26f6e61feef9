// Package stripe is a thin client for the processor endpoints this service
// uses: connected accounts, account links, payment intents, balances,
// payouts and transfers.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/connectpay/internal/config"
	"go.uber.org/fx"
)

// Module provides the processor client from configuration.
var Module = fx.Module("providers.stripe",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) *Client {
	return New(cfg.StripeSecretKey)
}

type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: "https://api.stripe.com",
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// NewWithBaseURL points the client at a test server.
func NewWithBaseURL(apiKey, baseURL string) *Client {
	c := New(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Error is a processor-side failure with the original diagnostic retained.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "stripe_request_failed"
}

// IsAccountCreationRestricted reports whether the platform account itself is
// not allowed to create connected accounts and needs manual intervention on
// the processor side.
func IsAccountCreationRestricted(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	message := strings.ToLower(apiErr.Message)
	return strings.Contains(message, "cannot currently create connected accounts") ||
		strings.Contains(message, "cannot create connected accounts")
}

type Account struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

type AccountLink struct {
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type balanceEntry struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type balanceResponse struct {
	Available        []balanceEntry `json:"available"`
	InstantAvailable []balanceEntry `json:"instant_available"`
	Pending          []balanceEntry `json:"pending"`
}

// Balance is the connected account's balance in cents. InstantAvailable is
// the processor-defined subset eligible for instant payouts.
type Balance struct {
	Available        int64  `json:"available"`
	InstantAvailable int64  `json:"instant_available"`
	Pending          int64  `json:"pending"`
	Currency         string `json:"currency"`
}

type Payout struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Method      string `json:"method"`
	Destination string `json:"destination"`
	ArrivalDate int64  `json:"arrival_date"`
}

type Transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

type CreateAccountParams struct {
	Email            string
	OrganizationID   string
	OrganizationName string
	OrganizationSlug string
	ProfileURL       string
	IdempotencyKey   string
}

// CreateAccount creates an Express connected account with card payments and
// transfers capabilities, individual business type and daily payouts.
func (c *Client) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	values := url.Values{}
	values.Set("type", "express")
	values.Set("country", "US")
	values.Set("email", params.Email)
	values.Set("business_type", "individual")
	values.Set("capabilities[card_payments][requested]", "true")
	values.Set("capabilities[transfers][requested]", "true")
	values.Set("settings[payouts][schedule][interval]", "daily")
	values.Set("metadata[organization_id]", params.OrganizationID)
	values.Set("metadata[organization_name]", params.OrganizationName)
	values.Set("metadata[organization_slug]", params.OrganizationSlug)
	if params.ProfileURL != "" {
		values.Set("business_profile[url]", params.ProfileURL)
		values.Set("business_profile[name]", params.OrganizationName)
	}

	var account Account
	err := c.do(ctx, http.MethodPost, "/v1/accounts", values, params.IdempotencyKey, "", &account)
	return account, err
}

// CreateAccountLink creates an onboarding link collecting currently due
// requirements.
func (c *Client) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (AccountLink, error) {
	values := url.Values{}
	values.Set("account", accountID)
	values.Set("return_url", returnURL)
	values.Set("refresh_url", refreshURL)
	values.Set("type", "account_onboarding")
	values.Set("collect", "currently_due")

	var link AccountLink
	err := c.do(ctx, http.MethodPost, "/v1/account_links", values, "", "", &link)
	return link, err
}

func (c *Client) RetrieveAccount(ctx context.Context, accountID string) (Account, error) {
	var account Account
	err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, "", "", &account)
	return account, err
}

type PaymentIntentParams struct {
	Amount         int64
	Currency       string
	ApplicationFee int64
	Destination    string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreatePaymentIntent creates a destination charge routed to the connected
// account with the platform fee attached.
func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (PaymentIntent, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(params.Amount, 10))
	values.Set("currency", strings.ToLower(params.Currency))
	values.Set("application_fee_amount", strconv.FormatInt(params.ApplicationFee, 10))
	values.Set("transfer_data[destination]", params.Destination)
	values.Set("automatic_payment_methods[enabled]", "true")
	for key, value := range params.Metadata {
		values.Set("metadata["+key+"]", value)
	}

	var intent PaymentIntent
	err := c.do(ctx, http.MethodPost, "/v1/payment_intents", values, params.IdempotencyKey, "", &intent)
	return intent, err
}

// RetrieveBalance returns the connected account's balance. The processor
// reports per-currency entries; the first entry is the account's settlement
// currency.
func (c *Client) RetrieveBalance(ctx context.Context, accountID string) (Balance, error) {
	var resp balanceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/balance", nil, "", accountID, &resp); err != nil {
		return Balance{}, err
	}

	balance := Balance{Currency: "usd"}
	if len(resp.Available) > 0 {
		balance.Available = resp.Available[0].Amount
		balance.Currency = resp.Available[0].Currency
	}
	if len(resp.InstantAvailable) > 0 {
		balance.InstantAvailable = resp.InstantAvailable[0].Amount
	}
	if len(resp.Pending) > 0 {
		balance.Pending = resp.Pending[0].Amount
	}
	return balance, nil
}

type PayoutParams struct {
	Amount         int64
	Currency       string
	Destination    string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreatePayout creates an instant payout on the connected account. The
// account needs a debit card or eligible bank account on file and enough
// instant-available balance.
func (c *Client) CreatePayout(ctx context.Context, accountID string, params PayoutParams) (Payout, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(params.Amount, 10))
	values.Set("currency", strings.ToLower(params.Currency))
	values.Set("method", "instant")
	if params.Destination != "" {
		values.Set("destination", params.Destination)
	}
	for key, value := range params.Metadata {
		values.Set("metadata["+key+"]", value)
	}

	var payout Payout
	err := c.do(ctx, http.MethodPost, "/v1/payouts", values, params.IdempotencyKey, accountID, &payout)
	return payout, err
}

type payoutList struct {
	Data []Payout `json:"data"`
}

func (c *Client) ListPayouts(ctx context.Context, accountID string, limit int) ([]Payout, error) {
	path := "/v1/payouts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list payoutList
	if err := c.do(ctx, http.MethodGet, path, nil, "", accountID, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

type TransferParams struct {
	Amount         int64
	Currency       string
	Destination    string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreateTransfer moves platform-held funds to a connected account.
func (c *Client) CreateTransfer(ctx context.Context, params TransferParams) (Transfer, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(params.Amount, 10))
	values.Set("currency", strings.ToLower(params.Currency))
	values.Set("destination", params.Destination)
	for key, value := range params.Metadata {
		values.Set("metadata["+key+"]", value)
	}

	var transfer Transfer
	err := c.do(ctx, http.MethodPost, "/v1/transfers", values, params.IdempotencyKey, "", &transfer)
	return transfer, err
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	values url.Values,
	idempotencyKey string,
	accountID string,
	out any,
) error {
	if c.apiKey == "" {
		return &Error{Type: "invalid_request_error", Message: "stripe is not configured"}
	}

	body := ""
	if values != nil {
		body = values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if values != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if accountID != "" {
		req.Header.Set("Stripe-Account", accountID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error Error `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return &Error{Type: "api_error", Message: "stripe_request_failed"}
		}
		if apiErr.Error.Message == "" {
			apiErr.Error.Message = "stripe_request_failed"
		}
		return &apiErr.Error
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
