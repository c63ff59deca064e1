// Package pesapal is a client for the Pesapal v3 hosted checkout API.
package pesapal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rental-service/config"
	"rental-service/internal/models"
	"rental-service/internal/payments"
)

const provider = "pesapal"

// Transaction status codes returned by GetTransactionStatus
const (
	StatusInvalid   = 0
	StatusCompleted = 1
	StatusFailed    = 2
	StatusReversed  = 3
)

// Client calls the Pesapal v3 API. Tokens are shared through cache when one
// is configured.
type Client struct {
	cfg            config.PesapalConfig
	cache          payments.TokenCache
	client         *http.Client
	notificationID string
}

// NewClient creates a Pesapal client. cache may be nil.
func NewClient(cfg config.PesapalConfig, cache payments.TokenCache) *Client {
	return &Client{
		cfg:            cfg,
		cache:          cache,
		client:         &http.Client{Timeout: 30 * time.Second},
		notificationID: cfg.NotificationID,
	}
}

// apiError is the error object Pesapal embeds in otherwise successful responses
type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *apiError) check(op, status string) error {
	if e == nil || (e.Code == "" && e.Message == "") {
		return nil
	}
	return &payments.ProviderError{
		Provider: provider,
		Op:       op,
		Body:     fmt.Sprintf("status %s: %s %s: %s", status, e.ErrorType, e.Code, e.Message),
	}
}

type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type tokenResponse struct {
	Token      string    `json:"token"`
	ExpiryDate string    `json:"expiryDate"`
	Error      *apiError `json:"error"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
}

// BillingAddress identifies the payer on an order. Pesapal needs an email
// or a phone number.
type BillingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

type orderPayload struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress BillingAddress `json:"billing_address"`
}

// OrderRequest describes a hosted checkout order
type OrderRequest struct {
	MerchantReference string
	Amount            int64
	Description       string
	Billing           BillingAddress
}

// OrderResponse carries the tracking id and the checkout page URL
type OrderResponse struct {
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	RedirectURL       string    `json:"redirect_url"`
	Error             *apiError `json:"error"`
	Status            string    `json:"status"`
}

// TransactionStatus is the answer of GetTransactionStatus
type TransactionStatus struct {
	PaymentMethod            string    `json:"payment_method"`
	Amount                   float64   `json:"amount"`
	CreatedDate              string    `json:"created_date"`
	ConfirmationCode         string    `json:"confirmation_code"`
	PaymentStatusDescription string    `json:"payment_status_description"`
	Description              string    `json:"description"`
	Message                  string    `json:"message"`
	PaymentAccount           string    `json:"payment_account"`
	StatusCode               int       `json:"status_code"`
	MerchantReference        string    `json:"merchant_reference"`
	Currency                 string    `json:"currency"`
	Error                    *apiError `json:"error"`
	Status                   string    `json:"status"`
}

// TransactionStatus maps the Pesapal status code to a transaction status
func (s *TransactionStatus) TransactionStatus() string {
	switch s.StatusCode {
	case StatusCompleted:
		return models.TransactionStatusCompleted
	case StatusReversed:
		return models.TransactionStatusCancelled
	default:
		return models.TransactionStatusFailed
	}
}

type ipnPayload struct {
	URL                 string `json:"url"`
	IPNNotificationType string `json:"ipn_notification_type"`
}

type ipnResponse struct {
	URL    string    `json:"url"`
	IPNID  string    `json:"ipn_id"`
	Error  *apiError `json:"error"`
	Status string    `json:"status"`
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := payments.NewJSONRequest(ctx, http.MethodPost, c.endpoint("/api/Auth/RequestToken"), tokenRequest{
		ConsumerKey:    c.cfg.ConsumerKey,
		ConsumerSecret: c.cfg.ConsumerSecret,
	})
	if err != nil {
		return "", 0, err
	}

	var tr tokenResponse
	if err := payments.DoJSON(c.client, req, provider, "token", &tr); err != nil {
		return "", 0, err
	}
	if err := tr.Error.check("token", tr.Status); err != nil {
		return "", 0, err
	}
	if tr.Token == "" {
		return "", 0, &payments.ProviderError{Provider: provider, Op: "token", Body: "empty token: " + tr.Message}
	}

	lifetime := 5 * time.Minute
	if exp, err := time.Parse(time.RFC3339Nano, tr.ExpiryDate); err == nil {
		if d := time.Until(exp); d > 0 {
			lifetime = d
		}
	}
	return tr.Token, lifetime, nil
}

// Token returns a valid access token, from cache when possible
func (c *Client) Token(ctx context.Context) (string, error) {
	return payments.CachedToken(ctx, c.cache, provider, c.fetchToken)
}

func (c *Client) authorized(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := payments.NewJSONRequest(ctx, method, c.endpoint(path), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// NotificationID returns the IPN id sent with every order
func (c *Client) NotificationID() string {
	return c.notificationID
}

// RegisterIPN registers the IPN URL and uses the returned id for later
// orders. Call it before serving requests.
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) (string, error) {
	req, err := c.authorized(ctx, http.MethodPost, "/api/URLSetup/RegisterIPN", ipnPayload{
		URL:                 ipnURL,
		IPNNotificationType: "GET",
	})
	if err != nil {
		return "", err
	}

	var out ipnResponse
	if err := payments.DoJSON(c.client, req, provider, "register_ipn", &out); err != nil {
		return "", err
	}
	if err := out.Error.check("register_ipn", out.Status); err != nil {
		return "", err
	}
	if out.IPNID == "" {
		return "", &payments.ProviderError{Provider: provider, Op: "register_ipn", Body: "empty ipn_id"}
	}

	c.notificationID = out.IPNID
	return out.IPNID, nil
}

// SubmitOrder creates a hosted checkout order
func (c *Client) SubmitOrder(ctx context.Context, in OrderRequest) (*OrderResponse, error) {
	if in.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	currency := c.cfg.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}

	req, err := c.authorized(ctx, http.MethodPost, "/api/Transactions/SubmitOrderRequest", orderPayload{
		ID:             in.MerchantReference,
		Currency:       currency,
		Amount:         float64(in.Amount),
		Description:    payments.Truncate(in.Description, 100),
		CallbackURL:    c.cfg.CallbackURL,
		NotificationID: c.notificationID,
		BillingAddress: in.Billing,
	})
	if err != nil {
		return nil, err
	}

	var out OrderResponse
	if err := payments.DoJSON(c.client, req, provider, "submit_order", &out); err != nil {
		return nil, err
	}
	if err := out.Error.check("submit_order", out.Status); err != nil {
		return nil, err
	}
	if out.OrderTrackingID == "" || out.RedirectURL == "" {
		return nil, &payments.ProviderError{Provider: provider, Op: "submit_order", Body: "missing order_tracking_id or redirect_url"}
	}
	return &out, nil
}

// GetTransactionStatus fetches the current status of an order
func (c *Client) GetTransactionStatus(ctx context.Context, orderTrackingID string) (*TransactionStatus, error) {
	req, err := c.authorized(ctx, http.MethodGet,
		"/api/Transactions/GetTransactionStatus?orderTrackingId="+url.QueryEscape(orderTrackingID), nil)
	if err != nil {
		return nil, err
	}

	var out TransactionStatus
	if err := payments.DoJSON(c.client, req, provider, "transaction_status", &out); err != nil {
		return nil, err
	}
	if err := out.Error.check("transaction_status", out.Status); err != nil {
		return nil, err
	}
	return &out, nil
}

// IPNAck is the body Pesapal expects in answer to an IPN call
type IPNAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}
