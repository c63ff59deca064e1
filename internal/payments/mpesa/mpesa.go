// Package mpesa is a client for the Safaricom Daraja STK push API.
package mpesa

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rental-service/config"
	"rental-service/internal/models"
	"rental-service/internal/payments"
)

const provider = "mpesa"

// ResultCode values reported by the STK callback
const (
	ResultSuccess   = 0
	ResultCancelled = 1032
)

// processingErrorCode is Daraja's answer to a query for a push the customer
// has not completed yet
const processingErrorCode = "500.001.1001"

// ErrPending means Daraja has no result for the push yet
var ErrPending = errors.New("stk push is still being processed")

var eat = time.FixedZone("EAT", 3*60*60)

// Client talks to Daraja. Access tokens are shared through the TokenCache.
type Client struct {
	cfg    config.MpesaConfig
	cache  payments.TokenCache
	client *http.Client
	now    func() time.Time
}

// NewClient creates a Daraja client. cache may be nil.
func NewClient(cfg config.MpesaConfig, cache payments.TokenCache) *Client {
	return &Client{
		cfg:    cfg,
		cache:  cache,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPushRequest is the payment prompt sent to the customer's phone
type STKPushRequest struct {
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is Daraja's synchronous answer to an STK push
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := payments.NewJSONRequest(ctx, http.MethodGet,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	var tr tokenResponse
	if err := payments.DoJSON(c.client, req, provider, "token", &tr); err != nil {
		return "", 0, err
	}
	if tr.AccessToken == "" {
		return "", 0, &payments.ProviderError{Provider: provider, Op: "token", Body: "empty access token"}
	}

	secs, err := strconv.Atoi(tr.ExpiresIn)
	if err != nil || secs <= 0 {
		secs = 3599
	}
	return tr.AccessToken, time.Duration(secs) * time.Second, nil
}

// Token returns a valid access token, from cache when possible
func (c *Client) Token(ctx context.Context) (string, error) {
	return payments.CachedToken(ctx, c.cache, provider, c.fetchToken)
}

// Password derives the STK password for a timestamp
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// STKPush prompts the customer to pay. The returned CheckoutRequestID is the
// tracking id echoed by the callback.
func (c *Client) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResponse, error) {
	phone, err := payments.NormalizePhone(in.Phone)
	if err != nil {
		return nil, err
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(eat).Format("20060102150405")
	payload := stkPushPayload{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            in.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  payments.Truncate(in.AccountReference, 12),
		TransactionDesc:   payments.Truncate(in.Description, 13),
	}

	req, err := payments.NewJSONRequest(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/mpesa/stkpush/v1/processrequest", payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var out STKPushResponse
	if err := payments.DoJSON(c.client, req, provider, "stkpush", &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return nil, &payments.ProviderError{
			Provider: provider,
			Op:       "stkpush",
			Body:     fmt.Sprintf("ResponseCode %s: %s", out.ResponseCode, out.ResponseDescription),
		}
	}
	return &out, nil
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

// STKQueryResponse is Daraja's view of an STK push. ResultCode is absent
// while the customer has not answered the prompt.
type STKQueryResponse struct {
	ResponseCode        string          `json:"ResponseCode"`
	ResponseDescription string          `json:"ResponseDescription"`
	MerchantRequestID   string          `json:"MerchantRequestID"`
	CheckoutRequestID   string          `json:"CheckoutRequestID"`
	ResultCode          json.RawMessage `json:"ResultCode"`
	ResultDesc          string          `json:"ResultDesc"`
}

// resultCode accepts the code as a JSON number or a quoted number
func (r *STKQueryResponse) resultCode() (int, bool) {
	raw := strings.Trim(strings.TrimSpace(string(r.ResultCode)), `"`)
	code, err := strconv.Atoi(raw)
	return code, err == nil
}

// Final reports whether the push reached a result
func (r *STKQueryResponse) Final() bool {
	_, ok := r.resultCode()
	return ok
}

// Status maps the queried result code to a transaction status
func (r *STKQueryResponse) Status() string {
	code, ok := r.resultCode()
	if !ok {
		return models.TransactionStatusPending
	}
	return statusForResult(code)
}

// STKQuery asks Daraja for the outcome of an STK push. Daraja answers an
// error status while the push is still being processed; that is returned as
// a ProviderError with ErrPending.
func (c *Client) STKQuery(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(eat).Format("20060102150405")
	req, err := payments.NewJSONRequest(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/mpesa/stkpushquery/v1/query", stkQueryPayload{
			BusinessShortCode: c.cfg.ShortCode,
			Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
			Timestamp:         timestamp,
			CheckoutRequestID: checkoutRequestID,
		})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var out STKQueryResponse
	if err := payments.DoJSON(c.client, req, provider, "stkquery", &out); err != nil {
		var perr *payments.ProviderError
		if errors.As(err, &perr) && strings.Contains(perr.Body, processingErrorCode) {
			perr.Err = ErrPending
		}
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, &payments.ProviderError{
			Provider: provider,
			Op:       "stkquery",
			Body:     fmt.Sprintf("ResponseCode %s: %s", out.ResponseCode, out.ResponseDescription),
		}
	}
	return &out, nil
}
