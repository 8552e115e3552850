// Package mobilemoney talks to the mobile money aggregator that fronts the
// Tanzanian MNO wallets (M-Pesa, Airtel Money, Tigo Pesa, HaloPesa, AzamPesa).
package mobilemoney

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

const (
	responseBodyReadLimit int64 = 1024
	defaultTimeout              = 10 * time.Second
	signatureHeader             = "X-Aggregator-Signature"
)

// Transaction statuses reported by the aggregator.
const (
	StatusPending   = "PENDING"
	StatusSuccess   = "SUCCESS"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

var (
	errBaseURLRequired = errors.New("mobile money base url is required")
	errAPIKeyRequired  = errors.New("mobile money api key is required")
)

// Client wraps the aggregator push checkout API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	callbackURL    string
	callbackSecret string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the aggregator client from config.
func NewClient(cfg config.MobileMoneyConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		apiKey:         apiKey,
		callbackURL:    strings.TrimSpace(cfg.CallbackURL),
		callbackSecret: strings.TrimSpace(cfg.CallbackSecret),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewExternalID returns a sortable id used to correlate a push with its callback.
func NewExternalID() string {
	return ulid.Make().String()
}

// PushRequest asks the aggregator to send a USSD prompt to the payer's handset.
type PushRequest struct {
	Provider    string
	MSISDN      string
	Amount      decimal.Decimal
	Currency    string
	ExternalID  string
	Description string
}

// PushResponse is the aggregator's acknowledgement of a push.
type PushResponse struct {
	TransactionID string
	Status        string
	Message       string
}

// TransactionStatus is the aggregator's view of a push transaction.
type TransactionStatus struct {
	TransactionID string
	ExternalID    string
	Status        string
	Message       string
}

// Push triggers a USSD prompt. A 400 or 422 answer is a validation failure;
// every other error is CodeDependency.
func (c *Client) Push(ctx context.Context, req PushRequest) (*PushResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mobile money client not configured")
	}
	if strings.TrimSpace(req.MSISDN) == "" || strings.TrimSpace(req.Provider) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "msisdn and provider are required")
	}
	externalID := req.ExternalID
	if externalID == "" {
		externalID = NewExternalID()
	}

	body := map[string]any{
		"provider":      req.Provider,
		"accountNumber": req.MSISDN,
		"amount":        req.Amount.StringFixed(0),
		"currency":      strings.ToUpper(req.Currency),
		"externalId":    externalID,
		"description":   req.Description,
	}
	if c.callbackURL != "" {
		body["callbackUrl"] = c.callbackURL
	}

	var apiResp struct {
		TransactionID string `json:"transactionId"`
		Status        string `json:"status"`
		Message       string `json:"message"`
		Success       bool   `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "checkout/mno", body, &apiResp); err != nil {
		return nil, err
	}
	status := strings.ToUpper(strings.TrimSpace(apiResp.Status))
	if status == "" {
		status = StatusPending
	}
	return &PushResponse{
		TransactionID: apiResp.TransactionID,
		Status:        status,
		Message:       apiResp.Message,
	}, nil
}

// Status looks up a push transaction by the aggregator transaction id.
func (c *Client) Status(ctx context.Context, transactionID string) (*TransactionStatus, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mobile money client not configured")
	}
	trimmed := strings.TrimSpace(transactionID)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}

	var apiResp struct {
		TransactionID string `json:"transactionId"`
		ExternalID    string `json:"externalId"`
		Status        string `json:"status"`
		Message       string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "transactions/"+url.PathEscape(trimmed), nil, &apiResp); err != nil {
		return nil, err
	}
	return &TransactionStatus{
		TransactionID: apiResp.TransactionID,
		ExternalID:    apiResp.ExternalID,
		Status:        strings.ToUpper(strings.TrimSpace(apiResp.Status)),
		Message:       apiResp.Message,
	}, nil
}

// Ping checks that the aggregator answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "mobile money client not configured")
	}
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// Callback is the payload the aggregator posts once the payer answers the prompt.
type Callback struct {
	EventID       string `json:"eventId"`
	TransactionID string `json:"transactionId"`
	ExternalID    string `json:"externalId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	// Amount is absent from aggregators that only report the status.
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
}

// ParseCallback verifies the signature header and decodes the callback body.
func (c *Client) ParseCallback(payload []byte, signature string) (*Callback, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mobile money client not configured")
	}
	if !ValidateSignature(payload, c.callbackSecret, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid mobile money signature")
	}
	var cb Callback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode mobile money callback")
	}
	cb.Status = strings.ToUpper(strings.TrimSpace(cb.Status))
	if cb.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback transaction id missing")
	}
	return &cb, nil
}

// SignatureHeader names the header carrying the callback HMAC.
func SignatureHeader() string {
	return signatureHeader
}

// ValidateSignature reports whether header is the hex HMAC-SHA256 of payload under secret.
func ValidateSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(strings.ToLower(strings.TrimSpace(header))))
}

// Sign computes the hex HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal mobile money request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build mobile money request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute mobile money request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(errorCode(method, resp.StatusCode), fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "mobile money request failed")
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode mobile money response")
	}
	return nil
}

// errorCode classifies a non-2xx answer. Only a rejected push body and an
// unknown transaction are the aggregator's verdict; auth, throttling,
// conflicts and server errors are transient and leave the payment pending.
func errorCode(method string, status int) pkgerrors.Code {
	switch {
	case status == http.StatusNotFound && method == http.MethodGet:
		return pkgerrors.CodeNotFound
	case method == http.MethodPost && (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity):
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
