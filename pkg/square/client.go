package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

// Payment statuses reported by Square.
const (
	PaymentStatusApproved  = "APPROVED"
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCanceled  = "CANCELED"
	PaymentStatusFailed    = "FAILED"
)

var baseURLs = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// DeclineError is a card Square refused. It settles the intent as rejected
// rather than surfacing as a channel failure.
type DeclineError struct {
	Code   string
	Detail string
}

func (e *DeclineError) Error() string {
	if e.Detail == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

type paymentsAPI interface {
	Create(ctx context.Context, request *sq.CreatePaymentRequest, opts ...sqoption.RequestOption) (*sq.CreatePaymentResponse, error)
	Get(ctx context.Context, request *sq.GetPaymentsRequest, opts ...sqoption.RequestOption) (*sq.GetPaymentResponse, error)
}

// Client is the card processor used when SOKOLINK_PAYMENTS_CARD_PROCESSOR
// is square. It only charges and looks up payments at one location.
type Client struct {
	payments        paymentsAPI
	locationID      string
	signatureKey    string
	notificationURL string
	logg            *logger.Logger
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := strings.ToLower(strings.TrimSpace(cfg.Env))
	if env == "" {
		env = "sandbox"
	}
	baseURL, ok := baseURLs[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", cfg.Env)
	}
	required := map[string]string{
		"access token":          cfg.AccessToken,
		"location id":           cfg.LocationID,
		"webhook signature key": cfg.WebhookSignatureKey,
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("square %s is required", name)
		}
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(strings.TrimSpace(cfg.AccessToken)),
	)
	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{
		payments:        sdk.Payments,
		locationID:      strings.TrimSpace(cfg.LocationID),
		signatureKey:    strings.TrimSpace(cfg.WebhookSignatureKey),
		notificationURL: strings.TrimSpace(cfg.WebhookNotificationURL),
		logg:            logg,
	}, nil
}

// CreatePayment charges a card nonce. A processor decline is returned as
// *DeclineError; every other failure is a typed pkg/errors error.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payments require an idempotency key")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"square_op":    "create_payment",
		"reference_id": params.ReferenceID,
		"amount_minor": params.AmountMinor,
		"location_id":  c.locationID,
	})

	resp, err := c.payments.Create(ctx, params.request(c.locationID))
	if err != nil {
		return nil, c.fail(ctx, err, "create payment")
	}
	payment := resp.GetPayment()
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"payment_id": deref(payment.GetID()),
		"status":     deref(payment.GetStatus()),
	}), "square payment created")
	return payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	ctx = c.logg.WithFields(ctx, map[string]any{"square_op": "get_payment", "payment_id": paymentID})
	resp, err := c.payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
	if err != nil {
		return nil, c.fail(ctx, err, "get payment")
	}
	return resp.GetPayment(), nil
}

func (c *Client) fail(ctx context.Context, err error, op string) error {
	mapped := classify(err, op)
	var decline *DeclineError
	if errors.As(mapped, &decline) {
		c.logg.Warn(c.logg.WithField(ctx, "decline_code", decline.Code), "square card declined")
		return mapped
	}
	c.logg.Error(ctx, "square call failed", err)
	return mapped
}

// classify maps a Square failure for the payment engine. Only a missing
// payment, a malformed request or a reused idempotency key are the
// caller's problem; auth, rate limits and outages make the card channel
// unavailable.
func classify(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "square "+op)
	}
	for _, sqErr := range squareErrors(apiErr) {
		switch {
		case sqErr.Category == sq.ErrorCategoryPaymentMethodError:
			return &DeclineError{Code: string(sqErr.Code), Detail: deref(sqErr.Detail)}
		case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, "square "+op)
		}
	}
	code := pkgerrors.CodeDependency
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		code = pkgerrors.CodeNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		code = pkgerrors.CodeValidation
	}
	return pkgerrors.Wrap(code, err, "square "+op)
}

// squareErrors decodes the errors array the SDK leaves as the wrapped
// error text.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(inner.Error()), &body); err != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// VerifyWebhookSignature checks the x-square-hmacsha256-signature header,
// which signs the notification URL followed by the raw body.
func (c *Client) VerifyWebhookSignature(payload []byte, header string) bool {
	if c == nil {
		return false
	}
	return ValidateSignature(payload, c.notificationURL, c.signatureKey, header)
}

// ValidateSignature reports whether header is the base64 HMAC-SHA256 of
// url+payload under key.
func ValidateSignature(payload []byte, url, key, header string) bool {
	if header == "" || key == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(url))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
