package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/angelmondragon/sokolink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// Client wraps Stripe's API client plus env-specific metadata.
type Client struct {
	api           *client.API
	environment   string
	signingSecret string
	returnURL     string
	logger        *logger.Logger
}

// NewClient initializes Stripe once with the configured secrets and env.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.WebhookSecret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	api := client.New(apiKey, nil)

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("stripe client initialized (%s)", env))
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		returnURL:     strings.TrimSpace(cfg.ReturnURL),
		logger:        logg,
	}, nil
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// CardDetails carries either a token or raw card fields.
type CardDetails struct {
	Token    string
	Number   string
	ExpMonth int64
	ExpYear  int64
	CVC      string
}

// PaymentParams describes a confirm-on-create PaymentIntent.
type PaymentParams struct {
	AmountMinor    int64
	Currency       string
	Card           CardDetails
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// CreatePayment creates a PaymentIntent and confirms it in one call. Card
// declines come back as the PaymentIntent carrying LastPaymentError when
// Stripe returns one; other failures are mapped onto pkg/errors codes.
func (c *Client) CreatePayment(ctx context.Context, params PaymentParams) (*stripe.PaymentIntent, error) {
	if c == nil || c.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client not configured")
	}

	paymentMethod, err := c.resolvePaymentMethod(ctx, params.Card)
	if err != nil {
		return nil, err
	}

	req := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(params.AmountMinor),
		Currency:      stripe.String(strings.ToLower(params.Currency)),
		PaymentMethod: stripe.String(paymentMethod),
		Confirm:       stripe.Bool(true),
	}
	if params.Description != "" {
		req.Description = stripe.String(params.Description)
	}
	if c.returnURL != "" {
		req.ReturnURL = stripe.String(c.returnURL)
	}
	for k, v := range params.Metadata {
		req.AddMetadata(k, v)
	}
	req.Context = ctx
	if params.IdempotencyKey != "" {
		req.SetIdempotencyKey(params.IdempotencyKey)
	}

	c.log(ctx, "create_payment_intent", map[string]any{"amount": params.AmountMinor, "currency": params.Currency})
	pi, err := c.api.PaymentIntents.New(req)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard && stripeErr.PaymentIntent != nil {
			return stripeErr.PaymentIntent, nil
		}
		return nil, mapStripeError(err, "create payment intent")
	}
	return pi, nil
}

// GetPayment fetches a PaymentIntent by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if c == nil || c.api == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client not configured")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err, "get payment intent")
	}
	return pi, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
func (c *Client) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	if c == nil {
		return stripe.Event{}, pkgerrors.New(pkgerrors.CodeDependency, "stripe client not configured")
	}
	return ConstructEvent(payload, header, c.signingSecret)
}

// ConstructEvent verifies a webhook payload against secret.
func ConstructEvent(payload []byte, header, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid stripe signature")
	}
	return event, nil
}

func (c *Client) resolvePaymentMethod(ctx context.Context, card CardDetails) (string, error) {
	token := strings.TrimSpace(card.Token)
	if strings.HasPrefix(token, "pm_") {
		return token, nil
	}

	cardParams := &stripe.PaymentMethodCardParams{}
	if token != "" {
		cardParams.Token = stripe.String(token)
	} else {
		cardParams.Number = stripe.String(card.Number)
		cardParams.ExpMonth = stripe.Int64(card.ExpMonth)
		cardParams.ExpYear = stripe.Int64(card.ExpYear)
		cardParams.CVC = stripe.String(card.CVC)
	}
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: cardParams,
	}
	params.Context = ctx

	pm, err := c.api.PaymentMethods.New(params)
	if err != nil {
		return "", mapStripeError(err, "create payment method")
	}
	return pm.ID, nil
}

func (c *Client) log(ctx context.Context, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	ctx = c.logger.WithFields(ctx, fields)
	c.logger.Info(ctx, fmt.Sprintf("stripe %s", op))
}

// DeclineDetail extracts a human readable decline reason from a PaymentIntent.
func DeclineDetail(pi *stripe.PaymentIntent) string {
	if pi == nil || pi.LastPaymentError == nil {
		return ""
	}
	e := pi.LastPaymentError
	parts := []string{}
	if e.DeclineCode != "" {
		parts = append(parts, string(e.DeclineCode))
	} else if e.Code != "" {
		parts = append(parts, string(e.Code))
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	return strings.Join(parts, ": ")
}

// RedirectURL returns the 3-D Secure step-up URL, if Stripe requested one.
func RedirectURL(pi *stripe.PaymentIntent) string {
	if pi == nil || pi.NextAction == nil || pi.NextAction.RedirectToURL == nil {
		return ""
	}
	return pi.NextAction.RedirectToURL.URL
}

func mapStripeError(err error, op string) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(domainCodeForStatus(stripeErr.HTTPStatusCode, stripeErr.Type), err, fmt.Sprintf("stripe %s failed", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe %s failed", op))
}

func domainCodeForStatus(status int, errType stripe.ErrorType) pkgerrors.Code {
	switch {
	case errType == stripe.ErrorTypeIdempotency:
		return pkgerrors.CodeIdempotency
	case errType == stripe.ErrorTypeCard:
		return pkgerrors.CodeValidation
	case status == http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case status >= 400 && status < 500:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "sk_test") || strings.HasPrefix(key, "rk_test") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a test secret key (sk_test/rk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "sk_live") || strings.HasPrefix(key, "rk_live") {
			return nil
		}
		return fmt.Errorf("stripe environment %q requires a live secret key (sk_live/rk_live)", liveEnv)
	default:
		return errInvalidStripeEnv
	}
}
