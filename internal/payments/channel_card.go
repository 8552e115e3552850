package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	stripe "github.com/stripe/stripe-go/v76"

	"github.com/angelmondragon/sokolink-backend/pkg/db/models"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/sokolink-backend/pkg/stripe"
)

// CardCharge is a confirm-on-create card payment.
type CardCharge struct {
	IntentID    uuid.UUID
	AmountMinor int64
	Currency    string
	Card        CardInput
	Description string
}

// CardResult is a processor's view of one card payment.
type CardResult struct {
	PaymentID string
	Result    ChannelResult
	ActionURL string
	Detail    string
}

// CardProcessor is implemented by the Stripe and Square adapters.
type CardProcessor interface {
	Name() string
	Charge(ctx context.Context, charge CardCharge) (*CardResult, error)
	Lookup(ctx context.Context, paymentID string) (*CardResult, error)
}

// CardChannel authorizes Visa and Mastercard payments through the configured processor.
type CardChannel struct {
	processor CardProcessor
}

func NewCardChannel(processor CardProcessor) *CardChannel {
	return &CardChannel{processor: processor}
}

func (c *CardChannel) Class() enums.PaymentChannelClass {
	return enums.PaymentChannelClassCard
}

func (c *CardChannel) Provider(enums.PaymentMethod) string {
	return c.processor.Name()
}

// Initiate creates and confirms the processor payment. A 3-D Secure step-up
// surfaces as ActionURL; a hard decline comes back as a declined ack.
func (c *CardChannel) Initiate(ctx context.Context, req ChannelRequest) (*ChannelAck, error) {
	if req.Details.Card == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "card details are required")
	}
	minor, err := MinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	res, err := c.processor.Charge(ctx, CardCharge{
		IntentID:    req.IntentID,
		AmountMinor: minor,
		Currency:    req.Currency,
		Card:        *req.Details.Card,
		Description: req.Description,
	})
	if err != nil {
		return nil, err
	}
	ack := &ChannelAck{ProviderTransactionID: res.PaymentID, ActionURL: res.ActionURL}
	if res.Result == ChannelRejected || res.Result == ChannelFailed {
		ack.Declined = true
		ack.DeclineReason = res.Detail
	}
	return ack, nil
}

func (c *CardChannel) Query(ctx context.Context, intent *models.PaymentIntent) (*ChannelStatus, error) {
	paymentID := derefString(intent.ProviderTransactionID)
	if paymentID == "" {
		return &ChannelStatus{Result: ChannelPending}, nil
	}
	res, err := c.processor.Lookup(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &ChannelStatus{Result: res.Result, Detail: res.Detail}, nil
}

// Currencies charged without a fractional unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "RWF": {}, "UGX": {}, "XAF": {}, "XOF": {},
}

// MinorUnits converts amount into the processor's smallest currency unit.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	scaled := amount
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; !ok {
		scaled = amount.Shift(2)
	}
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount has more precision than the currency allows")
	}
	return scaled.IntPart(), nil
}

type stripeAPI interface {
	CreatePayment(ctx context.Context, params pkgstripe.PaymentParams) (*stripe.PaymentIntent, error)
	GetPayment(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeProcessor charges cards with Stripe PaymentIntents.
type StripeProcessor struct {
	api stripeAPI
}

func NewStripeProcessor(api stripeAPI) *StripeProcessor {
	return &StripeProcessor{api: api}
}

func (p *StripeProcessor) Name() string { return "stripe" }

func (p *StripeProcessor) Charge(ctx context.Context, charge CardCharge) (*CardResult, error) {
	pi, err := p.api.CreatePayment(ctx, pkgstripe.PaymentParams{
		AmountMinor: charge.AmountMinor,
		Currency:    charge.Currency,
		Card: pkgstripe.CardDetails{
			Token:    charge.Card.Token,
			Number:   charge.Card.Number,
			ExpMonth: int64(charge.Card.ExpMonth),
			ExpYear:  int64(charge.Card.ExpYear),
			CVC:      charge.Card.CVV,
		},
		Description:    charge.Description,
		Metadata:       map[string]string{"intent_id": charge.IntentID.String()},
		IdempotencyKey: "intent-" + charge.IntentID.String(),
	})
	if err != nil {
		return nil, err
	}
	return StripeResult(pi), nil
}

func (p *StripeProcessor) Lookup(ctx context.Context, paymentID string) (*CardResult, error) {
	pi, err := p.api.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return StripeResult(pi), nil
}

// StripeResult maps a Stripe PaymentIntent onto a card result.
func StripeResult(pi *stripe.PaymentIntent) *CardResult {
	res := &CardResult{PaymentID: pi.ID, Result: ChannelPending}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Result = ChannelSucceeded
	case stripe.PaymentIntentStatusRequiresAction:
		res.ActionURL = pkgstripe.RedirectURL(pi)
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// a declined confirmation drops back to requires_payment_method
		if pi.LastPaymentError != nil {
			res.Result = ChannelRejected
			res.Detail = pkgstripe.DeclineDetail(pi)
		}
	case stripe.PaymentIntentStatusCanceled:
		res.Result = ChannelFailed
		res.Detail = "canceled"
		if pi.CancellationReason != "" {
			res.Detail = "canceled: " + string(pi.CancellationReason)
		}
	}
	return res
}

type squareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareProcessor charges tokenized cards with the Square Payments API.
type SquareProcessor struct {
	api squareAPI
}

func NewSquareProcessor(api squareAPI) *SquareProcessor {
	return &SquareProcessor{api: api}
}

func (p *SquareProcessor) Name() string { return "square" }

func (p *SquareProcessor) Charge(ctx context.Context, charge CardCharge) (*CardResult, error) {
	if strings.TrimSpace(charge.Card.Token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square card payments require a tokenized card")
	}
	payment, err := p.api.CreatePayment(ctx, square.PaymentCreateParams{
		AmountMinor:    charge.AmountMinor,
		Currency:       charge.Currency,
		SourceID:       charge.Card.Token,
		IdempotencyKey: "intent-" + charge.IntentID.String(),
		Note:           charge.Description,
		ReferenceID:    charge.IntentID.String(),
	})
	if err != nil {
		var decline *square.DeclineError
		if errors.As(err, &decline) {
			return &CardResult{Result: ChannelRejected, Detail: decline.Error()}, nil
		}
		return nil, err
	}
	return SquareResult(payment), nil
}

func (p *SquareProcessor) Lookup(ctx context.Context, paymentID string) (*CardResult, error) {
	payment, err := p.api.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return SquareResult(payment), nil
}

// SquareResult maps a Square payment onto a card result.
func SquareResult(payment *sq.Payment) *CardResult {
	res := &CardResult{Result: ChannelPending}
	if payment == nil {
		return res
	}
	res.PaymentID = derefString(payment.GetID())
	status := strings.ToUpper(derefString(payment.GetStatus()))
	switch status {
	case square.PaymentStatusCompleted:
		res.Result = ChannelSucceeded
	case square.PaymentStatusFailed:
		res.Result = ChannelRejected
		res.Detail = "payment failed"
	case square.PaymentStatusCanceled:
		res.Result = ChannelFailed
		res.Detail = "payment canceled"
	}
	return res
}
