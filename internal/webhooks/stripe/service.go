package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v76"

	"github.com/angelmondragon/sokolink-backend/internal/payments"
	"github.com/angelmondragon/sokolink-backend/internal/webhooks"
	"github.com/angelmondragon/sokolink-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

type ServiceParams struct {
	Payments webhooks.CallbackApplier
}

type Service struct {
	payments webhooks.CallbackApplier
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{payments: params.Payments}, nil
}

// HandleEvent applies PaymentIntent lifecycle events. Other event types are
// acknowledged and ignored, in which case the result is nil.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (*payments.CallbackResult, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	res := payments.StripeResult(&pi)
	// payment_failed leaves the intent in requires_payment_method
	if event.Type == stripe.EventTypePaymentIntentPaymentFailed && res.Result == payments.ChannelPending {
		res.Result = payments.ChannelRejected
	}
	return s.payments.ApplyCallback(ctx, payments.CallbackInput{
		Source:            enums.CallbackSourceStripe,
		ExternalEventID:   event.ID,
		ProviderReference: pi.ID,
		Result:            res.Result,
		Detail:            res.Detail,
		Payload:           event.Data.Raw,
	})
}
