package webhooks

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v76"

	"github.com/angelmondragon/sokolink-backend/api/responses"
	"github.com/angelmondragon/sokolink-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
	"github.com/angelmondragon/sokolink-backend/pkg/logger"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (*payments.CallbackResult, error)
}

type stripeEventVerifier interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
}

// StripeWebhook handles Stripe payment intent notifications.
func StripeWebhook(svc StripeWebhookService, verifier stripeEventVerifier, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if !guardsReady(ctx, logg, w, map[string]bool{
			"webhook service":   svc != nil,
			"stripe client":     verifier != nil,
			"idempotency guard": guard != nil,
		}) {
			return
		}

		payload, ok := readPayload(ctx, logg, w, r)
		if !ok {
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.ConstructEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		dispatch(ctx, logg, w, guard, "stripe", event.ID, func(ctx context.Context) (*payments.CallbackResult, error) {
			return svc.HandleEvent(ctx, &event)
		})
	}
}
